package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/facefolio/internal/utils"
	"github.com/andresmejia3/facefolio/internal/workflow"
	"github.com/spf13/cobra"
)

var findRunID string

var findCmd = &cobra.Command{
	Use:   "find <image_path>",
	Short: "Identify the people in one photo using a discovery run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runFind(cmd.Context(), args[0])
	},
}

func init() {
	findCmd.Flags().StringVar(&findRunID, "run", "", "Run ID (default: latest run)")
	rootCmd.AddCommand(findCmd)
}

func runFind(ctx context.Context, imagePath string) error {
	if _, err := os.Stat(imagePath); err != nil {
		utils.ShowError("Input file does not exist", err, nil)
		return err
	}

	run, err := loadRun(ctx, findRunID)
	if err != nil {
		utils.ShowError("Failed to load run", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🔍 Analyzing faces...")
	matches, err := workflow.FindInRun(ctx, newPool(Cfg, 1), run, imagePath)
	if err != nil {
		reportFailure("Face analysis failed", err)
		return err
	}

	if len(matches) == 0 {
		fmt.Println("❌ No faces detected in the provided image.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FACE\tIDENTITY\tNAME\tDISTANCE")
	fmt.Fprintln(w, "----\t--------\t----\t--------")

	for _, m := range matches {
		identity, name := "-", "(no match)"
		if m.Identity >= 0 {
			identity = fmt.Sprint(m.Identity)
			name = m.Name
			if name == "" {
				name = fmt.Sprintf("Identity %d", m.Identity)
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%.3f\n", m.Face, identity, name, m.Distance)
	}
	w.Flush()

	return nil
}
