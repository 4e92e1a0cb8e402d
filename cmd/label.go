package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/andresmejia3/facefolio/internal/assign"
	"github.com/andresmejia3/facefolio/internal/utils"
	"github.com/spf13/cobra"
)

var labelRunID string

var labelCmd = &cobra.Command{
	Use:   "label <identity_index> <name>",
	Short: "Assign a name to a discovered identity",
	Long:  `Names an identity of a discovery run. An empty name ("") clears the label so "apply" skips that identity.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		index, name, err := parseLabelArgs(args)
		if err != nil {
			utils.Die("Invalid label", err, nil)
		}

		runLabel(cmd.Context(), index, name)
	},
}

func init() {
	labelCmd.Flags().StringVar(&labelRunID, "run", "", "Run ID (default: latest run)")
	rootCmd.AddCommand(labelCmd)
}

// parseLabelArgs validates "<index> <name>". A blank name clears the label.
func parseLabelArgs(args []string) (int, string, error) {
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, "", fmt.Errorf("identity index %q is not a number", args[0])
	}
	if index < 0 {
		return 0, "", fmt.Errorf("identity index must not be negative")
	}
	name := strings.TrimSpace(args[1])
	if name == "" {
		return index, "", nil
	}
	if err := assign.ValidName(name); err != nil {
		return 0, "", err
	}
	return index, name, nil
}

func runLabel(ctx context.Context, index int, name string) {
	run, err := loadRun(ctx, labelRunID)
	if err != nil {
		utils.Die("Failed to load run", err, nil)
	}

	if err := DB.SetName(ctx, run.ID, index, name); err != nil {
		utils.Die("Failed to label identity", err, nil)
	}

	if name == "" {
		fmt.Printf("✅ Identity %d label cleared\n", index)
		return
	}
	fmt.Printf("✅ Identity %d labeled as '%s'\n", index, name)
}
