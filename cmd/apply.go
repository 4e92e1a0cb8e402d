package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/facefolio/internal/archive"
	"github.com/andresmejia3/facefolio/internal/task"
	"github.com/andresmejia3/facefolio/internal/utils"
	"github.com/andresmejia3/facefolio/internal/workflow"
	"github.com/spf13/cobra"
)

var applyOpts Options

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Copy photos into folders for every named identity of a run",
	Long:  `Resolves every face of a discovery run against its named identities and copies each photo into the folder of every named person in it. Re-running with the same names changes nothing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if applyOpts.OutputDir == "" {
			applyOpts.OutputDir = Cfg.OutputDir
		}
		return runApply(cmd.Context(), applyOpts)
	},
}

func init() {
	applyCmd.Flags().StringVar(&applyOpts.RunID, "run", "", "Run ID (default: latest run)")
	applyCmd.Flags().StringVarP(&applyOpts.OutputDir, "output", "o", "", "Destination root for per-person folders (default: config output)")
	applyCmd.Flags().StringVar(&applyOpts.ZipPath, "zip", "", "Write the sorted output to this .zip archive as well")
	rootCmd.AddCommand(applyCmd)
}

func runApply(ctx context.Context, opts Options) error {
	run, err := loadRun(ctx, opts.RunID)
	if err != nil {
		utils.ShowError("Failed to load run", err, nil)
		return err
	}

	rep, err := runWithProgress(ctx, "📁 Copying", func(ctx context.Context, report task.Report) (*workflow.ApplyReport, error) {
		return workflow.ApplyTags(run, opts.OutputDir, os.Stderr, report)
	})
	if err != nil {
		utils.ShowError("Apply failed", err, nil)
		return err
	}

	fmt.Printf("\n📊 APPLY SUMMARY\n")
	fmt.Printf("   • Run:         %s\n", run.ID)
	fmt.Printf("   • Identities:  %d (%d named)\n", rep.Identities, rep.Named)
	printCopyStats(os.Stdout, rep.Stats)
	fmt.Println()
	printAssignment(os.Stdout, rep.Assignment.Names(), rep.Assignment.Count)
	fmt.Printf("\n📂 Output: %s\n", opts.OutputDir)

	if opts.ZipPath != "" {
		n, err := archive.CreateZip(opts.OutputDir, opts.ZipPath)
		if err != nil {
			utils.ShowError("Failed to create archive", err, nil)
			return err
		}
		fmt.Printf("📦 Archived %d files to %s\n", n, opts.ZipPath)
	}
	return nil
}
