package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/andresmejia3/facefolio/internal/task"
	"github.com/andresmejia3/facefolio/internal/workflow"
	"github.com/spf13/cobra"
)

var discoverOpts Options

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find every distinct person in a photo collection",
	Long: `Clusters every face in the input into identities and writes one portrait
per identity. Name the identities with "label" or "tag", then run "apply".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateDiscoverFlags(cmd, &discoverOpts); err != nil {
			return err
		}
		cmd.SilenceUsage = true
		return runDiscover(cmd.Context(), discoverOpts)
	},
}

func init() {
	discoverCmd.Flags().StringVarP(&discoverOpts.InputPath, "input", "i", "", "Directory or .zip of photos (required)")
	discoverCmd.Flags().IntVarP(&discoverOpts.NumEngines, "engines", "e", 0, "Number of parallel face engines (default: config engine.count)")
	discoverCmd.Flags().Float64VarP(&discoverOpts.Tolerance, "tolerance", "t", 0, "Maximum face distance to join an identity (default: config discovery tolerance)")
	discoverCmd.Flags().IntVar(&discoverOpts.Padding, "padding", -1, "Transparent border around portraits in pixels (default: config portrait.padding)")
	rootCmd.AddCommand(discoverCmd)
}

func validateDiscoverFlags(cmd *cobra.Command, opts *Options) error {
	if err := checkInput(opts.InputPath); err != nil {
		return err
	}
	if !cmd.Flags().Changed("tolerance") {
		opts.Tolerance = Cfg.Matching.DiscoveryTolerance
	}
	if !cmd.Flags().Changed("padding") {
		opts.Padding = Cfg.Portrait.Padding
	}
	if opts.Padding < 0 {
		return fmt.Errorf("--padding must not be negative")
	}
	return validateCommon(opts)
}

func runDiscover(ctx context.Context, opts Options) error {
	start := time.Now()
	pool := newPool(Cfg, opts.NumEngines)

	rep, err := runWithProgress(ctx, "🔍 Discovering", func(ctx context.Context, report task.Report) (*workflow.DiscoverReport, error) {
		return workflow.Discover(ctx, pool, DB, workflow.DiscoverOptions{
			Input:     opts.InputPath,
			RunsDir:   runsDir(Cfg),
			Tolerance: opts.Tolerance,
			Padding:   opts.Padding,
		}, os.Stderr, report)
	})
	if err != nil && !workflow.Interrupted(err) {
		reportFailure("Discovery failed", err)
		return err
	}
	if rep.Interrupted {
		fmt.Fprintln(os.Stderr, "\n🛑 Interrupted. The partial run was saved.")
	}

	printDiscoverReport(os.Stdout, rep, time.Since(start))
	return nil
}

func printDiscoverReport(out io.Writer, rep *workflow.DiscoverReport, elapsed time.Duration) {
	run := rep.Run
	fmt.Fprintf(out, "\n📊 DISCOVERY SUMMARY\n")
	fmt.Fprintf(out, "   • Run:         %s\n", run.ID)
	fmt.Fprintf(out, "   • Photos:      %d processed, %d without a face, %d unreadable\n",
		rep.Photos.Processed, rep.Photos.NoFace, len(rep.Photos.Skipped))
	fmt.Fprintf(out, "   • Faces:       %d\n", len(run.Observations))
	fmt.Fprintf(out, "   • Identities:  %d\n", len(run.Identities))
	if len(rep.PortraitFailures) > 0 {
		fmt.Fprintf(out, "   • Portraits:   %d could not be rendered\n", len(rep.PortraitFailures))
	}
	fmt.Fprintf(out, "   • Elapsed:     %s\n\n", fmtTime(elapsed.Seconds()))

	printIdentities(out, run, photoCounts(run))

	fmt.Fprintf(out, "\n🖼️  Portraits: %s\n", run.PortraitDir)
	fmt.Fprintf(out, "👉 Next: facefolio label <index> <name> --run %s\n", run.ID)
}
