package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/facefolio/internal/discovery"
	"github.com/andresmejia3/facefolio/internal/facematch"
	"github.com/andresmejia3/facefolio/internal/store"
	"github.com/andresmejia3/facefolio/internal/utils"
	"github.com/spf13/cobra"
)

var (
	listRunID string
	listRuns  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the identities of a discovery run",
	Run: func(cmd *cobra.Command, args []string) {
		if listRuns {
			runListRuns(cmd.Context())
			return
		}
		runList(cmd.Context())
	},
}

func init() {
	listCmd.Flags().StringVar(&listRunID, "run", "", "Run ID (default: latest run)")
	listCmd.Flags().BoolVar(&listRuns, "runs", false, "List discovery runs instead of identities")
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context) {
	run, err := loadRun(ctx, listRunID)
	if err != nil {
		utils.Die("Failed to load run", err, nil)
	}
	if len(run.Identities) == 0 {
		fmt.Printf("No identities found in run %s.\n", run.ID)
		return
	}
	fmt.Printf("Run %s (%s)\n\n", run.ID, run.CreatedAt.Local().Format("2006-01-02 15:04"))
	printIdentities(os.Stdout, run, photoCounts(run))
}

func runListRuns(ctx context.Context) {
	runs, err := DB.ListRuns(ctx)
	if err != nil {
		utils.Die("Failed to list runs", err, nil)
	}

	if len(runs) == 0 {
		fmt.Println("No discovery runs found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tIDENTITIES\tNAMED\tINPUT\tCREATED")
	fmt.Fprintln(w, "--\t----------\t-----\t-----\t-------")

	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", r.ID, r.Identities, r.Named, r.InputDir, r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}

// printIdentities writes one row per identity in index order.
func printIdentities(out io.Writer, run *store.Run, counts map[int]int) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tPHOTOS\tPORTRAIT")
	fmt.Fprintln(w, "-----\t----\t------\t--------")

	for _, id := range run.Identities {
		name := id.Name
		if name == "" {
			name = "-"
		}
		portrait := id.Portrait
		if portrait == "" {
			portrait = "(none)"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", id.Index, name, counts[id.Index], portrait)
	}
	w.Flush()
}

// photoCounts returns how many distinct photos resolve to each identity.
func photoCounts(run *store.Run) map[int]int {
	reps := discovery.Representatives(run.Identities)
	seen := make(map[int]map[string]bool)
	for _, obs := range run.Observations {
		idx := facematch.FirstMatch(reps, obs.Vec, run.Tolerance)
		if idx < 0 {
			continue
		}
		if seen[idx] == nil {
			seen[idx] = make(map[string]bool)
		}
		seen[idx][obs.Path] = true
	}
	counts := make(map[int]int, len(seen))
	for idx, paths := range seen {
		counts[idx] = len(paths)
	}
	return counts
}
