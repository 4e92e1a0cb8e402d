package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/andresmejia3/facefolio/internal/assign"
	"github.com/andresmejia3/facefolio/internal/tagging"
	"github.com/andresmejia3/facefolio/internal/utils"
	"github.com/spf13/cobra"
)

var (
	tagRunID     string
	tagNamesFile string
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Name several identities at once from a YAML file",
	Long: `Reads a YAML mapping of identity index to name, for example:

  0: alice
  2: bob
  3: ""

A blank name clears the label of that identity.`,
	Run: func(cmd *cobra.Command, args []string) {
		runTag(cmd.Context())
	},
}

func init() {
	tagCmd.Flags().StringVar(&tagRunID, "run", "", "Run ID (default: latest run)")
	tagCmd.Flags().StringVarP(&tagNamesFile, "names", "n", "", "YAML file mapping identity index to name (required)")
	tagCmd.MarkFlagRequired("names")
	rootCmd.AddCommand(tagCmd)
}

func runTag(ctx context.Context) {
	f, err := os.Open(tagNamesFile)
	if err != nil {
		utils.Die("Failed to open names file", err, nil)
	}
	names, err := tagging.LoadNames(f)
	f.Close()
	if err != nil {
		utils.Die("Failed to parse names file", err, nil)
	}

	run, err := loadRun(ctx, tagRunID)
	if err != nil {
		utils.Die("Failed to load run", err, nil)
	}

	indices := make([]int, 0, len(names))
	for idx, name := range names {
		names[idx] = strings.TrimSpace(name)
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	// Validate everything before writing anything.
	for _, idx := range indices {
		if name := names[idx]; name != "" {
			if err := assign.ValidName(name); err != nil {
				utils.Die(fmt.Sprintf("Invalid name for identity %d", idx), err, nil)
			}
		}
	}

	for _, idx := range indices {
		if err := DB.SetName(ctx, run.ID, idx, names[idx]); err != nil {
			utils.Die(fmt.Sprintf("Failed to label identity %d", idx), err, nil)
		}
	}
	fmt.Printf("✅ Applied %d labels to run %s\n", len(indices), run.ID)
}
