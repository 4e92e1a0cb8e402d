package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/andresmejia3/facefolio/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetRuns  bool
	resetFiles bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset saved state (discovery runs, portraits, extracted archives)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components. Sorted output folders are never touched.",
	Run: func(cmd *cobra.Command, args []string) {
		// If no flags are set, default to clearing EVERYTHING
		if !resetRuns && !resetFiles {
			resetRuns = true
			resetFiles = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetRuns {
			if confirm(reader, "⚠️  Are you sure you want to delete all discovery runs and their labels?") {
				fmt.Println("🗑️  Clearing runs...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.Die("Failed to reset run store", err, nil)
				}
			}
		}

		if resetFiles {
			if confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete everything under %s?", Cfg.WorkDir)) {
				fmt.Println("🗑️  Clearing working files (portraits, extracted photos)...")
				removeDir(Cfg.WorkDir)
			}
		}

		fmt.Println("✨ Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetRuns, "runs", false, "Clear saved discovery runs (database or run files)")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Clear the working directory (portraits, extracted archives)")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
