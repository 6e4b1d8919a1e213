package cmd

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/treefix50/trainingtime/internal/server"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the training library once and record the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		lib, err := server.NewLibrary(cfg.Library.Root, store)
		if err != nil {
			return err
		}
		scanErr := lib.Scan()

		counts := map[string]int{}
		for _, v := range lib.All() {
			counts[v.Category]++
		}
		categories := make([]string, 0, len(counts))
		for c := range counts {
			categories = append(categories, c)
		}
		sort.Strings(categories)

		cmd.Printf("Root: %s\n", lib.Root())
		cmd.Printf("Videos: %d\n", len(lib.All()))
		for _, c := range categories {
			cmd.Printf("  %s: %d\n", c, counts[c])
		}
		if id := lib.ScanRootID(); id != "" {
			if run, ok, err := store.LatestScanRun(id); err == nil && ok {
				cmd.Printf("Scan run: %s (%s)\n", run.ID, run.Status)
			}
		}
		return scanErr
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
