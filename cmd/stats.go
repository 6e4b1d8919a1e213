package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/treefix50/trainingtime/internal/server"
)

var statsFlags struct {
	viewer   string
	category string
	json     bool
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show a viewer's training progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		category := ""
		if statsFlags.category != "" {
			c, ok := server.NormalizeCategory(statsFlags.category)
			if !ok {
				return fmt.Errorf("unknown category %q", statsFlags.category)
			}
			if c != server.CategoryAll {
				category = c
			}
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats(statsFlags.viewer, category)
		if err != nil {
			return err
		}
		if statsFlags.json {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		if category != "" {
			cmd.Printf("Category: %s\n", category)
		}
		cmd.Printf("Videos: %d\n", stats.TotalVideos)
		cmd.Printf("Completed: %d\n", stats.CompletedVideos)
		cmd.Printf("Overall progress: %d%%\n", stats.OverallProgress)
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsFlags.viewer, "viewer", "", "viewer id (empty for the anonymous viewer)")
	statsCmd.Flags().StringVar(&statsFlags.category, "category", "", "limit to one category")
	statsCmd.Flags().BoolVar(&statsFlags.json, "json", false, "print JSON")
	rootCmd.AddCommand(statsCmd)
}
