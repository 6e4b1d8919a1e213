package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var vacuumInto string

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the sqlite integrity check",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		results, err := store.IntegrityCheck()
		if err != nil {
			return err
		}
		for _, r := range results {
			cmd.Println(r)
		}
		if len(results) != 1 || !strings.EqualFold(results[0], "ok") {
			return fmt.Errorf("integrity check reported %d problem(s)", len(results))
		}
		return nil
	},
}

var dbVacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Rebuild the database file, optionally into a new file",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Vacuum(vacuumInto); err != nil {
			return err
		}
		if vacuumInto != "" {
			cmd.Printf("vacuumed into %s\n", vacuumInto)
		} else {
			cmd.Println("vacuumed")
		}
		return nil
	},
}

var dbAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Refresh query planner statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Analyze(); err != nil {
			return err
		}
		cmd.Println("analyzed")
		return nil
	},
}

func init() {
	dbVacuumCmd.Flags().StringVar(&vacuumInto, "into", "", "write the vacuumed copy to this path")
	dbCmd.AddCommand(dbCheckCmd, dbVacuumCmd, dbAnalyzeCmd)
	rootCmd.AddCommand(dbCmd)
}
