package commands

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the engine state snapshot",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	engine, repo, _, err := openEngine()
	if err != nil {
		return err
	}
	defer repo.Close()

	return printJSON(engine.Check())
}
