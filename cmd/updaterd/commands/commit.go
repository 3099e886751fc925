package commands

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Activate the staged slot, or finalize an outstanding trial",
	Long: `With a staged slot, commit promotes it to active and begins its trial.
With an outstanding trial, commit confirms it. With neither it is a no-op.`,
	RunE: runCommit,
}

func init() {
	rootCmd.AddCommand(commitCmd)
}

func runCommit(cmd *cobra.Command, args []string) error {
	engine, repo, _, err := openEngine()
	if err != nil {
		return err
	}
	defer repo.Close()

	result, err := engine.Commit()
	if err != nil {
		return err
	}

	slog.Info("commit completed", "status", result.Status, "active_slot", result.Snapshot.ActiveSlot)
	return printJSON(result)
}
