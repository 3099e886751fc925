package commands

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var unhealthyCmd = &cobra.Command{
	Use:   "mark-unhealthy",
	Short: "Record an unhealthy boot signal",
	Long: `Intended to be called from a boot watchdog. The signal is always
recorded; while a trial is outstanding, reaching the configured
health-fail-window triggers automatic rollback to the previous slot.`,
	RunE: runMarkUnhealthy,
}

func init() {
	rootCmd.AddCommand(unhealthyCmd)
}

func runMarkUnhealthy(cmd *cobra.Command, args []string) error {
	engine, repo, _, err := openEngine()
	if err != nil {
		return err
	}
	defer repo.Close()

	result, err := engine.MarkUnhealthy()
	if err != nil {
		return err
	}

	slog.Info("unhealthy boot recorded",
		"status", result.Status,
		"rolled_back", result.RolledBack,
		"active_slot", result.Snapshot.ActiveSlot)
	return printJSON(result)
}
