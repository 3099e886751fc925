package commands

import (
	"fmt"
	"time"

	"github.com/lokan/updater/internal/config"
	"github.com/lokan/updater/pkg/errors"
	"github.com/lokan/updater/pkg/store"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded rollbacks, newest first",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	if err := ensureDirectories(cfg.StateDBPath, ""); err != nil {
		return err
	}

	repo, err := store.NewRepository(cfg.StateDBPath)
	if err != nil {
		return errors.Wrap(err, "state db init failed")
	}
	defer repo.Close()

	history, err := repo.RollbackHistory()
	if err != nil {
		return errors.Wrap(err, "history query failed")
	}

	if len(history) == 0 {
		fmt.Println("No rollbacks recorded")
		return nil
	}

	fmt.Printf("%-25s %-6s %-6s %-20s %-20s\n", "WHEN", "FROM", "TO", "FAILED VERSION", "RESTORED VERSION")
	fmt.Println("--------------------------------------------------------------------------------")

	for _, rb := range history {
		fmt.Printf("%-25s %-6s %-6s %-20s %-20s\n",
			rb.At.Format(time.RFC3339), rb.From, rb.To, rb.FailedVersion, rb.RestoredVersion)
	}

	return nil
}
