package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/lokan/updater/pkg/health"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll health endpoints and feed boot-health signals to the engine",
	Long: `Each poll round probes the configured health endpoints. A round that
misses quorum records an unhealthy boot; enough consecutive misses during
a trial roll the trial back. With healthy-streak > 0, that many
consecutive healthy rounds finalize an outstanding trial.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	engine, repo, cfg, err := openEngine()
	if err != nil {
		return err
	}
	defer repo.Close()

	if len(cfg.HealthEndpoints) == 0 {
		slog.Warn("monitor_no_endpoints_configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checker := health.NewHTTPChecker(cfg.HealthProbeTimeout)
	slog.Info("monitor_started",
		"endpoints", len(cfg.HealthEndpoints),
		"quorum", cfg.HealthQuorum,
		"poll_interval", cfg.HealthPollInterval,
		"healthy_streak", cfg.HealthyStreak)

	ticker := time.NewTicker(cfg.HealthPollInterval)
	defer ticker.Stop()

	healthyRounds := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("monitor_stopped")
			return nil
		case <-ticker.C:
		}

		if health.Quorum(ctx, checker, cfg.HealthEndpoints, cfg.HealthQuorum) {
			healthyRounds++
			if cfg.HealthyStreak > 0 && healthyRounds >= cfg.HealthyStreak {
				if engine.Check().TrialSlot != "" {
					result, err := engine.Commit()
					if err != nil {
						return err
					}
					slog.Info("monitor_trial_finalized", "status", result.Status)
				}
				healthyRounds = 0
			}
			continue
		}

		healthyRounds = 0
		result, err := engine.MarkUnhealthy()
		if err != nil {
			return err
		}
		if result.RolledBack {
			rb := result.Snapshot.LastRollback
			slog.Warn("monitor_rolled_back",
				"from_slot", rb.From,
				"to_slot", rb.To,
				"failed_version", rb.FailedVersion,
				"restored_version", rb.RestoredVersion)
		}
	}
}
