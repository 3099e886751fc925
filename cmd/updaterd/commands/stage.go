package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/lokan/updater/pkg/bundle"
	"github.com/lokan/updater/pkg/errors"
	"github.com/lokan/updater/pkg/pipeline"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"
)

var stageCmd = &cobra.Command{
	Use:   "stage <bundle-dir>",
	Short: "Verify a bundle and stage it into the inactive slot",
	Args:  cobra.ExactArgs(1),
	RunE:  runStage,
}

func init() {
	rootCmd.AddCommand(stageCmd)
}

func runStage(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	bundlePath := args[0]

	engine, repo, cfg, err := openEngine()
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := ensureDirectories(cfg.StateDBPath, cfg.FSMDBPath); err != nil {
		return err
	}

	verifier, err := bundle.NewVerifierFromPEM(cfg.PublicKeyPath)
	if err != nil {
		return errors.Wrap(err, "public key load failed")
	}

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := pipeline.NewMachine(verifier, engine, cfg.FSMMaxRetries)
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	req := &pipeline.StageRequest{BundlePath: bundlePath}
	resp := &pipeline.StageResponse{}

	version, err := start(ctx, bundlePath, fsm.NewRequest(req, resp))
	if err != nil {
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm started", "version", version)

	if err := manager.Wait(ctx, version); err != nil {
		return errors.Wrap(err, "stage failed")
	}

	slog.Info("stage completed",
		"status", resp.Status,
		"bundle_version", resp.Version,
		"staged_slot", resp.StagedSlot)

	return printJSON(engine.Check())
}
