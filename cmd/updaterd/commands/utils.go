package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lokan/updater/internal/config"
	"github.com/lokan/updater/pkg/errors"
	"github.com/lokan/updater/pkg/slot"
	"github.com/lokan/updater/pkg/store"
)

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(stateDBPath, fsmDBPath string) error {
	if err := os.MkdirAll(filepath.Dir(stateDBPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create state database directory")
	}

	// FSM database directory (only needed for the stage command)
	if fsmDBPath != "" {
		if err := os.MkdirAll(filepath.Dir(fsmDBPath), 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM database directory")
		}
	}

	return nil
}

// openEngine loads config, opens the state repository, and constructs the
// engine. The caller must Close the repository.
func openEngine() (*slot.Engine, *store.Repository, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, errors.Wrap(err, "config invalid")
	}

	if err := ensureDirectories(cfg.StateDBPath, ""); err != nil {
		return nil, nil, nil, err
	}

	repo, err := store.NewRepository(cfg.StateDBPath)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "state db init failed")
	}

	engine, err := slot.New(repo, cfg.HealthFailWindow, cfg.InitialVersionA, cfg.InitialVersionB)
	if err != nil {
		repo.Close()
		return nil, nil, nil, errors.Wrap(err, "engine init failed")
	}

	return engine, repo, cfg, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode output")
	}
	fmt.Println(string(out))
	return nil
}
