package commands

import (
	"fmt"
	"log/slog"

	"github.com/lokan/updater/internal/config"
	"github.com/lokan/updater/pkg/bundle"
	"github.com/lokan/updater/pkg/errors"
	"github.com/spf13/cobra"
)

var signCmd = &cobra.Command{
	Use:   "sign <bundle-dir>",
	Short: "Recompute bundle digests and sign the checksum file",
	Long: `Build-time tool: recomputes every component digest, rewrites the
manifest and sig/sha256sum, signs the checksum file, and self-verifies
the result before declaring success.`,
	Args: cobra.ExactArgs(1),
	RunE: runSign,
}

func init() {
	rootCmd.AddCommand(signCmd)
}

func runSign(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if cfg.PrivateKeyPath == "" {
		return fmt.Errorf("private-key is required for signing")
	}

	signer, err := bundle.NewSignerFromPEM(cfg.PrivateKeyPath)
	if err != nil {
		return errors.Wrap(err, "private key load failed")
	}

	if err := signer.Sign(args[0]); err != nil {
		return errors.Wrap(err, "signing failed")
	}

	slog.Info("sign completed", "bundle_dir", args[0])
	return nil
}
