package commands

import (
	"github.com/lokan/updater/internal/config"
	"github.com/lokan/updater/pkg/bundle"
	"github.com/lokan/updater/pkg/errors"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <bundle-dir>",
	Short: "Verify a bundle without staging it",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	verifier, err := bundle.NewVerifierFromPEM(cfg.PublicKeyPath)
	if err != nil {
		return errors.Wrap(err, "public key load failed")
	}

	manifest, err := verifier.Verify(args[0])
	if err != nil {
		return errors.Wrap(err, "verification failed")
	}

	return printJSON(manifest)
}
