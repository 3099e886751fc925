package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "updaterd",
	Short: "A/B slot OTA update engine",
	Long:  `Stages, verifies, activates, and rolls back signed update bundles across two storage slots.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("state-db-path", ".artifacts/updater.db", "Engine state SQLite path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm.db", "Staging FSM BoltDB path")
	rootCmd.PersistentFlags().String("public-key", "keys/ota_signing_public.pem", "Trusted Ed25519 public key (PEM)")
	rootCmd.PersistentFlags().String("private-key", "", "Ed25519 signing key (PEM), sign command only")
	rootCmd.PersistentFlags().Int("health-fail-window", 3, "Unhealthy boots during a trial before rollback")
	rootCmd.PersistentFlags().String("initial-version-a", "0.0.0", "Slot A version when seeding a fresh state store")
	rootCmd.PersistentFlags().String("initial-version-b", "", "Slot B version when seeding a fresh state store")

	viper.BindPFlag("state-db-path", rootCmd.PersistentFlags().Lookup("state-db-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("public-key", rootCmd.PersistentFlags().Lookup("public-key"))
	viper.BindPFlag("private-key", rootCmd.PersistentFlags().Lookup("private-key"))
	viper.BindPFlag("health-fail-window", rootCmd.PersistentFlags().Lookup("health-fail-window"))
	viper.BindPFlag("initial-version-a", rootCmd.PersistentFlags().Lookup("initial-version-a"))
	viper.BindPFlag("initial-version-b", rootCmd.PersistentFlags().Lookup("initial-version-b"))
}
