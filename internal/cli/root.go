// Package cli implements the cashd command line.
package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cashd-network/cashd/internal/daemon"
	"github.com/cashd-network/cashd/internal/infra/logging"
)

// Build metadata, set with -ldflags.
var (
	Version = "dev"
	Commit  = "none"
)

var homeDir string

var rootCmd = &cobra.Command{
	Use:   "cashd",
	Short: "Ledgered balance-transfer daemon",
	Long: `cashd keeps principals' balances in minor units and moves them with
idempotent transfers, server-drawn wagers and user-minted tokens.

Configuration is read from $CASHD_HOME/config.toml and CASHD_* environment
variables. Run 'cashd init' once before 'cashd serve'.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "Home directory (default $CASHD_HOME or ~/.cashd)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func home() string {
	if homeDir != "" {
		return homeDir
	}
	return daemon.Home()
}

// loadConfig reads the configuration and builds the logger it asks for.
func loadConfig() (daemon.Config, *logrus.Logger, error) {
	cfg, err := daemon.LoadConfig(home())
	if err != nil {
		return cfg, nil, err
	}
	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stderr)
	if err != nil {
		return cfg, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}
