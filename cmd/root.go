package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tastebase/capture-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "capture-cli",
	Short: "Photo capture to structured record extraction",
	Long: "Turns photos of cookbook pages and wine labels into structured records " +
		"via vision model providers, scores extraction confidence, matches wine labels " +
		"against a reference catalog, and keeps a per-attempt audit ledger.",
	SilenceUsage:      true,
	PersistentPreRunE: bootstrap,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// bootstrap loads configuration and installs the global logger before any
// subcommand runs.
func bootstrap(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "load config")
	}
	cfg = loaded

	if err := config.InitLogger(cfg.Log); err != nil {
		return eris.Wrap(err, "init logger")
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
