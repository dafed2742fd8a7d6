package main

import (
	"propsift/internal/config"
	"propsift/internal/logging"
	"propsift/internal/version"

	"github.com/spf13/cobra"
)

var (
	// configFlag is the CLI --config flag value
	configFlag string
)

var rootCmd = &cobra.Command{
	Use:   "propsift",
	Short: "propsift - lead analytics query engine",
	Long: `propsift is the analytics backend for lead-management dashboards. It
compiles declarative widget queries into scoped SQL, executes them against the
lead store, and caches results with version-based invalidation.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("propsift version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "",
		"Path to propsift.yaml (default: ./propsift.yaml, overridable via PROPSIFT_* env vars)")
}

// loadRuntime loads the configuration and builds the logger it asks for.
func loadRuntime() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  logging.LogLevel(cfg.Logging.Level),
	})
	return cfg, logger, nil
}
