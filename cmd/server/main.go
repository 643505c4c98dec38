package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/eeg-api/internal/config"
	"github.com/Brownie44l1/eeg-api/internal/logger"
)

// Set with -ldflags "-X main.version=..."
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "eeg-api",
	Short: "EEG window classifier",
	Long: `eeg-api classifies fixed windows of EEG samples with a pretrained model.

Available commands:
  serve     - Start the HTTP and WebSocket server
  classify  - Classify a signal file from the command line
  config    - Show the effective configuration
  version   - Show version information

Examples:
  eeg-api serve --port 9000
  eeg-api serve --stub-model
  eeg-api classify recording.txt`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: search for eeg.toml upwards)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Log as JSON")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// flagKeys maps command-line flags onto config keys. Flags only override
// the file and environment when set.
var flagKeys = map[string]string{
	"port":      "server.port",
	"model":     "model.path",
	"metadata":  "model.metadata_path",
	"json-logs": "log.json",
	"log-level": "log.level",
}

// loadConfig reads the configuration and initialises the global logger from it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.NewViper()
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind --%s: %w", name, err)
			}
		}
	}

	cfg, err := config.Read(v, configPath)
	if err != nil {
		return nil, err
	}

	if err := logger.Initialize(cfg.Log.JSON, cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func main() {
	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
