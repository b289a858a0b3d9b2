package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/config"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "arcadia",
		Short: "Arcadia feed host and reference authority",
		Long: `Arcadia runs a vertical feed of sandboxed mini games.

The host keeps a small window of live game surfaces, bridges their
messages and syncs progress with the authority. The authority serves the
feed, progress and analytics API.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(hostCmd())
	rootCmd.AddCommand(authorityCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads path when set, otherwise the environment alone.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(logging.FromConfig(cfg.Logging))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
