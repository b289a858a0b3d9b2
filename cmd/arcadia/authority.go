package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kh3rwa1/ArcadiaApp/internal/authority"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/monitoring"
)

func authorityCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "authority",
		Short: "Run the reference progress and feed authority",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			srv, err := authority.New(cfg.Authority, cfg.Logging.Development, logger, monitoring.NewMetrics())
			if err != nil {
				logger.Error("Failed to create authority", zap.Error(err))
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file (environment overrides it)")
	return cmd
}
