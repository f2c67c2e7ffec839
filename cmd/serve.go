package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/observability"
	"github.com/xkilldash9x/pilot-cli/internal/server"
)

// newServeCmd creates and configures the `serve` command.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the REST API server for managing tasks",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("server.host", cmd.Flags().Lookup("host")); err != nil {
				return err
			}
			return viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			// cmd.Context() is cancelled on SIGINT/SIGTERM by Execute.
			ctx := cmd.Context()

			srv := server.New(cfg, logger)

			g, gCtx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("API server listening",
					zap.String("host", cfg.Server.Host),
					zap.Int("port", cfg.Server.Port),
				)
				return srv.Start()
			})
			g.Go(func() error {
				<-gCtx.Done()
				logger.Info("Shutting down API server")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			if err := g.Wait(); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("Server stopped")
			return nil
		},
	}

	serveCmd.Flags().String("host", "", "Interface to listen on. (Overrides config/env)")
	serveCmd.Flags().Int("port", 0, "TCP port to listen on. (Overrides config/env)")

	return serveCmd
}
