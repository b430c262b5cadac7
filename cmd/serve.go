package cmd

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/specter/internal/api"
	"github.com/xkilldash9x/specter/internal/observability"
	"github.com/xkilldash9x/specter/internal/service"
)

func (a *app) newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the investigation HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.SetServerAddr(addr)
			}
			return a.withService(cmd, func(ctx context.Context, svc *service.Service, _ *service.Components) error {
				logger := observability.GetLogger()
				handlers := api.NewHandlers(logger, svc)
				server := api.NewServer(a.cfg.Server(), handlers, prometheus.DefaultGatherer, logger)
				err := server.Run(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
