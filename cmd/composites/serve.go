package main

import (
	"fmt"
	"net"

	"github.com/forest-guardian/monthly-composites/internal/composite"
	"github.com/forest-guardian/monthly-composites/internal/rpc"
	"github.com/forest-guardian/monthly-composites/internal/sentinel"
	"github.com/forest-guardian/monthly-composites/internal/ui"
	"github.com/spf13/cobra"
)

func newServeCommand(app *application) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve composite summaries over gRPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ui.PrintBanner()
			cfg := app.cfg
			if port != 0 {
				cfg.GrpcPort = port
			}
			if err := cfg.ValidateService(); err != nil {
				return err
			}

			source, err := sentinel.NewSource(cfg, app.log)
			if err != nil {
				return err
			}
			defaults := composite.OptionsFromConfig(cfg, nil)
			service := rpc.NewService(source, defaults, app.log.WithField("component", "rpc"))

			lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GrpcPort))
			if err != nil {
				return fmt.Errorf("failed to listen on port %d: %w", cfg.GrpcPort, err)
			}
			ui.PrintSuccess(fmt.Sprintf("Serving %s on port %d", rpc.ServiceName, cfg.GrpcPort))
			return rpc.Serve(cmd.Context(), rpc.NewServer(service, app.log), lis)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "gRPC port (overrides GRPC_PORT)")
	return cmd
}
