package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"resilientagent/pkg/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /invocations, /ping, /metrics and /stats over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}

			rt, err := newService(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			var gatherer prometheus.Gatherer
			if cfg.Metrics.Enabled {
				gatherer = rt.registry
			}

			//nolint:wrapcheck // Run errors are already wrapped
			return server.New(rt.agent, gatherer).Run(cmd.Context(), cfg.Server.Addr, cfg.Server.ShutdownTimeout.Std())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr and AGENT_ADDR)")
	return cmd
}
