// Command agent runs the resilient LLM agent, either as an HTTP service or
// for a single local invocation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"resilientagent/pkg/agent"
	"resilientagent/pkg/config"
	"resilientagent/pkg/logx"
	"resilientagent/pkg/persistence"
	"resilientagent/pkg/version"
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	envFile    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1) //nolint:gocritic // stop() is called explicitly above
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "agent",
		Short:         "Resilient LLM agent with retry and model failover",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a JSON or YAML config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file (ignored when missing)")

	root.AddCommand(
		newServeCommand(opts),
		newInvokeCommand(opts),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agent %s\n", version.String())
		},
	}
}

// loadConfig loads the .env file, then the config file with env overrides.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFile(o.envFile); err != nil {
		return nil, err //nolint:wrapcheck // already descriptive
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// service is an agent plus the resources it owns.
type service struct {
	agent    *agent.Agent
	registry *prometheus.Registry
	ledger   *persistence.Store
}

// newService builds the agent for cfg, opening the ledger when one is configured.
func newService(ctx context.Context, cfg *config.Config) (*service, error) {
	rt := &service{registry: prometheus.NewRegistry()}

	if cfg.Ledger.Path != "" {
		store, err := persistence.Open(cfg.Ledger.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open invocation ledger: %w", err)
		}
		rt.ledger = store
	}

	a, err := agent.New(ctx, cfg, agent.Options{
		Registerer: rt.registry,
		Ledger:     rt.ledger,
	})
	if err != nil {
		rt.Close()
		return nil, err //nolint:wrapcheck // agent.New errors are descriptive
	}
	rt.agent = a
	return rt, nil
}

// Close releases the ledger.
func (r *service) Close() {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.Close(); err != nil {
		logx.Warnf("failed to close invocation ledger: %v", err)
	}
}
