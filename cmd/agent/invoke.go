package main

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"resilientagent/pkg/logx"
)

func newInvokeCommand(opts *rootOptions) *cobra.Command {
	var (
		prompt    string
		showStats bool
	)

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Run one invocation locally and print the JSON result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			rt, err := newService(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			payload := map[string]any{}
			if prompt != "" {
				payload["prompt"] = prompt
			}

			ctx := logx.WithRequestID(cmd.Context(), uuid.NewString())
			out := rt.agent.HandleInvocation(ctx, payload)
			if showStats {
				out["stats"] = rt.agent.Stats()
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out) //nolint:wrapcheck // stdout write errors need no context
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt to send")
	cmd.Flags().BoolVar(&showStats, "stats", false, "Include backend and invoker statistics in the output")
	return cmd
}
