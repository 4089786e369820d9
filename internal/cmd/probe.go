package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shineum/mailshot-lite/internal/config"
)

func newProbeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check that the relay accepts a connection and the credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, cmd, opts, cfg)
			if err != nil {
				return err
			}
			defer s.close()

			out := cmd.OutOrStdout()
			target := s.relay.Provider().Name()
			if cfg.Relay.Transport == config.TransportSMTP {
				target = fmt.Sprintf("smtp %s:%d (%s)", cfg.Relay.Host, cfg.Relay.Port, cfg.Relay.Security)
			}
			fmt.Fprintf(out, "🔍 Probing %s...\n", target)

			supported, err := s.relay.Probe(ctx)
			if !supported {
				fmt.Fprintf(out, "ℹ️  %s cannot be probed without sending; configuration is valid\n", s.relay.Provider().Name())
				return nil
			}
			if err != nil {
				s.rc.Logger.Error("probe failed", "transport", s.relay.Provider().Name(), "error", err)
				return fmt.Errorf("probe failed: %w", err)
			}
			fmt.Fprintln(out, "✅ Relay connection OK")
			return nil
		},
	}
}
