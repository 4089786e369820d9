package cmd

import (
	"fmt"
	"net/mail"

	"github.com/spf13/cobra"

	"github.com/shineum/mailshot-lite/internal/campaign"
	"github.com/shineum/mailshot-lite/internal/config"
	"github.com/shineum/mailshot-lite/internal/contact"
)

// testContact stands in for a real recipient so every placeholder renders.
func testContact(addr string) contact.Contact {
	return contact.Contact{
		Email:     addr,
		FirstName: "Test",
		LastName:  "Recipient",
		Company:   "Test Company",
	}
}

func newTestCmd(opts *rootOptions) *cobra.Command {
	flags := &campaignFlags{}
	var to string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Send one test message to a single address",
		Long: `Render the template for a sample contact and send it to --to.
The recipient list is not read.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := mail.ParseAddress(to)
			if err != nil {
				return fmt.Errorf("%w: invalid --to address %q", config.ErrInvalidConfig, to)
			}

			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := flags.apply(cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			subject := "[TEST] " + cfg.Campaign.Subject
			if cfg.Campaign.Subject == "" {
				subject = "🧪 Test message"
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, cmd, opts, cfg)
			if err != nil {
				return err
			}
			defer s.close()

			tmpl, err := s.loadTemplate(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "🧪 TEST SEND")
			fmt.Fprintln(out, rule)
			fmt.Fprintf(out, "📤 Sending a test message to %s via %s...\n", addr.Address, s.relay.Provider().Name())

			res := s.runner(nil, false).Run(ctx, campaign.Plan{
				Contacts:    []contact.Contact{testContact(addr.Address)},
				Template:    tmpl,
				Subject:     subject,
				Attachments: cfg.Campaign.Attachments,
			})

			if res.Sent == 1 {
				fmt.Fprintln(out, "✅ Test message sent")
				fmt.Fprintf(out, "📧 Check the inbox of %s\n", addr.Address)
				return nil
			}
			if path := s.rc.LogPath(); path != "" {
				fmt.Fprintf(out, "💡 See %s for details\n", path)
			}
			return fmt.Errorf("test send failed: %w", res.Outcomes[0].Cause)
		},
	}

	flags.register(cmd, false)
	cmd.Flags().StringVar(&to, "to", "", "address that receives the test message (required)")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
