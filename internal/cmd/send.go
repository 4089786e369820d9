package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shineum/mailshot-lite/internal/campaign"
	"github.com/shineum/mailshot-lite/internal/config"
)

// campaignFlags are the per-run overrides shared by send, test and check.
type campaignFlags struct {
	recipients  string
	template    string
	subject     string
	attachments []string
	delay       string
	locale      string
}

func (f *campaignFlags) register(cmd *cobra.Command, withRecipients bool) {
	if withRecipients {
		cmd.Flags().StringVarP(&f.recipients, "recipients", "r", "", "recipient CSV (local path or s3://bucket/key)")
		cmd.Flags().StringVar(&f.delay, "delay", "", "pause between sends, e.g. 2s or 2")
	}
	cmd.Flags().StringVarP(&f.template, "template", "t", "", "HTML or Markdown template (local path or s3://bucket/key)")
	cmd.Flags().StringVarP(&f.subject, "subject", "s", "", "message subject")
	cmd.Flags().StringArrayVarP(&f.attachments, "attach", "a", nil, "attachment path or s3:// location (repeatable)")
	cmd.Flags().StringVar(&f.locale, "locale", "", "date and greeting locale (en, es)")
}

// apply copies non-empty flags onto cfg.
func (f *campaignFlags) apply(cfg *config.Config) error {
	if f.recipients != "" {
		cfg.Campaign.Recipients = f.recipients
	}
	if f.template != "" {
		cfg.Campaign.Template = f.template
	}
	if f.subject != "" {
		cfg.Campaign.Subject = f.subject
	}
	if len(f.attachments) > 0 {
		cfg.Campaign.Attachments = f.attachments
	}
	if f.locale != "" {
		cfg.Campaign.Locale = f.locale
	}
	if f.delay != "" {
		d, err := config.ParseDelay(f.delay)
		if err != nil {
			return fmt.Errorf("%w: --delay: %w", config.ErrInvalidConfig, err)
		}
		cfg.Campaign.Delay = d
	}
	return nil
}

var errNoSubject = fmt.Errorf("%w: a subject is required (--subject or campaign.subject)", config.ErrInvalidConfig)

func newSendCmd(opts *rootOptions) *cobra.Command {
	flags := &campaignFlags{}
	var yes bool

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send the campaign to every recipient",
		Long: `Send one personalized message to each recipient in the list.

Recipients are processed in file order, one at a time, with the configured
delay between sends. A failed recipient never stops the run; the summary
reports how many were sent and how many failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			if cfg.Campaign.Subject == "" {
				return errNoSubject
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := openSession(ctx, cmd, opts, cfg)
			if err != nil {
				return err
			}
			defer s.close()

			contacts, err := s.loadContacts(ctx)
			if err != nil {
				return err
			}
			tmpl, err := s.loadTemplate(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "🚀 MAILSHOT CAMPAIGN")
			fmt.Fprintln(out, rule)
			fmt.Fprintf(out, "📧 Recipients: %s (%d contacts)\n", cfg.Campaign.Recipients, len(contacts))
			fmt.Fprintf(out, "📝 Template: %s\n", cfg.Campaign.Template)
			fmt.Fprintf(out, "📋 Subject: %s\n", cfg.Campaign.Subject)
			fmt.Fprintf(out, "📮 Relay: %s\n", s.relay.Provider().Name())
			fmt.Fprintf(out, "⏱️ Delay: %s\n", s.pacer.Delay())
			fmt.Fprintf(out, "🌐 Locale: %s\n", s.personalizer.Locale())
			if len(cfg.Campaign.Attachments) > 0 {
				fmt.Fprintf(out, "📎 Attachments: %d\n", len(cfg.Campaign.Attachments))
			}

			if !yes && !confirm(cmd.InOrStdin(), out, "\nProceed with the send?") {
				fmt.Fprintln(out, "Send cancelled by user")
				return nil
			}
			fmt.Fprintln(out)

			res := s.runner(progressPrinter(out), true).Run(ctx, campaign.Plan{
				Contacts:    contacts,
				Template:    tmpl,
				Subject:     cfg.Campaign.Subject,
				Attachments: cfg.Campaign.Attachments,
			})
			printSummary(out, res, s.rc.LogPath())

			if err := ctx.Err(); err != nil {
				return fmt.Errorf("campaign interrupted: %w", err)
			}
			return nil
		},
	}

	flags.register(cmd, true)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
