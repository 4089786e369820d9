package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shineum/mailshot-lite/internal/config"
	"github.com/shineum/mailshot-lite/internal/source"
)

var errCheckFailed = errors.New("check failed")

func newCheckCmd(opts *rootOptions) *cobra.Command {
	flags := &campaignFlags{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and campaign inputs without sending",
		Long: `Check that the configuration is valid and that the recipient list,
template and attachments can be read.

This validates:
  - Config file syntax and required relay settings
  - Recipient list header and number of valid contacts
  - Template presence and format
  - Attachment locations`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, path, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := flags.apply(cfg); err != nil {
				return err
			}
			if path == "" {
				path = "environment only"
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(out, "✗ Configuration (%s)\n", path)
				return err
			}
			fmt.Fprintf(out, "✓ Configuration (%s): transport %s, sender %s\n", path, cfg.Relay.Transport, cfg.Relay.SenderEmail)
			for _, w := range cfg.Warnings() {
				fmt.Fprintf(out, "⚠ %s\n", w)
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, cmd, opts, cfg)
			if err != nil {
				return err
			}
			defer s.close()

			ok := true
			if contacts, err := s.loadContacts(ctx); err != nil {
				ok = false
				reportProblem(out, "Recipients", err)
			} else {
				fmt.Fprintf(out, "✓ Recipients %s: %d contacts\n", cfg.Campaign.Recipients, len(contacts))
			}

			if tmpl, err := s.loadTemplate(ctx); err != nil {
				ok = false
				reportProblem(out, "Template", err)
			} else {
				fmt.Fprintf(out, "✓ Template %s (%s, %d bytes)\n", tmpl.Name, tmpl.Format, len(tmpl.Text))
			}

			for _, loc := range cfg.Campaign.Attachments {
				if err := checkAttachment(ctx, s.resolver, loc); err != nil {
					// Missing attachments are skipped at send time, so this only warns.
					fmt.Fprintf(out, "⚠ Attachment %s will be skipped: %v\n", loc, err)
					continue
				}
				fmt.Fprintf(out, "✓ Attachment %s\n", loc)
			}

			if cfg.Campaign.Subject == "" {
				fmt.Fprintln(out, "⚠ No subject configured; pass --subject to send")
			}

			if !ok {
				return errCheckFailed
			}
			fmt.Fprintln(out, "✓ Ready to send")
			return nil
		},
	}

	flags.register(cmd, true)
	return cmd
}

func reportProblem(w io.Writer, what string, err error) {
	fmt.Fprintf(w, "✗ %s: %v\n", what, err)
	if h := hintFor(err); h != "" {
		fmt.Fprintf(w, "  💡 %s\n", h)
	}
}

func checkAttachment(ctx context.Context, o source.Opener, location string) error {
	rc, err := o.Open(ctx, location)
	if err != nil {
		return err
	}
	return rc.Close()
}
