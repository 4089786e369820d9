package cmd

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/shineum/mailshot-lite/internal/campaign"
	"github.com/shineum/mailshot-lite/internal/config"
	"github.com/shineum/mailshot-lite/internal/contact"
	"github.com/shineum/mailshot-lite/internal/email"
	"github.com/shineum/mailshot-lite/internal/pacer"
	"github.com/shineum/mailshot-lite/internal/personalize"
	"github.com/shineum/mailshot-lite/internal/provider"
	"github.com/shineum/mailshot-lite/internal/provider/graph"
	"github.com/shineum/mailshot-lite/internal/provider/resend"
	"github.com/shineum/mailshot-lite/internal/provider/ses"
	"github.com/shineum/mailshot-lite/internal/provider/smtp"
	"github.com/shineum/mailshot-lite/internal/provider/stdout"
	"github.com/shineum/mailshot-lite/internal/relay"
	"github.com/shineum/mailshot-lite/internal/source"
	"github.com/shineum/mailshot-lite/internal/template"
	mstls "github.com/shineum/mailshot-lite/internal/tls"
)

// session wires the pipeline for one command invocation.
type session struct {
	cfg          *config.Config
	rc           *campaign.RunContext
	resolver     *source.Resolver
	relay        *relay.Client
	personalizer *personalize.Personalizer
	pacer        *pacer.Pacer
}

// openSession opens the run context, the source resolver and the relay.
// The caller must call close.
func openSession(ctx context.Context, cmd *cobra.Command, opts *rootOptions, cfg *config.Config) (*session, error) {
	rc, err := campaign.Open(cfg, opts.console(cmd))
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	resolver, err := newResolver(ctx, cfg)
	if err != nil {
		rc.Close()
		return nil, err
	}

	p, err := newProvider(ctx, cfg, cmd.OutOrStdout())
	if err != nil {
		rc.Close()
		return nil, err
	}
	rc.Logger.Info("relay selected", "transport", p.Name(), "sender", cfg.Relay.SenderEmail)

	return &session{
		cfg:          cfg,
		rc:           rc,
		resolver:     resolver,
		relay:        relay.New(p, rc.Logger),
		personalizer: personalize.New(personalize.WithLocale(personalize.ParseLocale(cfg.Campaign.Locale))),
		pacer:        pacer.New(cfg.Campaign.Delay),
	}, nil
}

func (s *session) close() {
	_ = s.rc.Close()
}

func (s *session) loadContacts(ctx context.Context) ([]contact.Contact, error) {
	return contact.NewLoader(s.resolver, s.rc.Logger).LoadFile(ctx, s.cfg.Campaign.Recipients)
}

func (s *session) loadTemplate(ctx context.Context) (template.Template, error) {
	return template.NewStore(s.resolver, s.rc.Logger).Load(ctx, s.cfg.Campaign.Template)
}

// runner assembles a campaign runner. withPacer is false for single sends.
func (s *session) runner(reporter campaign.Reporter, withPacer bool) *campaign.Runner {
	deps := campaign.Deps{
		Personalizer: s.personalizer,
		Builder: email.NewBuilder(
			email.Sender{Email: s.cfg.Relay.SenderEmail, Name: s.cfg.Relay.SenderName},
			s.resolver,
			email.WithLogger(s.rc.Logger),
		),
		Relay:    s.relay,
		Reporter: reporter,
	}
	if withPacer {
		deps.Pacer = s.pacer
	}
	return campaign.New(s.rc, deps)
}

// newResolver builds the source resolver, with an S3 client only when a
// configured location needs one.
func newResolver(ctx context.Context, cfg *config.Config) (*source.Resolver, error) {
	locations := append([]string{cfg.Campaign.Recipients, cfg.Campaign.Template}, cfg.Campaign.Attachments...)
	if !slices.ContainsFunc(locations, source.IsS3) {
		return source.New(), nil
	}

	client, err := source.NewS3Client(ctx, source.S3Config{
		Region:          cfg.S3.Region,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return source.New(source.WithS3(client)), nil
}

// newProvider creates the delivery backend named by relay.transport.
func newProvider(ctx context.Context, cfg *config.Config, out io.Writer) (provider.Provider, error) {
	switch cfg.Relay.Transport {
	case config.TransportSMTP:
		tlsCfg, err := mstls.ClientConfig(cfg.Relay.Host, cfg.Relay.CAFile, cfg.Relay.InsecureSkipVerify)
		if err != nil {
			return nil, err
		}
		return smtp.New(smtp.Config{
			Host:          cfg.Relay.Host,
			Port:          cfg.Relay.Port,
			Security:      cfg.Relay.Security,
			Username:      cfg.Relay.Username,
			Password:      cfg.Relay.Password,
			AuthMechanism: cfg.Relay.AuthMechanism,
			Timeout:       cfg.Relay.Timeout,
			TLSConfig:     tlsCfg,
		})

	case config.TransportSES:
		return ses.New(ctx, ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
		})

	case config.TransportGraph:
		return graph.New(graph.Config{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Sender:       cfg.Graph.Sender,
		}), nil

	case config.TransportResend:
		return resend.New(resend.Config{APIKey: cfg.Resend.APIKey})

	case config.TransportStdout:
		return stdout.NewWithWriter(out), nil

	default:
		return nil, fmt.Errorf("%w: unknown transport %q", config.ErrInvalidConfig, cfg.Relay.Transport)
	}
}
