package cmd

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shineum/mailshot-lite/internal/logging"
	"github.com/shineum/mailshot-lite/internal/provider/stdout"
	"github.com/shineum/mailshot-lite/internal/smtpd"
	mstls "github.com/shineum/mailshot-lite/internal/tls"
)

func newSinkCmd(opts *rootOptions) *cobra.Command {
	var (
		listen   string
		username string
		password string
		writeCA  string
		noTLS    bool
	)

	cmd := &cobra.Command{
		Use:   "sink",
		Short: "Run a local SMTP relay that prints messages instead of delivering them",
		Long: `Run a local SMTP relay for rehearsals. It offers STARTTLS with a
self-signed certificate (or sink.cert_file/sink.key_file), accepts AUTH
PLAIN and LOGIN, and prints every received message.

Point a campaign at it with relay.host=127.0.0.1, relay.port=2525 and
either relay.ca_file=<--write-ca path> or relay.insecure_skip_verify=true.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Sink.Listen = listen
			}
			if username != "" {
				cfg.Sink.Username = username
			}
			if password != "" {
				cfg.Sink.Password = password
			}

			console := opts.console(cmd)
			if console == nil {
				console = cmd.ErrOrStderr()
			}
			logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Console: console})
			if err != nil {
				return err
			}
			defer logger.Close()

			var tlsCfg *tls.Config
			if !noTLS {
				tlsCfg, err = sinkTLS(cfg.Sink.CertFile, cfg.Sink.KeyFile, cfg.Sink.Listen, writeCA)
				if err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := smtpd.New(smtpd.ServerConfig{
				ListenAddr:     cfg.Sink.Listen,
				Hostname:       "localhost",
				Provider:       stdout.NewWithWriter(cmd.OutOrStdout()),
				TLSConfig:      tlsCfg,
				AuthUsername:   cfg.Sink.Username,
				AuthPassword:   cfg.Sink.Password,
				MaxMessageSize: int(cfg.Sink.MaxMessageSize),
				Logger:         logger.Logger,
			})

			logger.Info("starting mailshot sink",
				"listen", cfg.Sink.Listen,
				"auth_enabled", cfg.SinkAuthEnabled(),
				"tls", tlsCfg != nil,
			)
			if err := server.ListenAndServe(ctx); err != nil {
				return fmt.Errorf("sink: %w", err)
			}
			logger.Info("mailshot sink stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default sink.listen, :2525)")
	cmd.Flags().StringVar(&username, "user", "", "require AUTH with this username")
	cmd.Flags().StringVar(&password, "password", "", "password for --user")
	cmd.Flags().StringVar(&writeCA, "write-ca", "", "write the generated certificate to this PEM file")
	cmd.Flags().BoolVar(&noTLS, "no-tls", false, "do not offer STARTTLS")
	return cmd
}

// sinkTLS loads the configured certificate, or generates one covering
// localhost and the listen host. The generated certificate can be written
// out so clients verify it instead of skipping verification.
func sinkTLS(certFile, keyFile, listen, writeCA string) (*tls.Config, error) {
	if certFile != "" || keyFile != "" {
		return mstls.ServerConfig(certFile, keyFile)
	}

	hosts := []string{"localhost", "127.0.0.1"}
	if host, _, err := net.SplitHostPort(listen); err == nil && host != "" && host != "localhost" && host != "127.0.0.1" {
		hosts = append(hosts, host)
	}
	cert, err := mstls.GenerateSelfSignedCert(hosts...)
	if err != nil {
		return nil, err
	}
	if writeCA != "" {
		if err := mstls.WritePEM(cert, writeCA); err != nil {
			return nil, err
		}
	}
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
