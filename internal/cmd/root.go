/*
Package cmd provides the CLI commands for mailshot.
*/
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shineum/mailshot-lite/internal/config"
)

// Version is set at build time.
var Version = "dev"

// rootOptions are the global flags shared by every subcommand.
type rootOptions struct {
	configPath string
	transport  string
	logLevel   string
	verbose    bool
}

// newRootCmd builds the command tree. Each call returns independent
// commands, so tests can run them side by side.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "mailshot",
		Short: "Personalized bulk email campaigns",
		Long: `mailshot sends one personalized message per recipient in a CSV list,
merging each contact's fields into an HTML or Markdown template and
delivering through an SMTP relay or an email API.

Example:
  mailshot check                          # Validate config and inputs
  mailshot probe                          # Test the relay connection
  mailshot test --to you@example.com      # Send a single test message
  mailshot send --subject "Spring offers" # Run the campaign
  mailshot sink                           # Local relay for rehearsals`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: first of "+strings.Join(config.DefaultFiles, ", ")+")")
	root.PersistentFlags().StringVar(&opts.transport, "transport", "", "override relay.transport (smtp, ses, graph, resend, stdout)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "mirror log output to stderr")

	root.AddCommand(newSendCmd(opts))
	root.AddCommand(newTestCmd(opts))
	root.AddCommand(newProbeCmd(opts))
	root.AddCommand(newSinkCmd(opts))
	root.AddCommand(newCheckCmd(opts))

	return root
}

// Execute runs the CLI and prints any error with a hint.
func Execute() error {
	root := newRootCmd()
	err := root.Execute()
	if err != nil {
		printError(root.ErrOrStderr(), err)
	}
	return err
}

// loadConfig resolves the config file and applies global flag overrides.
// It does not validate; commands validate after their own overrides.
func (o *rootOptions) loadConfig() (*config.Config, string, error) {
	path := o.configPath
	if path == "" {
		path = config.Discover("")
	}

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, path, err
	}

	if o.transport != "" {
		cfg.Relay.Transport = strings.ToLower(o.transport)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = strings.ToLower(o.logLevel)
	}
	return cfg, path, nil
}

// console returns where log lines are mirrored, or nil when quiet.
func (o *rootOptions) console(cmd *cobra.Command) io.Writer {
	if o.verbose {
		return cmd.ErrOrStderr()
	}
	return nil
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "❌ Error: %v\n", err)
	if h := hintFor(err); h != "" {
		fmt.Fprintf(w, "💡 %s\n", h)
	}
}
