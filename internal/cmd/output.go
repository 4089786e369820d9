package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shineum/mailshot-lite/internal/campaign"
	"github.com/shineum/mailshot-lite/internal/contact"
	"github.com/shineum/mailshot-lite/internal/relay"
)

const rule = "=================================================="

// progressPrinter reports each recipient on one line.
func progressPrinter(w io.Writer) campaign.ReporterFunc {
	return func(i, n int, c contact.Contact, out relay.Outcome) {
		if out.Sent() {
			fmt.Fprintf(w, "✅ [%d/%d] Sent to %s\n", i, n, c.Email)
			return
		}
		fmt.Fprintf(w, "❌ [%d/%d] Failed: %s (%s: %v)\n", i, n, c.Email, relay.Classify(out.Cause), out.Cause)
	}
}

func printSummary(w io.Writer, res campaign.Result, logPath string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "📊 SEND SUMMARY")
	fmt.Fprintf(w, "Total contacts: %d\n", res.Total)
	fmt.Fprintf(w, "Sent: %d\n", res.Sent)
	fmt.Fprintf(w, "Failed: %d\n", res.Failed)
	fmt.Fprintf(w, "Success rate: %s\n", res.SuccessRate())
	fmt.Fprintf(w, "Elapsed: %s\n", res.Elapsed.Round(100*time.Millisecond))
	if logPath != "" {
		fmt.Fprintf(w, "Log file: %s\n", logPath)
	}
	if failures := res.Failures(); len(failures) > 0 {
		fmt.Fprintln(w, "\nFailed recipients:")
		for _, o := range failures {
			fmt.Fprintf(w, "  - %s (%s: %v)\n", o.Recipient, relay.Classify(o.Cause), o.Cause)
		}
	}
}

// confirm asks a yes/no question and accepts y, yes, s, si or sí.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s (y/n): ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "s", "si", "sí":
		return true
	}
	return false
}
