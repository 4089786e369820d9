// Package campaign drives a bulk send: one personalized message per
// contact, delivered strictly in order with a pause between sends.
package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shineum/mailshot-lite/internal/contact"
	"github.com/shineum/mailshot-lite/internal/email"
	"github.com/shineum/mailshot-lite/internal/relay"
	"github.com/shineum/mailshot-lite/internal/template"
)

// Personalizer merges contact fields into template text.
type Personalizer interface {
	Personalize(text string, c contact.Contact) string
}

// Builder assembles an outbound message.
type Builder interface {
	Build(ctx context.Context, p email.BuildParams) (*email.Message, error)
}

// Deliverer makes one delivery attempt and reports the outcome.
type Deliverer interface {
	Deliver(ctx context.Context, msg *email.Message) relay.Outcome
}

// Pacer blocks between consecutive sends.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Reporter is told about each recipient as soon as its outcome is known.
// i is 1-based.
type Reporter interface {
	Progress(i, n int, c contact.Contact, out relay.Outcome)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(i, n int, c contact.Contact, out relay.Outcome)

// Progress calls f.
func (f ReporterFunc) Progress(i, n int, c contact.Contact, out relay.Outcome) {
	f(i, n, c, out)
}

// Deps are the collaborators a Runner drives. Pacer and Reporter are optional.
type Deps struct {
	Personalizer Personalizer
	Builder      Builder
	Relay        Deliverer
	Pacer        Pacer
	Reporter     Reporter
}

// Plan is what to send and to whom.
type Plan struct {
	Contacts    []contact.Contact
	Template    template.Template
	Subject     string
	Attachments []string
}

// Result tallies a finished run. Sent + Failed always equals Total.
type Result struct {
	Total    int
	Sent     int
	Failed   int
	Outcomes []relay.Outcome
	Elapsed  time.Duration
}

// SuccessRate formats sent/total as a percentage with one decimal, or
// "n/a" when there was nothing to send.
func (r Result) SuccessRate() string {
	if r.Total == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", float64(r.Sent)/float64(r.Total)*100)
}

// Failures returns the failed outcomes in send order.
func (r Result) Failures() []relay.Outcome {
	var out []relay.Outcome
	for _, o := range r.Outcomes {
		if !o.Sent() {
			out = append(out, o)
		}
	}
	return out
}

func (r *Result) record(out relay.Outcome) {
	r.Outcomes = append(r.Outcomes, out)
	if out.Sent() {
		r.Sent++
	} else {
		r.Failed++
	}
}

// Runner executes campaigns.
type Runner struct {
	deps   Deps
	logger *slog.Logger
}

// New creates a Runner.
func New(rc *RunContext, deps Deps) *Runner {
	logger := slog.Default()
	if rc != nil && rc.Logger != nil {
		logger = rc.Logger
	}
	return &Runner{deps: deps, logger: logger}
}

// Run sends plan to every contact in order and never stops early on a
// per-recipient failure. If ctx is cancelled, the contacts not yet
// attempted are recorded as failed with the cancellation cause.
func (r *Runner) Run(ctx context.Context, plan Plan) Result {
	start := time.Now()
	n := len(plan.Contacts)
	res := Result{Total: n, Outcomes: make([]relay.Outcome, 0, n)}

	r.logger.Info("campaign started",
		"contacts", n,
		"template", plan.Template.Name,
		"subject", plan.Subject,
		"attachments", len(plan.Attachments),
	)

	for i, c := range plan.Contacts {
		if err := ctx.Err(); err != nil {
			r.abandon(&res, plan.Contacts[i:], i, n, err)
			break
		}

		out := r.sendOne(ctx, plan, c)
		res.record(out)
		r.report(i+1, n, c, out)

		if i < n-1 && r.deps.Pacer != nil {
			// A cancelled wait is picked up at the top of the next iteration.
			_ = r.deps.Pacer.Wait(ctx)
		}
	}

	res.Elapsed = time.Since(start)
	r.logger.Info("campaign finished",
		"total", res.Total,
		"sent", res.Sent,
		"failed", res.Failed,
		"success_rate", res.SuccessRate(),
		"elapsed", res.Elapsed,
	)
	return res
}

// sendOne personalizes, builds and delivers one message. Build failures
// and panics become failed outcomes.
func (r *Runner) sendOne(ctx context.Context, plan Plan, c contact.Contact) (out relay.Outcome) {
	out.Recipient = c.Email
	defer func() {
		if p := recover(); p != nil {
			out = relay.Outcome{Recipient: c.Email, Cause: fmt.Errorf("panic while preparing message: %v", p)}
			r.logger.Error("recipient failed", "recipient", c.Email, "error", out.Cause)
		}
	}()

	content := r.deps.Personalizer.Personalize(plan.Template.Text, c)
	body, err := plan.Template.HTML(content)
	if err != nil {
		return r.prepareFailed(c, fmt.Errorf("failed to render template: %w", err))
	}

	msg, err := r.deps.Builder.Build(ctx, email.BuildParams{
		To:          c.Email,
		Subject:     plan.Subject,
		HTML:        body,
		Attachments: plan.Attachments,
	})
	if err != nil {
		return r.prepareFailed(c, fmt.Errorf("failed to build message: %w", err))
	}

	return r.deps.Relay.Deliver(ctx, msg)
}

func (r *Runner) prepareFailed(c contact.Contact, err error) relay.Outcome {
	r.logger.Error("recipient failed", "recipient", c.Email, "error", err)
	return relay.Outcome{Recipient: c.Email, Cause: err}
}

// abandon records every remaining contact as failed.
func (r *Runner) abandon(res *Result, rest []contact.Contact, done, n int, cause error) {
	err := fmt.Errorf("campaign cancelled: %w", cause)
	r.logger.Warn("campaign cancelled", "remaining", len(rest), "error", cause)
	for j, c := range rest {
		out := relay.Outcome{Recipient: c.Email, Cause: err}
		res.record(out)
		r.report(done+j+1, n, c, out)
	}
}

func (r *Runner) report(i, n int, c contact.Contact, out relay.Outcome) {
	if r.deps.Reporter != nil {
		r.deps.Reporter.Progress(i, n, c, out)
	}
}
