// Package pacer spaces out consecutive sends.
package pacer

import (
	"context"
	"time"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Pacer enforces a fixed delay between sends.
type Pacer struct {
	delay time.Duration
	sleep SleepFunc
}

// Option configures a Pacer.
type Option func(*Pacer)

// WithSleep replaces the sleep function. Tests use it to avoid the wall clock.
func WithSleep(fn SleepFunc) Option {
	return func(p *Pacer) {
		p.sleep = fn
	}
}

// New creates a Pacer with the given delay. A non-positive delay disables waiting.
func New(delay time.Duration, opts ...Option) *Pacer {
	p := &Pacer{
		delay: delay,
		sleep: Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Delay returns the configured inter-send delay.
func (p *Pacer) Delay() time.Duration {
	return p.delay
}

// Wait blocks for the configured delay. It returns ctx.Err() if the
// context is cancelled first.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.delay <= 0 {
		return nil
	}
	return p.sleep(ctx, p.delay)
}

// Sleep waits for the specified duration or until the context is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
