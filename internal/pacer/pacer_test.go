package pacer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	return nil
}

func TestPacer_Wait(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	p := New(2*time.Second, WithSleep(rec.sleep))

	require.NoError(t, p.Wait(context.Background()))
	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, rec.calls)
	assert.Equal(t, 2*time.Second, p.Delay())
}

func TestPacer_WaitZeroDelay(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	p := New(0, WithSleep(rec.sleep))

	require.NoError(t, p.Wait(context.Background()))
	assert.Empty(t, rec.calls)
}

func TestPacer_WaitCancelled(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	p := New(time.Second, WithSleep(rec.sleep))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, p.Wait(ctx), context.Canceled)
	assert.Empty(t, rec.calls)
}

func TestSleep(t *testing.T) {
	t.Parallel()

	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
