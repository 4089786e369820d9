package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shineum/mailshot-lite/internal/email"
	"github.com/shineum/mailshot-lite/internal/provider"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Send(ctx context.Context, msg *email.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockProvider) Name() string { return "mock" }

type probingProvider struct {
	mockProvider
	err error
}

func (p *probingProvider) Probe(context.Context) error { return p.err }

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func message(to string) *email.Message {
	return &email.Message{MessageID: "<1@example.com>", From: "info@example.com", To: []string{to}}
}

func TestDeliver_Success(t *testing.T) {
	t.Parallel()

	p := &mockProvider{}
	msg := message("ana@example.com")
	p.On("Send", mock.Anything, msg).Return(nil).Once()

	var buf bytes.Buffer
	out := New(p, newLogger(&buf)).Deliver(context.Background(), msg)

	assert.True(t, out.Sent())
	assert.Equal(t, "ana@example.com", out.Recipient)
	assert.Equal(t, "<1@example.com>", out.MessageID)
	assert.Contains(t, buf.String(), `"msg":"delivery accepted"`)
	p.AssertExpectations(t)
}

func TestDeliver_FailureKeepsCause(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("%w: 535 bad credentials", provider.ErrRelayAuth)
	p := &mockProvider{}
	p.On("Send", mock.Anything, mock.Anything).Return(cause)

	var buf bytes.Buffer
	out := New(p, newLogger(&buf)).Deliver(context.Background(), message("ana@example.com"))

	require.False(t, out.Sent())
	assert.ErrorIs(t, out.Cause, provider.ErrRelayAuth)
	assert.Equal(t, "ana@example.com", out.Recipient)
	assert.Contains(t, buf.String(), `"class":"auth"`)
	assert.Contains(t, buf.String(), "535 bad credentials")
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ClassAuth, Classify(fmt.Errorf("x: %w", provider.ErrRelayAuth)))
	assert.Equal(t, ClassTransport, Classify(fmt.Errorf("x: %w", provider.ErrRelayTransport)))
	assert.Equal(t, ClassTransport, Classify(errors.New("other")))
	assert.Equal(t, ClassTransport, Classify(context.Canceled))
}

func TestProbe(t *testing.T) {
	t.Parallel()

	ok, err := New(&mockProvider{}, nil).Probe(context.Background())
	assert.False(t, ok)
	assert.NoError(t, err)

	ok, err = New(&probingProvider{}, nil).Probe(context.Background())
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, err = New(&probingProvider{err: provider.ErrRelayAuth}, nil).Probe(context.Background())
	assert.True(t, ok)
	assert.ErrorIs(t, err, provider.ErrRelayAuth)
}
