package email

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/herd-api/pkg/circuitbreaker"
	"github.com/jwalitptl/herd-api/pkg/logger"
)

type fakeDialer struct {
	mu    sync.Mutex
	sent  []*gomail.Message
	err   error
	block chan struct{}
	calls int
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.mu.Lock()
	d.calls++
	block, err := d.block, d.err
	d.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.sent = append(d.sent, m...)
	d.mu.Unlock()
	return nil
}

func testConfig() Config {
	return Config{
		FromAddress:      "alerts@ranch.test",
		FromName:         "Herd Control",
		SendTimeout:      time.Second,
		BreakerThreshold: 2,
		BreakerCooldown:  time.Minute,
	}
}

func TestSendBuildsMultipartMessage(t *testing.T) {
	d := &fakeDialer{}
	s := newSMTPSender(testConfig(), d, logger.Nop())

	err := s.Send(context.Background(), "ana@ranch.test", "[Alert] Dry-off in 7 days - GT-001", "<h2>7-day reminder</h2><p>Dry-off</p>")
	require.NoError(t, err)
	require.Len(t, d.sent, 1)

	var raw bytes.Buffer
	_, err = d.sent[0].WriteTo(&raw)
	require.NoError(t, err)
	out := raw.String()
	assert.Contains(t, out, "To: ana@ranch.test")
	assert.Contains(t, out, "alerts@ranch.test")
	assert.Contains(t, out, "text/plain")
	assert.Contains(t, out, "text/html")
	assert.Contains(t, out, "7-day reminder")
}

func TestSendRejectsEmptyRecipient(t *testing.T) {
	d := &fakeDialer{}
	s := newSMTPSender(testConfig(), d, logger.Nop())

	assert.Error(t, s.Send(context.Background(), "", "s", "b"))
	assert.Zero(t, d.calls)
}

func TestSendTimesOut(t *testing.T) {
	d := &fakeDialer{block: make(chan struct{})}
	t.Cleanup(func() { close(d.block) })

	cfg := testConfig()
	cfg.SendTimeout = 20 * time.Millisecond
	s := newSMTPSender(cfg, d, logger.Nop())

	err := s.Send(context.Background(), "ana@ranch.test", "s", "<p>b</p>")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	d := &fakeDialer{err: errors.New("535 authentication failed")}
	s := newSMTPSender(testConfig(), d, logger.Nop())
	ctx := context.Background()

	assert.Error(t, s.Send(ctx, "ana@ranch.test", "s", "b"))
	assert.Error(t, s.Send(ctx, "ana@ranch.test", "s", "b"))

	err := s.Send(ctx, "ana@ranch.test", "s", "b")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 2, d.calls)
}

func TestLogSenderReportsDisabled(t *testing.T) {
	err := NewLogSender(logger.Nop()).Send(context.Background(), "ana@ranch.test", "s", "<p>b</p>")
	assert.ErrorIs(t, err, ErrDisabled)
}
