package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/herd-api/pkg/circuitbreaker"
	"github.com/jwalitptl/herd-api/pkg/logger"
)

// ErrDisabled is returned by LogSender. The message was logged, not
// delivered, so callers must not record it as sent.
var ErrDisabled = errors.New("smtp relay not configured")

// Sender delivers one HTML email. A nil error means the message was handed
// to the mail server.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type Config struct {
	Host             string
	Port             int
	Username         string
	Password         string
	FromAddress      string
	FromName         string
	UseSSL           bool
	SendTimeout      time.Duration
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
}

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends through an SMTP relay. Each send is bounded by
// SendTimeout and guarded by a circuit breaker so a dead relay fails fast.
type SMTPSender struct {
	cfg     Config
	dialer  mailDialer
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

func NewSMTPSender(cfg Config, log *logger.Logger) *SMTPSender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.UseSSL
	return newSMTPSender(cfg, d, log)
}

func newSMTPSender(cfg Config, d mailDialer, log *logger.Logger) *SMTPSender {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:                "smtp",
		ConsecutiveFailures: cfg.BreakerThreshold,
		Timeout:             cfg.BreakerCooldown,
		OnStateChange: func(name, from, to string) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
		},
	})
	return &SMTPSender{cfg: cfg, dialer: d, breaker: breaker, log: log}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if to == "" {
		return errors.New("missing recipient address")
	}

	msg := Message{Subject: subject, HTML: htmlBody}
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.cfg.FromAddress, s.cfg.FromName)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", msg.Text())
	m.AddAlternative("text/html", htmlBody)

	err := s.breaker.Execute(func() error {
		return s.dialWithTimeout(ctx, m)
	})
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

// dialWithTimeout stops waiting after SendTimeout or when ctx ends. The
// SMTP exchange itself cannot be interrupted and finishes in the background.
func (s *SMTPSender) dialWithTimeout(ctx context.Context, m *gomail.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSender logs messages instead of sending them and reports ErrDisabled.
// Used when no SMTP sender address is configured.
type LogSender struct {
	log *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	s.log.Info("email not sent: smtp disabled", "to", to, "subject", subject)
	return ErrDisabled
}
