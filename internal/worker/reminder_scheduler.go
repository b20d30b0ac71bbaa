package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/herd-api/internal/email"
	"github.com/jwalitptl/herd-api/internal/model"
	"github.com/jwalitptl/herd-api/internal/repository"
	"github.com/jwalitptl/herd-api/internal/service/alert"
	"github.com/jwalitptl/herd-api/pkg/civil"
	"github.com/jwalitptl/herd-api/pkg/clock"
	apperrors "github.com/jwalitptl/herd-api/pkg/errors"
	"github.com/jwalitptl/herd-api/pkg/logger"
	"github.com/jwalitptl/herd-api/pkg/messaging"
	"github.com/jwalitptl/herd-api/pkg/metrics"
)

type ReminderSchedulerConfig struct {
	PollInterval time.Duration
	// Concurrency bounds parallel sends within one cycle.
	Concurrency int
	// DefaultTo receives reminders whose alert has no resolvable recipient.
	DefaultTo string
	LockKey   string
	LockTTL   time.Duration
	// PersistTimeout bounds the end-of-cycle flag write, which runs even
	// after the loop was cancelled.
	PersistTimeout time.Duration
}

// Report summarizes one scheduler cycle.
type Report struct {
	Today    civil.Date `json:"today"`
	LockHeld bool       `json:"lock_held"`
	Pending  int        `json:"pending"`
	Due      int        `json:"due"`
	Sent     int        `json:"sent"`
	Failed   int        `json:"failed"`
	Skipped  int        `json:"skipped"`
}

type duePair struct {
	alert     *model.Alert
	threshold model.Threshold
}

// ReminderScheduler sends the 15, 7 and 0 day reminder emails for pending
// alerts. Each (alert, threshold) pair is sent at most once; the sent flag
// is the only coordination between cycles and instances.
type ReminderScheduler struct {
	repo      repository.AlertRepository
	resolver  alert.Resolver
	sender    email.Sender
	clock     clock.Clock
	locker    messaging.Locker
	publisher messaging.Publisher
	config    ReminderSchedulerConfig
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewReminderScheduler(
	repo repository.AlertRepository,
	resolver alert.Resolver,
	sender email.Sender,
	clk clock.Clock,
	config ReminderSchedulerConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *ReminderScheduler {
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.PersistTimeout <= 0 {
		config.PersistTimeout = 30 * time.Second
	}
	if config.LockKey == "" {
		config.LockKey = "herd:reminders:cycle"
	}
	if config.LockTTL <= 0 {
		config.LockTTL = config.PollInterval
	}

	return &ReminderScheduler{
		repo:     repo,
		resolver: resolver,
		sender:   sender,
		clock:    clk,
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}
}

// WithLocker makes cycles exclusive across instances sharing the locker.
func (s *ReminderScheduler) WithLocker(l messaging.Locker) *ReminderScheduler {
	s.locker = l
	return s
}

// WithPublisher publishes a model.ReminderEvent for every recorded send.
func (s *ReminderScheduler) WithPublisher(p messaging.Publisher) *ReminderScheduler {
	s.publisher = p
	return s
}

// Start runs a cycle immediately and then on every tick until ctx is done.
// Cycle errors are logged and never stop the loop.
func (s *ReminderScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.logger.Info("Starting reminder scheduler", "poll_interval", s.config.PollInterval.String())

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error(err, "Reminder cycle failed")
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Shutting down reminder scheduler")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce executes one cycle. Only store failures are returned; per-pair
// problems are counted in the report.
func (s *ReminderScheduler) RunOnce(ctx context.Context) (Report, error) {
	timer := prometheus.NewTimer(s.metrics.ReminderCycleDuration)
	defer timer.ObserveDuration()

	if s.locker != nil {
		release, err := s.locker.TryLock(ctx, s.config.LockKey, s.config.LockTTL)
		switch {
		case errors.Is(err, messaging.ErrLockHeld):
			s.metrics.ReminderCycles.WithLabelValues("lock_held").Inc()
			s.logger.Debug("Reminder cycle skipped, lock held elsewhere")
			return Report{LockHeld: true}, nil
		case err != nil:
			s.logger.Warn("Cycle lock unavailable, running unlocked", "error", err.Error())
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					s.logger.Warn("Failed to release cycle lock", "error", err.Error())
				}
			}()
		}
	}

	report, err := s.cycle(ctx)
	switch {
	case err != nil:
		s.metrics.ReminderCycles.WithLabelValues("store_failure").Inc()
	case ctx.Err() != nil:
		s.metrics.ReminderCycles.WithLabelValues("cancelled").Inc()
	default:
		s.metrics.ReminderCycles.WithLabelValues("ok").Inc()
	}
	return report, err
}

func (s *ReminderScheduler) cycle(ctx context.Context) (Report, error) {
	report := Report{Today: s.clock.Today()}

	pending, err := s.repo.ListPending(ctx)
	if err != nil {
		return report, apperrors.NewStoreFailure("list pending alerts", err)
	}
	report.Pending = len(pending)
	s.metrics.PendingAlerts.Set(float64(len(pending)))

	var due []duePair
	for _, a := range pending {
		if t, ok := a.DueThreshold(report.Today); ok {
			due = append(due, duePair{alert: a, threshold: t})
		}
	}
	report.Due = len(due)
	if len(due) == 0 {
		s.logger.Debug("Reminder cycle finished", "today", report.Today.String(), "pending", report.Pending)
		return report, nil
	}

	var (
		mu      sync.Mutex
		updated []*model.Alert
		events  []model.ReminderEvent
		g       errgroup.Group
	)
	g.SetLimit(s.config.Concurrency)

	for _, p := range due {
		if ctx.Err() != nil {
			break
		}
		p := p
		g.Go(func() error {
			to, outcome := s.deliver(ctx, p)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeSent:
				report.Sent++
				updated = append(updated, p.alert)
				events = append(events, model.ReminderEvent{
					AlertID:   p.alert.ID,
					TenantID:  p.alert.TenantID,
					AnimalID:  p.alert.AnimalID,
					Kind:      p.alert.Kind,
					Threshold: p.threshold,
					Recipient: to,
					SentAt:    *p.alert.Reminders[p.threshold].SentAt,
				})
			case outcomeFailed:
				report.Failed++
			case outcomeSkipped:
				report.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(updated) > 0 {
		// Flags for emails already sent must be recorded even when shutting down.
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.PersistTimeout)
		defer cancel()
		if err := s.repo.BatchUpdate(persistCtx, updated); err != nil {
			return report, apperrors.NewStoreFailure("persist reminder flags", err)
		}
		s.publish(persistCtx, events)
	}

	s.logger.Info("Reminder cycle finished",
		"today", report.Today.String(),
		"pending", report.Pending,
		"due", report.Due,
		"sent", report.Sent,
		"failed", report.Failed,
		"skipped", report.Skipped)
	return report, nil
}

type deliveryOutcome int

const (
	outcomeSent deliveryOutcome = iota
	outcomeFailed
	outcomeSkipped
)

// deliver sends one reminder and marks it on the alert. It only touches its
// own alert, and an alert has at most one due threshold per cycle.
func (s *ReminderScheduler) deliver(ctx context.Context, p duePair) (string, deliveryOutcome) {
	a, threshold := p.alert, p.threshold
	label := threshold.String()
	log := s.logger.WithFields(map[string]interface{}{
		"alert_id":  a.ID,
		"threshold": label,
	})

	to, err := s.resolver.ResolveEmail(ctx, a)
	if err != nil {
		s.metrics.RemindersSkipped.WithLabelValues("resolver_error").Inc()
		log.Error(err, "Failed to resolve reminder recipient")
		return "", outcomeSkipped
	}
	if to == "" {
		to = s.config.DefaultTo
	}
	if to == "" {
		s.metrics.RemindersSkipped.WithLabelValues("no_recipient").Inc()
		log.Warn("Reminder skipped, no recipient and no default address")
		return "", outcomeSkipped
	}

	msg, err := email.RenderReminder(a, threshold)
	if err != nil {
		s.metrics.RemindersFailed.WithLabelValues(label).Inc()
		log.Error(err, "Failed to render reminder")
		return to, outcomeFailed
	}
	err = s.sender.Send(ctx, to, msg.Subject, msg.HTML)
	if errors.Is(err, email.ErrDisabled) {
		s.metrics.RemindersSkipped.WithLabelValues("sender_disabled").Inc()
		log.Debug("Reminder not delivered, smtp disabled", "to", to)
		return to, outcomeSkipped
	}
	if err != nil {
		s.metrics.RemindersFailed.WithLabelValues(label).Inc()
		log.Error(apperrors.NewSendFailure(to, err), "Failed to send reminder")
		return to, outcomeFailed
	}

	now := s.clock.Now()
	if a.Reminders == nil {
		a.Reminders = model.Reminders{}
	}
	a.Reminders.Mark(threshold, now)
	a.UpdatedAt = now
	s.metrics.RemindersSent.WithLabelValues(label).Inc()
	log.Debug("Reminder sent", "to", to)
	return to, outcomeSent
}

func (s *ReminderScheduler) publish(ctx context.Context, events []model.ReminderEvent) {
	if s.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := s.publisher.Publish(ctx, messaging.ChannelReminders, ev); err != nil {
			s.logger.Warn("Failed to publish reminder event", "alert_id", ev.AlertID, "error", err.Error())
		}
	}
}
