package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/jwalitptl/herd-api/internal/email"
	"github.com/jwalitptl/herd-api/internal/model"
	"github.com/jwalitptl/herd-api/internal/repository"
	"github.com/jwalitptl/herd-api/pkg/clock"
	apperrors "github.com/jwalitptl/herd-api/pkg/errors"
	"github.com/jwalitptl/herd-api/pkg/logger"
	"github.com/jwalitptl/herd-api/pkg/metrics"
)

// Resolver finds the address for an alert's recipient. An empty address
// with a nil error means the alert has nobody to notify.
type Resolver interface {
	ResolveEmail(ctx context.Context, alert *model.Alert) (string, error)
}

const errDuplicateAlert = "an alert of the same kind and date already exists for this animal"

// Service is the user-facing alert API. Lifecycle operations come from the
// embedded Engine.
type Service struct {
	*Engine
	repo     repository.AlertRepository
	animals  repository.AnimalRepository
	sender   email.Sender
	resolver Resolver
}

func NewService(
	repo repository.AlertRepository,
	animals repository.AnimalRepository,
	sender email.Sender,
	resolver Resolver,
	clk clock.Clock,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		Engine:   NewEngine(repo, clk, log, m),
		repo:     repo,
		animals:  animals,
		sender:   sender,
		resolver: resolver,
	}
}

// List expires past-due alerts, then returns the tenant's alerts matching
// filter.
func (s *Service) List(ctx context.Context, tenantID string, filter model.AlertFilter) ([]*model.Alert, error) {
	today := s.clock.Today()
	if _, err := s.ExpirePastDue(ctx, today); err != nil {
		return nil, err
	}

	alerts, err := s.repo.List(ctx, tenantID, filter.Resolve(today))
	if err != nil {
		return nil, apperrors.NewStoreFailure("list alerts", err)
	}
	return alerts, nil
}

// Summary returns the dashboard counters over the tenant's pending alerts
// and the next pending ones from today on. Overdue alerts are counted as they
// stand, without expiring them first.
func (s *Service) Summary(ctx context.Context, tenantID string) (*model.AlertSummary, error) {
	today := s.clock.Today()
	counts, err := s.repo.CountPending(ctx, tenantID, today)
	if err != nil {
		return nil, apperrors.NewStoreFailure("count alerts", err)
	}
	upcoming, err := s.repo.List(ctx, tenantID, model.AlertFilter{
		State: model.AlertStatePending,
		From:  today,
		Page:  model.Page{Limit: model.SummaryUpcomingLimit},
	})
	if err != nil {
		return nil, apperrors.NewStoreFailure("list upcoming alerts", err)
	}
	return &model.AlertSummary{Today: today, AlertCounts: counts, Upcoming: upcoming}, nil
}

func (s *Service) Get(ctx context.Context, tenantID string, id int64) (*model.Alert, error) {
	return s.get(ctx, tenantID, id)
}

// Create stores a manual alert. The recipient defaults to the caller.
func (s *Service) Create(ctx context.Context, tenantID string, req *model.CreateAlertRequest) (*model.Alert, error) {
	if err := s.checkAnimal(ctx, tenantID, req.AnimalID); err != nil {
		return nil, err
	}

	alert := &model.Alert{
		TenantID:    tenantID,
		AnimalID:    req.AnimalID,
		Kind:        req.Kind,
		TargetDate:  req.TargetDate,
		State:       req.State,
		Trigger:     req.Trigger,
		Note:        req.Note,
		RecipientID: req.RecipientID,
		Reminders:   model.Reminders{},
		CreatedAt:   s.clock.Now(),
	}
	if alert.State == "" {
		alert.State = model.AlertStatePending
	}
	if alert.RecipientID == nil {
		alert.RecipientID = &tenantID
	}

	if err := s.checkDuplicate(ctx, alert.Key(), 0); err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, alert); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict(errDuplicateAlert, err)
		}
		return nil, apperrors.NewStoreFailure("create alert", err)
	}
	s.metrics.AlertsCreated.WithLabelValues(string(alert.Kind)).Inc()
	return alert, nil
}

// Update replaces the editable fields. A nil recipient keeps the current one.
func (s *Service) Update(ctx context.Context, tenantID string, id int64, req *model.UpdateAlertRequest) (*model.Alert, error) {
	alert, err := s.get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkAnimal(ctx, tenantID, req.AnimalID); err != nil {
		return nil, err
	}

	prev := alert.State
	if !prev.CanBecome(req.State) {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("cannot change alert state from %s to %s", prev, req.State), nil)
	}

	alert.AnimalID = req.AnimalID
	alert.Kind = req.Kind
	alert.TargetDate = req.TargetDate
	alert.State = req.State
	alert.Trigger = req.Trigger
	alert.Note = req.Note
	if req.RecipientID != nil {
		alert.RecipientID = req.RecipientID
	}

	if err := s.checkDuplicate(ctx, alert.Key(), alert.ID); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, alert, prev); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, apperrors.NewConflict(errDuplicateAlert, err)
		case errors.Is(err, repository.ErrStateChanged):
			return nil, apperrors.NewConflict("alert was changed by another request, reload and retry", err)
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NewNotFound("alert", err)
		}
		return nil, apperrors.NewStoreFailure("update alert", err)
	}
	return alert, nil
}

func (s *Service) Delete(ctx context.Context, tenantID string, id int64) error {
	if err := s.repo.SoftDelete(ctx, tenantID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("alert", err)
		}
		return apperrors.NewStoreFailure("delete alert", err)
	}
	s.log.Info("alert deleted", "alert_id", id)
	return nil
}

// SendTestEmail mails a short test message to the alert's own recipient and
// returns the address used. The configured default address is not used here.
func (s *Service) SendTestEmail(ctx context.Context, tenantID string, id int64) (string, error) {
	alert, err := s.get(ctx, tenantID, id)
	if err != nil {
		return "", err
	}

	to, err := s.resolver.ResolveEmail(ctx, alert)
	if err != nil {
		return "", apperrors.NewStoreFailure("resolve recipient", err)
	}
	if to == "" {
		return "", apperrors.NewBadRequest("alert has no recipient with an email address", nil)
	}

	msg, err := email.RenderTest(alert)
	if err != nil {
		return "", apperrors.NewInternal(err)
	}
	if err := s.sender.Send(ctx, to, msg.Subject, msg.HTML); err != nil {
		return "", apperrors.NewSendFailure(to, err)
	}
	return to, nil
}

func (s *Service) checkAnimal(ctx context.Context, tenantID string, animalID int64) error {
	_, err := s.animals.Get(ctx, tenantID, animalID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewBadRequest("invalid animal", err)
	default:
		return apperrors.NewStoreFailure("get animal", err)
	}
}

func (s *Service) checkDuplicate(ctx context.Context, key model.AlertKey, selfID int64) error {
	existing, err := s.repo.Find(ctx, key)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return apperrors.NewStoreFailure("check duplicate alert", err)
	case existing.ID != selfID:
		return apperrors.NewConflict(errDuplicateAlert, nil)
	}
	return nil
}
