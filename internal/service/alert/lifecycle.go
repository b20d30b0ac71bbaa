package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/jwalitptl/herd-api/internal/model"
	"github.com/jwalitptl/herd-api/internal/repository"
	"github.com/jwalitptl/herd-api/pkg/civil"
	"github.com/jwalitptl/herd-api/pkg/clock"
	apperrors "github.com/jwalitptl/herd-api/pkg/errors"
	"github.com/jwalitptl/herd-api/pkg/logger"
	"github.com/jwalitptl/herd-api/pkg/metrics"
)

// EnsureRequest identifies an alert by its natural key plus the fields a new
// alert starts with.
type EnsureRequest struct {
	TenantID    string
	AnimalID    int64
	Kind        model.AlertKind
	TargetDate  civil.Date
	Note        string
	Trigger     string
	RecipientID *string
}

// Engine owns alert state transitions and create-if-absent.
type Engine struct {
	repo    repository.AlertRepository
	clock   clock.Clock
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewEngine(repo repository.AlertRepository, clk clock.Clock, log *logger.Logger, m *metrics.Metrics) *Engine {
	return &Engine{repo: repo, clock: clk, log: log, metrics: m}
}

// EnsureExists returns the live alert for the request's key, creating a
// pending one when none exists. created reports whether this call inserted
// it. A concurrent insert of the same key is resolved by the store's unique
// constraint and reported as found.
func (e *Engine) EnsureExists(ctx context.Context, req EnsureRequest) (alert *model.Alert, created bool, err error) {
	key := model.AlertKey{TenantID: req.TenantID, AnimalID: req.AnimalID, Kind: req.Kind, TargetDate: req.TargetDate}

	existing, err := e.repo.Find(ctx, key)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, apperrors.NewStoreFailure("ensure alert", err)
	}

	alert = &model.Alert{
		TenantID:    req.TenantID,
		AnimalID:    req.AnimalID,
		Kind:        req.Kind,
		TargetDate:  req.TargetDate,
		State:       model.AlertStatePending,
		Trigger:     req.Trigger,
		Note:        req.Note,
		RecipientID: req.RecipientID,
		Reminders:   model.Reminders{},
		CreatedAt:   e.clock.Now(),
	}
	err = e.repo.Insert(ctx, alert)
	switch {
	case err == nil:
		e.metrics.AlertsCreated.WithLabelValues(string(alert.Kind)).Inc()
		e.log.Debug("alert created", "alert_id", alert.ID, "animal_id", alert.AnimalID,
			"kind", alert.Kind, "target_date", alert.TargetDate.String())
		return alert, true, nil
	case errors.Is(err, repository.ErrDuplicate):
		existing, findErr := e.repo.Find(ctx, key)
		if findErr != nil {
			return nil, false, apperrors.NewStoreFailure("ensure alert", findErr)
		}
		return existing, false, nil
	default:
		return nil, false, apperrors.NewStoreFailure("ensure alert", err)
	}
}

// ExpirePastDue moves every pending alert dated before today to expired.
func (e *Engine) ExpirePastDue(ctx context.Context, today civil.Date) (int64, error) {
	n, err := e.repo.ExpirePending(ctx, today)
	if err != nil {
		return 0, apperrors.NewStoreFailure("expire alerts", err)
	}
	if n > 0 {
		e.metrics.AlertsExpired.Add(float64(n))
		e.log.Info("expired past-due alerts", "count", n, "today", today.String())
	}
	return n, nil
}

// MarkNotified moves an alert to notified. Attended alerts are left alone.
func (e *Engine) MarkNotified(ctx context.Context, tenantID string, id int64) (*model.Alert, error) {
	return e.transition(ctx, tenantID, id, model.TransitionNotify)
}

func (e *Engine) MarkAttended(ctx context.Context, tenantID string, id int64) (*model.Alert, error) {
	return e.transition(ctx, tenantID, id, model.TransitionAttend)
}

// Reopen returns an alert to pending from any state.
func (e *Engine) Reopen(ctx context.Context, tenantID string, id int64) (*model.Alert, error) {
	return e.transition(ctx, tenantID, id, model.TransitionReopen)
}

// transitionAttempts bounds how often a transition re-reads an alert whose
// state moved between the read and the conditional write.
const transitionAttempts = 3

func (e *Engine) transition(ctx context.Context, tenantID string, id int64, t model.Transition) (*model.Alert, error) {
	for attempt := 0; attempt < transitionAttempts; attempt++ {
		alert, err := e.get(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}

		next, changed := alert.State.Apply(t)
		if !changed {
			return alert, nil
		}
		prev := alert.State
		err = e.repo.SetState(ctx, tenantID, id, prev, next)
		switch {
		case err == nil:
			alert.State = next
			e.log.Info("alert state changed", "alert_id", id, "from", prev, "to", next)
			return alert, nil
		case errors.Is(err, repository.ErrStateChanged):
			e.log.Debug("alert state moved during transition, retrying", "alert_id", id, "transition", t)
			continue
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NewNotFound("alert", err)
		default:
			return nil, apperrors.NewStoreFailure(fmt.Sprintf("%s alert", t), err)
		}
	}
	return nil, apperrors.NewConflict(fmt.Sprintf("alert %d changed concurrently", id), repository.ErrStateChanged)
}

func (e *Engine) get(ctx context.Context, tenantID string, id int64) (*model.Alert, error) {
	alert, err := e.repo.Get(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("alert", err)
		}
		return nil, apperrors.NewStoreFailure("get alert", err)
	}
	return alert, nil
}
