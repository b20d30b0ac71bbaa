package repository

import (
	"context"
	"errors"

	"github.com/jwalitptl/herd-api/internal/model"
	"github.com/jwalitptl/herd-api/pkg/civil"
)

var (
	// ErrNotFound is returned for missing rows and for soft-deleted ones.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write would create a second non-deleted
	// alert with the same (tenant, animal, kind, target date).
	ErrDuplicate = errors.New("duplicate record")
	// ErrStateChanged is returned by a conditional write when the stored
	// state is no longer the one the caller read.
	ErrStateChanged = errors.New("state changed concurrently")
)

// Every method that reads or writes a single tenant's data takes the tenant
// id explicitly and only ever sees non-deleted rows.
type (
	AlertRepository interface {
		// Find returns the non-deleted alert matching the natural key, or
		// ErrNotFound.
		Find(ctx context.Context, key model.AlertKey) (*model.Alert, error)
		// Insert stores a new alert and sets its ID. Returns ErrDuplicate when
		// the natural key is taken.
		Insert(ctx context.Context, alert *model.Alert) error
		Get(ctx context.Context, tenantID string, id int64) (*model.Alert, error)
		// Update writes the editable fields and state if the stored state is
		// still from. Returns ErrStateChanged when it is not and ErrDuplicate
		// when the new natural key collides with another alert.
		Update(ctx context.Context, alert *model.Alert, from model.AlertState) error
		// SetState moves an alert from one state to another, returning
		// ErrStateChanged when the stored state is no longer from.
		SetState(ctx context.Context, tenantID string, id int64, from, to model.AlertState) error
		SoftDelete(ctx context.Context, tenantID string, id int64) error
		List(ctx context.Context, tenantID string, filter model.AlertFilter) ([]*model.Alert, error)
		// CountPending counts the tenant's pending alerts relative to today.
		CountPending(ctx context.Context, tenantID string, today civil.Date) (model.AlertCounts, error)

		// ExpirePending moves every pending alert dated before today to
		// expired, across all tenants, and returns how many changed.
		ExpirePending(ctx context.Context, today civil.Date) (int64, error)
		// ListPending returns a snapshot of all pending alerts across tenants
		// with the animal tag and name joined in.
		ListPending(ctx context.Context) ([]*model.Alert, error)
		// BatchUpdate persists reminder flags and updated_at for each alert.
		// Flags are merged, so a mark already stored is never cleared.
		BatchUpdate(ctx context.Context, alerts []*model.Alert) error
	}

	AnimalRepository interface {
		Create(ctx context.Context, animal *model.Animal) error
		Get(ctx context.Context, tenantID string, id int64) (*model.Animal, error)
		List(ctx context.Context, tenantID string, page model.Page) ([]*model.Animal, error)
		UpdateReproductiveStatus(ctx context.Context, tenantID string, id int64, status model.ReproductiveStatus) error
	}

	ServiceRepository interface {
		Create(ctx context.Context, service *model.BreedingService) error
		ListByAnimal(ctx context.Context, tenantID string, animalID int64) ([]*model.BreedingService, error)
		// LatestForAnimal returns the most recent service on or before the
		// given date, or ErrNotFound.
		LatestForAnimal(ctx context.Context, tenantID string, animalID int64, onOrBefore civil.Date) (*model.BreedingService, error)
	}

	PregnancyCheckRepository interface {
		Create(ctx context.Context, check *model.PregnancyCheck) error
		Get(ctx context.Context, tenantID string, id int64) (*model.PregnancyCheck, error)
		Update(ctx context.Context, check *model.PregnancyCheck) error
	}

	UserRepository interface {
		Get(ctx context.Context, id string) (*model.User, error)
	}
)
