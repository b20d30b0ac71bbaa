package postgres

import (
	"context"
	"fmt"

	"github.com/jwalitptl/herd-api/internal/model"
	"github.com/jwalitptl/herd-api/internal/repository"
	"github.com/jwalitptl/herd-api/pkg/civil"
)

const serviceColumns = `id, tenant_id, animal_id, service_date, kind, sire, notes, created_at`

type serviceRepository struct {
	*BaseRepository
}

func NewServiceRepository(base *BaseRepository) repository.ServiceRepository {
	return &serviceRepository{BaseRepository: base}
}

func (r *serviceRepository) Create(ctx context.Context, service *model.BreedingService) error {
	query := `
		INSERT INTO breeding_services (tenant_id, animal_id, service_date, kind, sire, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		service.TenantID, service.AnimalID, service.Date, service.Kind, service.Sire, service.Notes,
	).Scan(&service.ID, &service.CreatedAt)
	if err := r.observe("service_create", err); err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	return nil
}

func (r *serviceRepository) ListByAnimal(ctx context.Context, tenantID string, animalID int64) ([]*model.BreedingService, error) {
	query := `SELECT ` + serviceColumns + ` FROM breeding_services
		WHERE tenant_id = $1 AND animal_id = $2
		ORDER BY service_date DESC, id DESC`

	services := make([]*model.BreedingService, 0)
	err := r.db.SelectContext(ctx, &services, query, tenantID, animalID)
	if err := r.observe("service_list", err); err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return services, nil
}

func (r *serviceRepository) LatestForAnimal(ctx context.Context, tenantID string, animalID int64, onOrBefore civil.Date) (*model.BreedingService, error) {
	query := `SELECT ` + serviceColumns + ` FROM breeding_services
		WHERE tenant_id = $1 AND animal_id = $2 AND service_date <= $3
		ORDER BY service_date DESC, id DESC
		LIMIT 1`

	var service model.BreedingService
	err := r.db.GetContext(ctx, &service, query, tenantID, animalID, onOrBefore)
	if err := r.observe("service_latest", err); err != nil {
		return nil, err
	}
	return &service, nil
}

type pregnancyCheckRepository struct {
	*BaseRepository
}

func NewPregnancyCheckRepository(base *BaseRepository) repository.PregnancyCheckRepository {
	return &pregnancyCheckRepository{BaseRepository: base}
}

func (r *pregnancyCheckRepository) Create(ctx context.Context, check *model.PregnancyCheck) error {
	query := `
		INSERT INTO pregnancy_checks (tenant_id, animal_id, check_date, result, method, notes, service_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		check.TenantID, check.AnimalID, check.Date, check.Result, check.Method, check.Notes, check.ServiceID,
	).Scan(&check.ID, &check.CreatedAt)
	if err := r.observe("check_create", err); err != nil {
		return fmt.Errorf("failed to create pregnancy check: %w", err)
	}
	return nil
}

func (r *pregnancyCheckRepository) Get(ctx context.Context, tenantID string, id int64) (*model.PregnancyCheck, error) {
	query := `SELECT id, tenant_id, animal_id, check_date, result, method, notes, service_id, created_at
		FROM pregnancy_checks
		WHERE id = $1 AND tenant_id = $2`

	var check model.PregnancyCheck
	err := r.db.GetContext(ctx, &check, query, id, tenantID)
	if err := r.observe("check_get", err); err != nil {
		return nil, err
	}
	return &check, nil
}

func (r *pregnancyCheckRepository) Update(ctx context.Context, check *model.PregnancyCheck) error {
	query := `
		UPDATE pregnancy_checks SET
			check_date = $1, result = $2, method = $3, notes = $4, service_id = $5
		WHERE id = $6 AND tenant_id = $7
		RETURNING animal_id, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		check.Date, check.Result, check.Method, check.Notes, check.ServiceID,
		check.ID, check.TenantID,
	).Scan(&check.AnimalID, &check.CreatedAt)
	return r.observe("check_update", err)
}
