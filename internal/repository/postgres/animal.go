package postgres

import (
	"context"
	"fmt"

	"github.com/jwalitptl/herd-api/internal/model"
	"github.com/jwalitptl/herd-api/internal/repository"
)

const animalColumns = `id, tenant_id, tag, name, breed, birth_date, reproductive_status, is_deleted, created_at, updated_at`

type animalRepository struct {
	*BaseRepository
}

func NewAnimalRepository(base *BaseRepository) repository.AnimalRepository {
	return &animalRepository{BaseRepository: base}
}

func (r *animalRepository) Create(ctx context.Context, animal *model.Animal) error {
	if animal.ReproductiveStatus == "" {
		animal.ReproductiveStatus = model.ReproductiveStatusOpen
	}
	query := `
		INSERT INTO animals (tenant_id, tag, name, breed, birth_date, reproductive_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		animal.TenantID, animal.Tag, animal.Name, animal.Breed, animal.BirthDate, animal.ReproductiveStatus,
	).Scan(&animal.ID, &animal.CreatedAt, &animal.UpdatedAt)
	if err := r.observe("animal_create", err); err != nil {
		return fmt.Errorf("failed to create animal: %w", err)
	}
	return nil
}

func (r *animalRepository) Get(ctx context.Context, tenantID string, id int64) (*model.Animal, error) {
	query := `SELECT ` + animalColumns + ` FROM animals WHERE id = $1 AND tenant_id = $2 AND NOT is_deleted`

	var animal model.Animal
	err := r.db.GetContext(ctx, &animal, query, id, tenantID)
	if err := r.observe("animal_get", err); err != nil {
		return nil, err
	}
	return &animal, nil
}

func (r *animalRepository) List(ctx context.Context, tenantID string, page model.Page) ([]*model.Animal, error) {
	page = page.Normalize()
	query := `SELECT ` + animalColumns + ` FROM animals
		WHERE tenant_id = $1 AND NOT is_deleted
		ORDER BY tag
		LIMIT $2 OFFSET $3`

	animals := make([]*model.Animal, 0)
	err := r.db.SelectContext(ctx, &animals, query, tenantID, page.Limit, page.Offset)
	if err := r.observe("animal_list", err); err != nil {
		return nil, fmt.Errorf("failed to list animals: %w", err)
	}
	return animals, nil
}

func (r *animalRepository) UpdateReproductiveStatus(ctx context.Context, tenantID string, id int64, status model.ReproductiveStatus) error {
	query := `
		UPDATE animals SET reproductive_status = $1, updated_at = now()
		WHERE id = $2 AND tenant_id = $3 AND NOT is_deleted`

	err := rowsAffected(r.db.ExecContext(ctx, query, status, id, tenantID))
	return r.observe("animal_update_status", err)
}
