package animal

import (
	"context"
	"errors"

	"github.com/jwalitptl/herd-api/internal/model"
	"github.com/jwalitptl/herd-api/internal/repository"
	apperrors "github.com/jwalitptl/herd-api/pkg/errors"
	"github.com/jwalitptl/herd-api/pkg/logger"
)

type Service struct {
	repo repository.AnimalRepository
	log  *logger.Logger
}

func NewService(repo repository.AnimalRepository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Create registers an animal. New animals start open.
func (s *Service) Create(ctx context.Context, tenantID string, req *model.CreateAnimalRequest) (*model.Animal, error) {
	animal := &model.Animal{
		TenantID:           tenantID,
		Tag:                req.Tag,
		Name:               req.Name,
		Breed:              req.Breed,
		BirthDate:          req.BirthDate,
		ReproductiveStatus: model.ReproductiveStatusOpen,
	}
	if err := s.repo.Create(ctx, animal); err != nil {
		return nil, apperrors.NewStoreFailure("create animal", err)
	}
	s.log.Info("animal created", "animal_id", animal.ID, "tag", animal.Tag)
	return animal, nil
}

func (s *Service) Get(ctx context.Context, tenantID string, id int64) (*model.Animal, error) {
	animal, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("animal", err)
		}
		return nil, apperrors.NewStoreFailure("get animal", err)
	}
	return animal, nil
}

func (s *Service) List(ctx context.Context, tenantID string, page model.Page) ([]*model.Animal, error) {
	animals, err := s.repo.List(ctx, tenantID, page.Normalize())
	if err != nil {
		return nil, apperrors.NewStoreFailure("list animals", err)
	}
	return animals, nil
}
