package breeding

import (
	"context"
	"errors"
	"fmt"

	"github.com/jwalitptl/herd-api/internal/model"
	"github.com/jwalitptl/herd-api/internal/repository"
	"github.com/jwalitptl/herd-api/internal/service/alert"
	"github.com/jwalitptl/herd-api/pkg/civil"
	apperrors "github.com/jwalitptl/herd-api/pkg/errors"
	"github.com/jwalitptl/herd-api/pkg/logger"
)

// Ensurer creates an alert if its key is not already taken.
type Ensurer interface {
	EnsureExists(ctx context.Context, req alert.EnsureRequest) (*model.Alert, bool, error)
}

type ServiceRecord struct {
	Service *model.BreedingService `json:"service"`
	Alerts  []*model.Alert         `json:"alerts"`
}

type CheckRecord struct {
	Check  *model.PregnancyCheck `json:"check"`
	Alerts []*model.Alert        `json:"alerts"`
}

type Service struct {
	animals  repository.AnimalRepository
	services repository.ServiceRepository
	checks   repository.PregnancyCheckRepository
	alerts   Ensurer
	log      *logger.Logger
}

func NewService(
	animals repository.AnimalRepository,
	services repository.ServiceRepository,
	checks repository.PregnancyCheckRepository,
	alerts Ensurer,
	log *logger.Logger,
) *Service {
	return &Service{animals: animals, services: services, checks: checks, alerts: alerts, log: log}
}

// RecordService stores a breeding service and ensures the alerts it implies.
func (s *Service) RecordService(ctx context.Context, tenantID string, req *model.RecordServiceRequest) (*ServiceRecord, error) {
	if err := s.checkAnimal(ctx, tenantID, req.AnimalID); err != nil {
		return nil, err
	}

	svc := &model.BreedingService{
		TenantID: tenantID,
		AnimalID: req.AnimalID,
		Date:     req.Date,
		Kind:     req.Kind,
		Sire:     req.Sire,
		Notes:    req.Notes,
	}
	if err := s.services.Create(ctx, svc); err != nil {
		return nil, apperrors.NewStoreFailure("record service", err)
	}

	trigger := fmt.Sprintf("Service #%d on %s", svc.ID, svc.Date)
	alerts, err := s.ensure(ctx, tenantID, svc.AnimalID, trigger, alert.FromService(svc))
	if err != nil {
		return nil, err
	}
	s.log.Info("breeding service recorded", "service_id", svc.ID, "animal_id", svc.AnimalID, "alerts", len(alerts))
	return &ServiceRecord{Service: svc, Alerts: alerts}, nil
}

// RecordPregnancyCheck stores a check, updates the animal's reproductive
// status and ensures the alerts the result implies.
func (s *Service) RecordPregnancyCheck(ctx context.Context, tenantID string, req *model.RecordCheckRequest) (*CheckRecord, error) {
	if err := s.checkAnimal(ctx, tenantID, req.AnimalID); err != nil {
		return nil, err
	}

	anchor, err := s.anchorService(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}

	check := &model.PregnancyCheck{
		TenantID: tenantID,
		AnimalID: req.AnimalID,
		Date:     req.Date,
		Result:   req.Result,
		Method:   req.Method,
		Notes:    req.Notes,
	}
	var serviceDate *civil.Date
	if anchor != nil {
		check.ServiceID = &anchor.ID
		serviceDate = &anchor.Date
	}
	if err := s.checks.Create(ctx, check); err != nil {
		return nil, apperrors.NewStoreFailure("record pregnancy check", err)
	}

	alerts, err := s.applyCheck(ctx, tenantID, check, serviceDate, req.RequestReservice)
	if err != nil {
		return nil, err
	}
	s.log.Info("pregnancy check recorded", "check_id", check.ID, "animal_id", check.AnimalID,
		"result", check.Result, "alerts", len(alerts))
	return &CheckRecord{Check: check, Alerts: alerts}, nil
}

// UpdatePregnancyCheck edits a recorded check, then reapplies the status
// update and alert derivation for the new values. Alerts derived from the
// previous values are kept.
func (s *Service) UpdatePregnancyCheck(ctx context.Context, tenantID string, id int64, req *model.RecordCheckRequest) (*CheckRecord, error) {
	check, err := s.checks.Get(ctx, tenantID, id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewNotFound("pregnancy check", err)
	case err != nil:
		return nil, apperrors.NewStoreFailure("get pregnancy check", err)
	}
	if req.AnimalID != check.AnimalID {
		return nil, apperrors.NewBadRequest("a pregnancy check cannot be moved to another animal", nil)
	}
	if err := s.checkAnimal(ctx, tenantID, check.AnimalID); err != nil {
		return nil, err
	}

	anchor, err := s.anchorService(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}

	check.Date = req.Date
	check.Result = req.Result
	check.Method = req.Method
	check.Notes = req.Notes
	check.ServiceID = nil
	var serviceDate *civil.Date
	if anchor != nil {
		check.ServiceID = &anchor.ID
		serviceDate = &anchor.Date
	}
	if err := s.checks.Update(ctx, check); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("pregnancy check", err)
		}
		return nil, apperrors.NewStoreFailure("update pregnancy check", err)
	}

	alerts, err := s.applyCheck(ctx, tenantID, check, serviceDate, req.RequestReservice)
	if err != nil {
		return nil, err
	}
	s.log.Info("pregnancy check updated", "check_id", check.ID, "animal_id", check.AnimalID,
		"result", check.Result, "alerts", len(alerts))
	return &CheckRecord{Check: check, Alerts: alerts}, nil
}

// applyCheck updates the animal's reproductive status from a stored check
// and ensures the alerts its result implies.
func (s *Service) applyCheck(ctx context.Context, tenantID string, check *model.PregnancyCheck, serviceDate *civil.Date, reservice bool) ([]*model.Alert, error) {
	if status, ok := statusFor(check.Result); ok {
		if err := s.animals.UpdateReproductiveStatus(ctx, tenantID, check.AnimalID, status); err != nil {
			return nil, apperrors.NewStoreFailure("update reproductive status", err)
		}
	}

	trigger := fmt.Sprintf("Pregnancy check #%d on %s", check.ID, check.Date)
	candidates := alert.FromPregnancyCheck(check, serviceDate, reservice)
	return s.ensure(ctx, tenantID, check.AnimalID, trigger, candidates)
}

func (s *Service) ListServices(ctx context.Context, tenantID string, animalID int64) ([]*model.BreedingService, error) {
	if err := s.checkAnimal(ctx, tenantID, animalID); err != nil {
		return nil, err
	}
	services, err := s.services.ListByAnimal(ctx, tenantID, animalID)
	if err != nil {
		return nil, apperrors.NewStoreFailure("list services", err)
	}
	return services, nil
}

// anchorService picks the service a check refers to: the explicit one when
// given, else the latest on or before the check date. nil means none.
func (s *Service) anchorService(ctx context.Context, tenantID string, req *model.RecordCheckRequest) (*model.BreedingService, error) {
	if req.ServiceID != nil {
		services, err := s.services.ListByAnimal(ctx, tenantID, req.AnimalID)
		if err != nil {
			return nil, apperrors.NewStoreFailure("list services", err)
		}
		for _, svc := range services {
			if svc.ID == *req.ServiceID {
				return svc, nil
			}
		}
		return nil, apperrors.NewBadRequest("service does not belong to this animal", nil)
	}

	svc, err := s.services.LatestForAnimal(ctx, tenantID, req.AnimalID, req.Date)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, apperrors.NewStoreFailure("find latest service", err)
	}
	return svc, nil
}

func (s *Service) ensure(ctx context.Context, tenantID string, animalID int64, trigger string, candidates []alert.Candidate) ([]*model.Alert, error) {
	alerts := make([]*model.Alert, 0, len(candidates))
	for _, c := range candidates {
		a, _, err := s.alerts.EnsureExists(ctx, alert.EnsureRequest{
			TenantID:    tenantID,
			AnimalID:    animalID,
			Kind:        c.Kind,
			TargetDate:  c.TargetDate,
			Note:        c.Note,
			Trigger:     trigger,
			RecipientID: &tenantID,
		})
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
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

func statusFor(result model.CheckResult) (model.ReproductiveStatus, bool) {
	switch result {
	case model.CheckResultPregnant:
		return model.ReproductiveStatusPregnant, true
	case model.CheckResultNotPregnant:
		return model.ReproductiveStatusOpen, true
	}
	return "", false
}
