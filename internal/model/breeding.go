package model

import (
	"time"

	"github.com/jwalitptl/herd-api/pkg/civil"
)

type ServiceKind string

const (
	ServiceKindNatural ServiceKind = "natural"
	ServiceKindAI      ServiceKind = "ai"
)

// BreedingService is one mating or insemination event.
type BreedingService struct {
	ID        int64       `db:"id" json:"id"`
	TenantID  string      `db:"tenant_id" json:"-"`
	AnimalID  int64       `db:"animal_id" json:"animal_id"`
	Date      civil.Date  `db:"service_date" json:"date"`
	Kind      ServiceKind `db:"kind" json:"kind"`
	Sire      *string     `db:"sire" json:"sire,omitempty"`
	Notes     *string     `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}

type CheckResult string

const (
	CheckResultUndetermined CheckResult = "undetermined"
	CheckResultPregnant     CheckResult = "pregnant"
	CheckResultNotPregnant  CheckResult = "not_pregnant"
)

func (r CheckResult) Valid() bool {
	switch r {
	case CheckResultUndetermined, CheckResultPregnant, CheckResultNotPregnant:
		return true
	}
	return false
}

type PregnancyCheck struct {
	ID        int64       `db:"id" json:"id"`
	TenantID  string      `db:"tenant_id" json:"-"`
	AnimalID  int64       `db:"animal_id" json:"animal_id"`
	Date      civil.Date  `db:"check_date" json:"date"`
	Result    CheckResult `db:"result" json:"result"`
	Method    *string     `db:"method" json:"method,omitempty"`
	Notes     *string     `db:"notes" json:"notes,omitempty"`
	ServiceID *int64      `db:"service_id" json:"service_id,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}

type RecordServiceRequest struct {
	AnimalID int64       `json:"animal_id" binding:"required,gt=0"`
	Date     civil.Date  `json:"date" binding:"required"`
	Kind     ServiceKind `json:"kind" binding:"required,oneof=natural ai"`
	Sire     *string     `json:"sire" binding:"omitempty,max=80"`
	Notes    *string     `json:"notes" binding:"omitempty,max=240"`
}

type RecordCheckRequest struct {
	AnimalID         int64       `json:"animal_id" binding:"required,gt=0"`
	Date             civil.Date  `json:"date" binding:"required"`
	Result           CheckResult `json:"result" binding:"required,checkresult"`
	Method           *string     `json:"method" binding:"omitempty,max=40"`
	Notes            *string     `json:"notes" binding:"omitempty,max=240"`
	ServiceID        *int64      `json:"service_id" binding:"omitempty,gt=0"`
	RequestReservice bool        `json:"request_reservice"`
}
