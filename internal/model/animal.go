package model

import (
	"time"

	"github.com/jwalitptl/herd-api/pkg/civil"
)

type ReproductiveStatus string

const (
	ReproductiveStatusOpen      ReproductiveStatus = "open"
	ReproductiveStatusPregnant  ReproductiveStatus = "pregnant"
	ReproductiveStatusLactating ReproductiveStatus = "lactating"
	ReproductiveStatusDry       ReproductiveStatus = "dry"
)

type Animal struct {
	ID                 int64              `db:"id" json:"id"`
	TenantID           string             `db:"tenant_id" json:"-"`
	Tag                string             `db:"tag" json:"tag"`
	Name               *string            `db:"name" json:"name,omitempty"`
	Breed              *string            `db:"breed" json:"breed,omitempty"`
	BirthDate          civil.Date         `db:"birth_date" json:"birth_date"`
	ReproductiveStatus ReproductiveStatus `db:"reproductive_status" json:"reproductive_status"`
	Deleted            bool               `db:"is_deleted" json:"-"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

type CreateAnimalRequest struct {
	Tag       string     `json:"tag" binding:"required,max=40"`
	Name      *string    `json:"name" binding:"omitempty,max=80"`
	Breed     *string    `json:"breed" binding:"omitempty,max=80"`
	BirthDate civil.Date `json:"birth_date"`
}
