package alert

import (
	"github.com/jwalitptl/herd-api/internal/model"
	"github.com/jwalitptl/herd-api/pkg/civil"
)

// Day offsets from the anchoring event. Fixed domain knowledge, not config.
const (
	PregnancyCheckDays = 32
	DryOffDays         = 210
	GestationDays      = 283
	ReserviceDays      = 21
)

// Candidate is an alert a domain event asks to exist.
type Candidate struct {
	Kind       model.AlertKind
	TargetDate civil.Date
	Note       string
}

// FromService derives the reminders that follow a breeding service.
func FromService(service *model.BreedingService) []Candidate {
	d := service.Date
	return []Candidate{
		{Kind: model.AlertKindPregnancyCheck, TargetDate: d.AddDays(PregnancyCheckDays), Note: "pregnancy check (~32d)"},
		{Kind: model.AlertKindDryOff, TargetDate: d.AddDays(DryOffDays), Note: "estimated dry-off (~210d)"},
		{Kind: model.AlertKindLikelyBirth, TargetDate: d.AddDays(GestationDays), Note: "likely birth (~283d)"},
	}
}

// FromPregnancyCheck derives the reminders that follow a check result. A
// pregnant result is anchored at latestService when known, else at the
// check date. Undetermined results derive nothing.
func FromPregnancyCheck(check *model.PregnancyCheck, latestService *civil.Date, reserviceRequested bool) []Candidate {
	switch check.Result {
	case model.CheckResultPregnant:
		anchor := check.Date
		if latestService != nil && !latestService.IsZero() {
			anchor = *latestService
		}
		return []Candidate{
			{Kind: model.AlertKindLikelyBirth, TargetDate: anchor.AddDays(GestationDays), Note: "likely birth (~283d)"},
		}
	case model.CheckResultNotPregnant:
		if reserviceRequested {
			return []Candidate{
				{Kind: model.AlertKindHealth, TargetDate: check.Date.AddDays(ReserviceDays), Note: "re-service suggested"},
			}
		}
	}
	return nil
}
