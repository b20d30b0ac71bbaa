package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jwalitptl/herd-api/pkg/civil"
)

type AlertKind string

const (
	AlertKindPregnancyCheck AlertKind = "pregnancy_check"
	AlertKindDryOff         AlertKind = "dry_off"
	AlertKindLikelyBirth    AlertKind = "likely_birth"
	AlertKindOverdueBirth   AlertKind = "overdue_birth"
	AlertKindHealth         AlertKind = "health"
)

var alertKindLabels = map[AlertKind]string{
	AlertKindPregnancyCheck: "Pregnancy check",
	AlertKindDryOff:         "Dry-off",
	AlertKindLikelyBirth:    "Likely birth",
	AlertKindOverdueBirth:   "Overdue birth",
	AlertKindHealth:         "Health",
}

func (k AlertKind) Valid() bool {
	_, ok := alertKindLabels[k]
	return ok
}

// Label is the human readable name used in emails.
func (k AlertKind) Label() string {
	if l, ok := alertKindLabels[k]; ok {
		return l
	}
	return string(k)
}

type AlertState string

const (
	AlertStatePending  AlertState = "pending"
	AlertStateNotified AlertState = "notified"
	AlertStateAttended AlertState = "attended"
	AlertStateExpired  AlertState = "expired"
)

func (s AlertState) Valid() bool {
	switch s {
	case AlertStatePending, AlertStateNotified, AlertStateAttended, AlertStateExpired:
		return true
	}
	return false
}

// Transition names an operation of the alert state machine.
type Transition string

const (
	TransitionNotify Transition = "notify"
	TransitionAttend Transition = "attend"
	TransitionExpire Transition = "expire"
	TransitionReopen Transition = "reopen"
)

// Apply returns the state that results from applying t to s and whether the
// state changes.
//
//	pending  -notify-> notified   (notify is a no-op on attended)
//	any      -attend-> attended
//	pending  -expire-> expired    (nothing else expires)
//	any      -reopen-> pending
func (s AlertState) Apply(t Transition) (AlertState, bool) {
	next := s
	switch t {
	case TransitionNotify:
		if s != AlertStateAttended {
			next = AlertStateNotified
		}
	case TransitionAttend:
		next = AlertStateAttended
	case TransitionExpire:
		if s == AlertStatePending {
			next = AlertStateExpired
		}
	case TransitionReopen:
		next = AlertStatePending
	}
	return next, next != s
}

// CanBecome reports whether some transition moves s to next. Staying in the
// same state is always allowed.
func (s AlertState) CanBecome(next AlertState) bool {
	if s == next {
		return true
	}
	for _, t := range []Transition{TransitionNotify, TransitionAttend, TransitionExpire, TransitionReopen} {
		if to, changed := s.Apply(t); changed && to == next {
			return true
		}
	}
	return false
}

// Threshold is a number of days before the target date at which a reminder
// is sent.
type Threshold int

const (
	Threshold15 Threshold = 15
	Threshold7  Threshold = 7
	Threshold0  Threshold = 0
)

// Thresholds lists every reminder threshold, farthest first.
var Thresholds = []Threshold{Threshold15, Threshold7, Threshold0}

func (t Threshold) String() string { return strconv.Itoa(int(t)) }

// ReminderMark records that the reminder for one threshold went out.
type ReminderMark struct {
	Sent   bool       `json:"sent"`
	SentAt *time.Time `json:"sent_at,omitempty"`
}

// Reminders holds the per-threshold idempotency flags of an alert. A missing
// key means the reminder has not been sent.
type Reminders map[Threshold]ReminderMark

func (r Reminders) Sent(t Threshold) bool {
	return r[t].Sent
}

// Mark records a successful send for t at the given time.
func (r Reminders) Mark(t Threshold, at time.Time) {
	at = at.UTC()
	r[t] = ReminderMark{Sent: true, SentAt: &at}
}

// Value stores the sent marks as a JSON object keyed by threshold.
func (r Reminders) Value() (driver.Value, error) {
	out := make(map[string]ReminderMark, len(r))
	for t, m := range r {
		if m.Sent {
			out[t.String()] = m
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *Reminders) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*r = Reminders{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Reminders", src)
	}
	var in map[string]ReminderMark
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("decode reminders: %w", err)
	}
	out := make(Reminders, len(in))
	for k, m := range in {
		n, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("decode reminders: bad threshold %q", k)
		}
		out[Threshold(n)] = m
	}
	*r = out
	return nil
}

// MarshalJSON renders reminders in threshold order for stable API output.
func (r Reminders) MarshalJSON() ([]byte, error) {
	type entry struct {
		Threshold int        `json:"threshold"`
		SentAt    *time.Time `json:"sent_at"`
	}
	out := make([]entry, 0, len(r))
	for t, m := range r {
		if m.Sent {
			out = append(out, entry{Threshold: int(t), SentAt: m.SentAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Threshold > out[j].Threshold })
	return json.Marshal(out)
}

func (r *Reminders) UnmarshalJSON(b []byte) error {
	var in []struct {
		Threshold int        `json:"threshold"`
		SentAt    *time.Time `json:"sent_at"`
	}
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	out := make(Reminders, len(in))
	for _, e := range in {
		out[Threshold(e.Threshold)] = ReminderMark{Sent: true, SentAt: e.SentAt}
	}
	*r = out
	return nil
}

// Alert is a dated reminder about one animal.
type Alert struct {
	ID          int64      `db:"id" json:"id"`
	TenantID    string     `db:"tenant_id" json:"-"`
	AnimalID    int64      `db:"animal_id" json:"animal_id"`
	AnimalTag   string     `db:"animal_tag" json:"animal_tag,omitempty"`
	AnimalName  *string    `db:"animal_name" json:"animal_name,omitempty"`
	Kind        AlertKind  `db:"kind" json:"kind"`
	TargetDate  civil.Date `db:"target_date" json:"target_date"`
	State       AlertState `db:"state" json:"state"`
	Trigger     string     `db:"trigger_note" json:"trigger,omitempty"`
	Note        string     `db:"note" json:"note,omitempty"`
	RecipientID *string    `db:"recipient_id" json:"recipient_id,omitempty"`
	Reminders   Reminders  `db:"reminders" json:"reminders"`
	Deleted     bool       `db:"is_deleted" json:"-"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// DaysUntil returns the whole days from today to the target date.
func (a *Alert) DaysUntil(today civil.Date) int {
	return a.TargetDate.DaysSince(today)
}

// DueThreshold returns the threshold that fires on today, if any, and whose
// reminder has not been sent yet.
func (a *Alert) DueThreshold(today civil.Date) (Threshold, bool) {
	days := a.DaysUntil(today)
	for _, t := range Thresholds {
		if days == int(t) && !a.Reminders.Sent(t) {
			return t, true
		}
	}
	return 0, false
}

// Subject returns the animal label used in emails: the ear tag, or a fallback
// built from the id when the tag was not loaded.
func (a *Alert) Subject() string {
	if a.AnimalTag != "" {
		return a.AnimalTag
	}
	return fmt.Sprintf("Animal %d", a.AnimalID)
}

// AlertKey is the natural key enforced unique among non-deleted alerts.
type AlertKey struct {
	TenantID   string
	AnimalID   int64
	Kind       AlertKind
	TargetDate civil.Date
}

func (a *Alert) Key() AlertKey {
	return AlertKey{TenantID: a.TenantID, AnimalID: a.AnimalID, Kind: a.Kind, TargetDate: a.TargetDate}
}

// AlertFilter narrows an alert listing.
type AlertFilter struct {
	Query    string
	State    AlertState
	From     civil.Date
	To       civil.Date
	Upcoming bool
	Page     Page
}

// Upcoming window of the default list view, relative to today.
const (
	UpcomingDaysBefore = 3
	UpcomingDaysAfter  = 35
)

// Resolve fills From/To/State for the upcoming view when no explicit range
// was requested.
func (f AlertFilter) Resolve(today civil.Date) AlertFilter {
	if f.Upcoming && f.From.IsZero() && f.To.IsZero() {
		f.From = today.AddDays(-UpcomingDaysBefore)
		f.To = today.AddDays(UpcomingDaysAfter)
		f.State = AlertStatePending
	}
	return f
}

// AlertCounts are the dashboard counters over a tenant's pending alerts.
// DueThisWeek covers the seven days after today, Overdue everything before it.
type AlertCounts struct {
	Pending     int `db:"pending" json:"pending"`
	DueToday    int `db:"due_today" json:"due_today"`
	DueThisWeek int `db:"due_this_week" json:"due_this_week"`
	Overdue     int `db:"overdue" json:"overdue"`
}

// SummaryUpcomingLimit caps the upcoming list of the dashboard summary.
const SummaryUpcomingLimit = 10

type AlertSummary struct {
	Today civil.Date `json:"today"`
	AlertCounts
	Upcoming []*Alert `json:"upcoming"`
}

type CreateAlertRequest struct {
	AnimalID    int64      `json:"animal_id" binding:"required,gt=0"`
	Kind        AlertKind  `json:"kind" binding:"required,alertkind"`
	TargetDate  civil.Date `json:"target_date" binding:"required"`
	State       AlertState `json:"state" binding:"omitempty,alertstate"`
	Trigger     string     `json:"trigger" binding:"max=240"`
	Note        string     `json:"note" binding:"max=240"`
	RecipientID *string    `json:"recipient_id"`
}

type UpdateAlertRequest struct {
	AnimalID    int64      `json:"animal_id" binding:"required,gt=0"`
	Kind        AlertKind  `json:"kind" binding:"required,alertkind"`
	TargetDate  civil.Date `json:"target_date" binding:"required"`
	State       AlertState `json:"state" binding:"required,alertstate"`
	Trigger     string     `json:"trigger" binding:"max=240"`
	Note        string     `json:"note" binding:"max=240"`
	RecipientID *string    `json:"recipient_id"`
}

// ReminderEvent is published after a reminder email was sent and recorded.
type ReminderEvent struct {
	AlertID   int64     `json:"alert_id"`
	TenantID  string    `json:"tenant_id"`
	AnimalID  int64     `json:"animal_id"`
	Kind      AlertKind `json:"kind"`
	Threshold Threshold `json:"threshold"`
	Recipient string    `json:"recipient"`
	SentAt    time.Time `json:"sent_at"`
}
