// Package memory keeps every repository in process. It backs the API and
// worker when database.driver is "memory" and serves as the store in service
// and worker tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jwalitptl/herd-api/internal/model"
	"github.com/jwalitptl/herd-api/internal/repository"
	"github.com/jwalitptl/herd-api/pkg/civil"
)

// Store holds all tables behind one lock so joins see a consistent view.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	alerts   map[int64]*model.Alert
	animals  map[int64]*model.Animal
	services map[int64]*model.BreedingService
	checks   map[int64]*model.PregnancyCheck
	users    map[string]*model.User
	seq      int64
}

func NewStore() *Store {
	return &Store{
		now:      func() time.Time { return time.Now().UTC() },
		alerts:   make(map[int64]*model.Alert),
		animals:  make(map[int64]*model.Animal),
		services: make(map[int64]*model.BreedingService),
		checks:   make(map[int64]*model.PregnancyCheck),
		users:    make(map[string]*model.User),
	}
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// PutUser registers an account for recipient resolution.
func (s *Store) PutUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

func (s *Store) Alerts() repository.AlertRepository                   { return &alertRepo{s} }
func (s *Store) Animals() repository.AnimalRepository                 { return &animalRepo{s} }
func (s *Store) Services() repository.ServiceRepository               { return &serviceRepo{s} }
func (s *Store) PregnancyChecks() repository.PregnancyCheckRepository { return &checkRepo{s} }
func (s *Store) Users() repository.UserRepository                     { return &userRepo{s} }

func cloneAlert(a *model.Alert) *model.Alert {
	c := *a
	c.Reminders = make(model.Reminders, len(a.Reminders))
	for t, m := range a.Reminders {
		c.Reminders[t] = m
	}
	return &c
}

type alertRepo struct{ s *Store }

// keyTaken reports whether another live alert uses key. Caller holds the lock.
func (r *alertRepo) keyTaken(key model.AlertKey, exceptID int64) bool {
	for _, a := range r.s.alerts {
		if !a.Deleted && a.ID != exceptID && a.Key() == key {
			return true
		}
	}
	return false
}

// withAnimal fills the joined animal columns on a copy. Caller holds the lock.
func (r *alertRepo) withAnimal(a *model.Alert) *model.Alert {
	c := cloneAlert(a)
	if an, ok := r.s.animals[a.AnimalID]; ok {
		c.AnimalTag = an.Tag
		c.AnimalName = an.Name
	}
	return c
}

func (r *alertRepo) Find(ctx context.Context, key model.AlertKey) (*model.Alert, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, a := range r.s.alerts {
		if !a.Deleted && a.Key() == key {
			return r.withAnimal(a), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *alertRepo) Insert(ctx context.Context, alert *model.Alert) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.keyTaken(alert.Key(), 0) {
		return repository.ErrDuplicate
	}
	now := r.s.now()
	alert.ID = r.s.nextID()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = now
	if alert.Reminders == nil {
		alert.Reminders = model.Reminders{}
	}
	r.s.alerts[alert.ID] = cloneAlert(alert)
	return nil
}

func (r *alertRepo) live(tenantID string, id int64) (*model.Alert, bool) {
	a, ok := r.s.alerts[id]
	if !ok || a.Deleted || a.TenantID != tenantID {
		return nil, false
	}
	return a, true
}

func (r *alertRepo) Get(ctx context.Context, tenantID string, id int64) (*model.Alert, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.live(tenantID, id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.withAnimal(a), nil
}

func (r *alertRepo) Update(ctx context.Context, alert *model.Alert, from model.AlertState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.live(alert.TenantID, alert.ID)
	if !ok {
		return repository.ErrNotFound
	}
	if cur.State != from {
		return repository.ErrStateChanged
	}
	if r.keyTaken(alert.Key(), alert.ID) {
		return repository.ErrDuplicate
	}
	cur.AnimalID = alert.AnimalID
	cur.Kind = alert.Kind
	cur.TargetDate = alert.TargetDate
	cur.State = alert.State
	cur.Trigger = alert.Trigger
	cur.Note = alert.Note
	cur.RecipientID = alert.RecipientID
	cur.UpdatedAt = r.s.now()
	alert.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r *alertRepo) SetState(ctx context.Context, tenantID string, id int64, from, to model.AlertState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.live(tenantID, id)
	if !ok {
		return repository.ErrNotFound
	}
	if cur.State != from {
		return repository.ErrStateChanged
	}
	cur.State = to
	cur.UpdatedAt = r.s.now()
	return nil
}

func (r *alertRepo) SoftDelete(ctx context.Context, tenantID string, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.live(tenantID, id)
	if !ok {
		return repository.ErrNotFound
	}
	a.Deleted = true
	a.UpdatedAt = r.s.now()
	return nil
}

func (r *alertRepo) List(ctx context.Context, tenantID string, filter model.AlertFilter) ([]*model.Alert, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(filter.Query))
	out := make([]*model.Alert, 0)
	for _, a := range r.s.alerts {
		if a.Deleted || a.TenantID != tenantID {
			continue
		}
		an, ok := r.s.animals[a.AnimalID]
		if !ok || an.Deleted {
			continue
		}
		if filter.State != "" && a.State != filter.State {
			continue
		}
		if !filter.From.IsZero() && a.TargetDate.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && a.TargetDate.After(filter.To) {
			continue
		}
		if q != "" && !matchesAnimal(an, q) {
			continue
		}
		out = append(out, r.withAnimal(a))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].TargetDate.Equal(out[j].TargetDate) {
			return out[i].TargetDate.Before(out[j].TargetDate)
		}
		return out[i].AnimalTag < out[j].AnimalTag
	})
	return paginate(out, filter.Page), nil
}

func (r *alertRepo) CountPending(ctx context.Context, tenantID string, today civil.Date) (model.AlertCounts, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var c model.AlertCounts
	weekEnd := today.AddDays(7)
	for _, a := range r.s.alerts {
		if a.Deleted || a.TenantID != tenantID || a.State != model.AlertStatePending {
			continue
		}
		if an, ok := r.s.animals[a.AnimalID]; !ok || an.Deleted {
			continue
		}
		c.Pending++
		switch d := a.TargetDate; {
		case d.Equal(today):
			c.DueToday++
		case d.Before(today):
			c.Overdue++
		case !d.After(weekEnd):
			c.DueThisWeek++
		}
	}
	return c, nil
}

func matchesAnimal(an *model.Animal, q string) bool {
	if strings.Contains(strings.ToLower(an.Tag), q) {
		return true
	}
	return an.Name != nil && strings.Contains(strings.ToLower(*an.Name), q)
}

func paginate[T any](items []T, page model.Page) []T {
	page = page.Normalize()
	if page.Offset >= len(items) {
		return items[:0]
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end]
}

func (r *alertRepo) ExpirePending(ctx context.Context, today civil.Date) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	now := r.s.now()
	for _, a := range r.s.alerts {
		if a.Deleted || !a.TargetDate.Before(today) {
			continue
		}
		if next, changed := a.State.Apply(model.TransitionExpire); changed {
			a.State = next
			a.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *alertRepo) ListPending(ctx context.Context) ([]*model.Alert, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*model.Alert, 0)
	for _, a := range r.s.alerts {
		if !a.Deleted && a.State == model.AlertStatePending {
			out = append(out, r.withAnimal(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *alertRepo) BatchUpdate(ctx context.Context, alerts []*model.Alert) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, in := range alerts {
		cur, ok := r.s.alerts[in.ID]
		if !ok {
			continue
		}
		for t, m := range in.Reminders {
			if m.Sent && !cur.Reminders.Sent(t) {
				cur.Reminders[t] = m
			}
		}
		cur.UpdatedAt = in.UpdatedAt
	}
	return nil
}

type animalRepo struct{ s *Store }

func (r *animalRepo) Create(ctx context.Context, animal *model.Animal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	animal.ID = r.s.nextID()
	animal.CreatedAt, animal.UpdatedAt = now, now
	if animal.ReproductiveStatus == "" {
		animal.ReproductiveStatus = model.ReproductiveStatusOpen
	}
	c := *animal
	r.s.animals[animal.ID] = &c
	return nil
}

func (r *animalRepo) Get(ctx context.Context, tenantID string, id int64) (*model.Animal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.animals[id]
	if !ok || a.Deleted || a.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (r *animalRepo) List(ctx context.Context, tenantID string, page model.Page) ([]*model.Animal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*model.Animal, 0)
	for _, a := range r.s.animals {
		if !a.Deleted && a.TenantID == tenantID {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return paginate(out, page), nil
}

func (r *animalRepo) UpdateReproductiveStatus(ctx context.Context, tenantID string, id int64, status model.ReproductiveStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.animals[id]
	if !ok || a.Deleted || a.TenantID != tenantID {
		return repository.ErrNotFound
	}
	a.ReproductiveStatus = status
	a.UpdatedAt = r.s.now()
	return nil
}

type serviceRepo struct{ s *Store }

func (r *serviceRepo) Create(ctx context.Context, service *model.BreedingService) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	service.ID = r.s.nextID()
	service.CreatedAt = r.s.now()
	c := *service
	r.s.services[service.ID] = &c
	return nil
}

func (r *serviceRepo) ListByAnimal(ctx context.Context, tenantID string, animalID int64) ([]*model.BreedingService, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*model.BreedingService, 0)
	for _, sv := range r.s.services {
		if sv.TenantID == tenantID && sv.AnimalID == animalID {
			c := *sv
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *serviceRepo) LatestForAnimal(ctx context.Context, tenantID string, animalID int64, onOrBefore civil.Date) (*model.BreedingService, error) {
	all, err := r.ListByAnimal(ctx, tenantID, animalID)
	if err != nil {
		return nil, err
	}
	for _, sv := range all {
		if !sv.Date.After(onOrBefore) {
			return sv, nil
		}
	}
	return nil, repository.ErrNotFound
}

type checkRepo struct{ s *Store }

func (r *checkRepo) Create(ctx context.Context, check *model.PregnancyCheck) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	check.ID = r.s.nextID()
	check.CreatedAt = r.s.now()
	c := *check
	r.s.checks[check.ID] = &c
	return nil
}

func (r *checkRepo) Get(ctx context.Context, tenantID string, id int64) (*model.PregnancyCheck, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.checks[id]
	if !ok || c.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (r *checkRepo) Update(ctx context.Context, check *model.PregnancyCheck) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.checks[check.ID]
	if !ok || cur.TenantID != check.TenantID {
		return repository.ErrNotFound
	}
	cur.Date = check.Date
	cur.Result = check.Result
	cur.Method = check.Method
	cur.Notes = check.Notes
	cur.ServiceID = check.ServiceID
	check.AnimalID = cur.AnimalID
	check.CreatedAt = cur.CreatedAt
	return nil
}

type userRepo struct{ s *Store }

func (r *userRepo) Get(ctx context.Context, id string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	return &c, nil
}
