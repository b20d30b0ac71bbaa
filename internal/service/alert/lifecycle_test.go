package alert

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/herd-api/internal/model"
	"github.com/jwalitptl/herd-api/internal/repository"
	"github.com/jwalitptl/herd-api/internal/repository/memory"
	"github.com/jwalitptl/herd-api/pkg/civil"
	"github.com/jwalitptl/herd-api/pkg/clock"
	apperrors "github.com/jwalitptl/herd-api/pkg/errors"
	"github.com/jwalitptl/herd-api/pkg/logger"
	"github.com/jwalitptl/herd-api/pkg/metrics"
)

const tenant = "owner-1"

type fixture struct {
	store  *memory.Store
	engine *Engine
	clock  *clock.Fixed
	cow    *model.Animal
}

func newFixture(t *testing.T, today string) *fixture {
	t.Helper()
	store := memory.NewStore()
	clk := clock.OnDate(civil.MustParse(today))
	cow := &model.Animal{TenantID: tenant, Tag: "GT-001"}
	require.NoError(t, store.Animals().Create(context.Background(), cow))
	return &fixture{
		store:  store,
		engine: NewEngine(store.Alerts(), clk, logger.Nop(), metrics.NewNop()),
		clock:  clk,
		cow:    cow,
	}
}

func (f *fixture) ensure(t *testing.T, kind model.AlertKind, date string) *model.Alert {
	t.Helper()
	a, _, err := f.engine.EnsureExists(context.Background(), EnsureRequest{
		TenantID: tenant, AnimalID: f.cow.ID, Kind: kind, TargetDate: civil.MustParse(date),
	})
	require.NoError(t, err)
	return a
}

func TestEnsureExistsIsIdempotent(t *testing.T) {
	f := newFixture(t, "2025-01-01")
	ctx := context.Background()
	req := EnsureRequest{
		TenantID: tenant, AnimalID: f.cow.ID, Kind: model.AlertKindDryOff,
		TargetDate: civil.MustParse("2025-07-30"), Note: "estimated dry-off (~210d)", Trigger: "Service #1 on 2025-01-01",
	}

	first, created, err := f.engine.EnsureExists(ctx, req)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.AlertStatePending, first.State)
	assert.Equal(t, f.clock.Now(), first.CreatedAt)

	req.Note = "different note"
	second, created, err := f.engine.EnsureExists(ctx, req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "estimated dry-off (~210d)", second.Note)

	all, err := f.store.Alerts().ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEnsureExistsConcurrent(t *testing.T) {
	f := newFixture(t, "2025-01-01")
	req := EnsureRequest{TenantID: tenant, AnimalID: f.cow.ID, Kind: model.AlertKindLikelyBirth, TargetDate: civil.MustParse("2025-10-11")}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[int64]bool{}
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, c, err := f.engine.EnsureExists(context.Background(), req)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[a.ID] = true
			if c {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)
}

// racingRepo reports no match on the first Find, as if another writer
// inserted the same key between Find and Insert.
type racingRepo struct {
	repository.AlertRepository
	finds int
}

func (r *racingRepo) Find(ctx context.Context, key model.AlertKey) (*model.Alert, error) {
	r.finds++
	if r.finds == 1 {
		return nil, repository.ErrNotFound
	}
	return r.AlertRepository.Find(ctx, key)
}

func TestEnsureExistsResolvesInsertRace(t *testing.T) {
	f := newFixture(t, "2025-01-01")
	existing := f.ensure(t, model.AlertKindHealth, "2025-02-23")

	racing := &racingRepo{AlertRepository: f.store.Alerts()}
	engine := NewEngine(racing, f.clock, logger.Nop(), metrics.NewNop())

	got, created, err := engine.EnsureExists(context.Background(), EnsureRequest{
		TenantID: tenant, AnimalID: f.cow.ID, Kind: model.AlertKindHealth, TargetDate: civil.MustParse("2025-02-23"),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, got.ID)
	assert.Equal(t, 2, racing.finds)
}

type brokenRepo struct {
	repository.AlertRepository
}

func (brokenRepo) Find(context.Context, model.AlertKey) (*model.Alert, error) {
	return nil, errors.New("connection refused")
}

func (brokenRepo) ExpirePending(context.Context, civil.Date) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestStoreErrorsAreStoreFailures(t *testing.T) {
	engine := NewEngine(brokenRepo{}, clock.OnDate(civil.MustParse("2025-01-01")), logger.Nop(), metrics.NewNop())

	_, _, err := engine.EnsureExists(context.Background(), EnsureRequest{TenantID: tenant})
	assert.True(t, apperrors.IsStoreFailure(err))

	_, err = engine.ExpirePastDue(context.Background(), civil.MustParse("2025-01-01"))
	assert.True(t, apperrors.IsStoreFailure(err))
}

func TestExpirePastDue(t *testing.T) {
	f := newFixture(t, "2025-03-10")
	ctx := context.Background()
	today := f.clock.Today()

	past := f.ensure(t, model.AlertKindHealth, "2025-03-09")
	onDay := f.ensure(t, model.AlertKindDryOff, "2025-03-10")
	future := f.ensure(t, model.AlertKindLikelyBirth, "2025-04-01")
	attended := f.ensure(t, model.AlertKindPregnancyCheck, "2025-03-01")
	notified := f.ensure(t, model.AlertKindOverdueBirth, "2025-03-01")
	_, err := f.engine.MarkAttended(ctx, tenant, attended.ID)
	require.NoError(t, err)
	_, err = f.engine.MarkNotified(ctx, tenant, notified.ID)
	require.NoError(t, err)

	n, err := f.engine.ExpirePastDue(ctx, today)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	states := map[int64]model.AlertState{
		past.ID:     model.AlertStateExpired,
		onDay.ID:    model.AlertStatePending,
		future.ID:   model.AlertStatePending,
		attended.ID: model.AlertStateAttended,
		notified.ID: model.AlertStateNotified,
	}
	for id, want := range states {
		got, err := f.store.Alerts().Get(ctx, tenant, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.State, "alert %d", id)
	}
}

func TestAttendedIsAFloor(t *testing.T) {
	f := newFixture(t, "2025-03-10")
	ctx := context.Background()
	a := f.ensure(t, model.AlertKindHealth, "2025-03-01")

	got, err := f.engine.MarkAttended(ctx, tenant, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStateAttended, got.State)

	got, err = f.engine.MarkNotified(ctx, tenant, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStateAttended, got.State)

	_, err = f.engine.ExpirePastDue(ctx, f.clock.Today())
	require.NoError(t, err)
	stored, err := f.store.Alerts().Get(ctx, tenant, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStateAttended, stored.State)
}

func TestReopenReturnsToPending(t *testing.T) {
	f := newFixture(t, "2025-03-10")
	ctx := context.Background()
	a := f.ensure(t, model.AlertKindHealth, "2025-03-20")

	_, err := f.engine.MarkAttended(ctx, tenant, a.ID)
	require.NoError(t, err)
	got, err := f.engine.Reopen(ctx, tenant, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatePending, got.State)
}

func TestTransitionsOnMissingAlert(t *testing.T) {
	f := newFixture(t, "2025-03-10")
	ctx := context.Background()
	a := f.ensure(t, model.AlertKindHealth, "2025-03-20")
	require.NoError(t, f.store.Alerts().SoftDelete(ctx, tenant, a.ID))

	for _, op := range []func(context.Context, string, int64) (*model.Alert, error){
		f.engine.MarkNotified, f.engine.MarkAttended, f.engine.Reopen,
	} {
		_, err := op(ctx, tenant, a.ID)
		assert.True(t, apperrors.IsNotFound(err))
		assert.ErrorIs(t, err, repository.ErrNotFound)

		_, err = op(ctx, tenant, 9999)
		assert.True(t, apperrors.IsNotFound(err))
	}
}

// interleavingRepo runs between once right before the first conditional
// state write, as if another request changed the alert after it was read.
type interleavingRepo struct {
	repository.AlertRepository
	between func()
	writes  int
}

func (r *interleavingRepo) SetState(ctx context.Context, tenantID string, id int64, from, to model.AlertState) error {
	r.writes++
	if r.writes == 1 && r.between != nil {
		r.between()
	}
	return r.AlertRepository.SetState(ctx, tenantID, id, from, to)
}

func TestNotifyDoesNotOverwriteConcurrentAttend(t *testing.T) {
	f := newFixture(t, "2025-03-10")
	ctx := context.Background()
	a := f.ensure(t, model.AlertKindHealth, "2025-03-20")

	repo := &interleavingRepo{AlertRepository: f.store.Alerts()}
	repo.between = func() {
		_, err := f.engine.MarkAttended(ctx, tenant, a.ID)
		assert.NoError(t, err)
	}
	engine := NewEngine(repo, f.clock, logger.Nop(), metrics.NewNop())

	got, err := engine.MarkNotified(ctx, tenant, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStateAttended, got.State)
	assert.Equal(t, 1, repo.writes)

	stored, err := f.store.Alerts().Get(ctx, tenant, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStateAttended, stored.State)
}

func TestReopenRetriesAfterConcurrentChange(t *testing.T) {
	f := newFixture(t, "2025-03-10")
	ctx := context.Background()
	a := f.ensure(t, model.AlertKindHealth, "2025-03-20")
	_, err := f.engine.MarkAttended(ctx, tenant, a.ID)
	require.NoError(t, err)

	repo := &interleavingRepo{AlertRepository: f.store.Alerts()}
	repo.between = func() {
		_, err := f.engine.Reopen(ctx, tenant, a.ID)
		assert.NoError(t, err)
		_, err = f.engine.MarkNotified(ctx, tenant, a.ID)
		assert.NoError(t, err)
	}
	engine := NewEngine(repo, f.clock, logger.Nop(), metrics.NewNop())

	got, err := engine.Reopen(ctx, tenant, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatePending, got.State)
	assert.Equal(t, 2, repo.writes)
}

type contendedRepo struct {
	repository.AlertRepository
}

func (contendedRepo) SetState(context.Context, string, int64, model.AlertState, model.AlertState) error {
	return repository.ErrStateChanged
}

func TestTransitionGivesUpUnderContention(t *testing.T) {
	f := newFixture(t, "2025-03-10")
	a := f.ensure(t, model.AlertKindHealth, "2025-03-20")
	engine := NewEngine(contendedRepo{f.store.Alerts()}, f.clock, logger.Nop(), metrics.NewNop())

	_, err := engine.MarkAttended(context.Background(), tenant, a.ID)
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))
	assert.ErrorIs(t, err, repository.ErrStateChanged)
}
