package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/herd-api/internal/model"
	"github.com/jwalitptl/herd-api/internal/repository"
	"github.com/jwalitptl/herd-api/pkg/civil"
	"github.com/jwalitptl/herd-api/pkg/metrics"
)

var alertCols = []string{
	"id", "tenant_id", "animal_id", "animal_tag", "animal_name", "kind", "target_date",
	"state", "trigger_note", "note", "recipient_id", "reminders", "is_deleted",
	"created_at", "updated_at",
}

func newMock(t *testing.T) (*BaseRepository, sqlmock.Sqlmock, *metrics.Metrics) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m := metrics.NewNop()
	return NewBaseRepository(sqlx.NewDb(db, "postgres"), m), mock, m
}

func TestAlertFindScansJoinedRow(t *testing.T) {
	base, mock, _ := newMock(t)
	repo := NewAlertRepository(base)
	created := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(alertCols).AddRow(
		int64(11), "owner-1", int64(3), "GT-001", "Luna", "likely_birth",
		time.Date(2025, 10, 11, 0, 0, 0, 0, time.UTC), "pending",
		"Service #5 on 2025-01-01", "likely birth (~283d)", nil,
		[]byte(`{"15":{"sent":true,"sent_at":"2025-09-26T13:00:00Z"}}`), false, created, created,
	)
	mock.ExpectQuery(`FROM alerts a\s+LEFT JOIN animals an`).
		WithArgs("owner-1", int64(3), "likely_birth", "2025-10-11").
		WillReturnRows(rows)

	got, err := repo.Find(context.Background(), model.AlertKey{
		TenantID: "owner-1", AnimalID: 3, Kind: model.AlertKindLikelyBirth, TargetDate: civil.MustParse("2025-10-11"),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 11, got.ID)
	assert.Equal(t, "GT-001", got.AnimalTag)
	require.NotNil(t, got.AnimalName)
	assert.Equal(t, "Luna", *got.AnimalName)
	assert.Equal(t, "2025-10-11", got.TargetDate.String())
	assert.True(t, got.Reminders.Sent(model.Threshold15))
	assert.False(t, got.Reminders.Sent(model.Threshold7))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertFindMissing(t *testing.T) {
	base, mock, m := newMock(t)
	repo := NewAlertRepository(base)

	mock.ExpectQuery(`FROM alerts a`).WillReturnRows(sqlmock.NewRows(alertCols))

	_, err := repo.Find(context.Background(), model.AlertKey{TenantID: "owner-1", AnimalID: 3, Kind: model.AlertKindDryOff})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatabaseOperations.WithLabelValues("alert_find", "ok")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertInsertReturnsID(t *testing.T) {
	base, mock, _ := newMock(t)
	repo := NewAlertRepository(base)

	mock.ExpectQuery(`INSERT INTO alerts`).
		WithArgs("owner-1", int64(3), "dry_off", "2025-07-30", "pending",
			"Service #5 on 2025-01-01", "estimated dry-off (~210d)", nil, "{}",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	alert := &model.Alert{
		TenantID: "owner-1", AnimalID: 3, Kind: model.AlertKindDryOff,
		TargetDate: civil.MustParse("2025-07-30"), State: model.AlertStatePending,
		Trigger: "Service #5 on 2025-01-01", Note: "estimated dry-off (~210d)",
	}
	require.NoError(t, repo.Insert(context.Background(), alert))
	assert.EqualValues(t, 42, alert.ID)
	assert.False(t, alert.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertInsertUniqueViolation(t *testing.T) {
	base, mock, m := newMock(t)
	repo := NewAlertRepository(base)

	mock.ExpectQuery(`INSERT INTO alerts`).WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key"})

	err := repo.Insert(context.Background(), &model.Alert{TenantID: "owner-1", AnimalID: 3, Kind: model.AlertKindDryOff})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatabaseOperations.WithLabelValues("alert_insert", "error")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertUpdateMissingRow(t *testing.T) {
	base, mock, _ := newMock(t)
	repo := NewAlertRepository(base)

	mock.ExpectExec(`UPDATE alerts SET.*AND state = \$11`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT state FROM alerts`).
		WithArgs(int64(9), "owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"state"}))

	err := repo.Update(context.Background(), &model.Alert{ID: 9, TenantID: "owner-1"}, model.AlertStatePending)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertUpdateStateMovedOn(t *testing.T) {
	base, mock, m := newMock(t)
	repo := NewAlertRepository(base)

	mock.ExpectExec(`UPDATE alerts SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT state FROM alerts`).
		WithArgs(int64(9), "owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("attended"))

	alert := &model.Alert{ID: 9, TenantID: "owner-1", State: model.AlertStateExpired}
	err := repo.Update(context.Background(), alert, model.AlertStatePending)
	assert.ErrorIs(t, err, repository.ErrStateChanged)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatabaseOperations.WithLabelValues("alert_update", "ok")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertSetStateIsConditional(t *testing.T) {
	base, mock, _ := newMock(t)
	repo := NewAlertRepository(base)

	mock.ExpectExec(`UPDATE alerts SET state = \$1.*AND state = \$4`).
		WithArgs("notified", int64(9), "owner-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetState(context.Background(), "owner-1", 9, model.AlertStatePending, model.AlertStateNotified)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertSetStateLosesRace(t *testing.T) {
	base, mock, _ := newMock(t)
	repo := NewAlertRepository(base)

	mock.ExpectExec(`UPDATE alerts SET state`).
		WithArgs("notified", int64(9), "owner-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT state FROM alerts`).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("attended"))

	err := repo.SetState(context.Background(), "owner-1", 9, model.AlertStatePending, model.AlertStateNotified)
	assert.ErrorIs(t, err, repository.ErrStateChanged)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertSetStateMissing(t *testing.T) {
	base, mock, _ := newMock(t)
	repo := NewAlertRepository(base)

	mock.ExpectExec(`UPDATE alerts SET state`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT state FROM alerts`).WillReturnRows(sqlmock.NewRows([]string{"state"}))

	err := repo.SetState(context.Background(), "owner-1", 9, model.AlertStatePending, model.AlertStateAttended)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertCountPending(t *testing.T) {
	base, mock, _ := newMock(t)
	repo := NewAlertRepository(base)

	mock.ExpectQuery(`COUNT\(\*\) AS pending.*FROM alerts a\s+JOIN animals an.*a.state = 'pending'`).
		WithArgs("owner-1", "2025-03-10", "2025-03-17").
		WillReturnRows(sqlmock.NewRows([]string{"pending", "due_today", "due_this_week", "overdue"}).
			AddRow(7, 1, 2, 3))

	got, err := repo.CountPending(context.Background(), "owner-1", civil.MustParse("2025-03-10"))
	require.NoError(t, err)
	assert.Equal(t, model.AlertCounts{Pending: 7, DueToday: 1, DueThisWeek: 2, Overdue: 3}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertListBuildsFilter(t *testing.T) {
	base, mock, _ := newMock(t)
	repo := NewAlertRepository(base)

	mock.ExpectQuery(`an.tag ILIKE \$2 OR an.name ILIKE \$2.*a.state = \$3.*a.target_date >= \$4.*a.target_date <= \$5.*ORDER BY a.target_date, an.tag.*LIMIT \$6 OFFSET \$7`).
		WithArgs("owner-1", "%lun%", "pending", "2025-03-07", "2025-04-14", 100, 0).
		WillReturnRows(sqlmock.NewRows(alertCols))

	filter := model.AlertFilter{Query: " lun ", Upcoming: true}.Resolve(civil.MustParse("2025-03-10"))
	got, err := repo.List(context.Background(), "owner-1", filter)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertExpirePending(t *testing.T) {
	base, mock, _ := newMock(t)
	repo := NewAlertRepository(base)

	mock.ExpectExec(`UPDATE alerts SET state = 'expired'.*target_date < \$1`).
		WithArgs("2025-03-10").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.ExpirePending(context.Background(), civil.MustParse("2025-03-10"))
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertBatchUpdateIsOneTransaction(t *testing.T) {
	base, mock, _ := newMock(t)
	repo := NewAlertRepository(base)
	at := time.Date(2025, 9, 26, 13, 0, 0, 0, time.UTC)

	a := &model.Alert{ID: 1, Reminders: model.Reminders{}, UpdatedAt: at}
	a.Reminders.Mark(model.Threshold15, at)
	b := &model.Alert{ID: 2, Reminders: model.Reminders{}, UpdatedAt: at}
	b.Reminders.Mark(model.Threshold0, at)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`reminders = \$1::jsonb \|\| reminders`)
	prep.ExpectExec().
		WithArgs(`{"15":{"sent":true,"sent_at":"2025-09-26T13:00:00Z"}}`, at, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs(`{"0":{"sent":true,"sent_at":"2025-09-26T13:00:00Z"}}`, at, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.BatchUpdate(context.Background(), []*model.Alert{a, b}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertBatchUpdateRollsBack(t *testing.T) {
	base, mock, _ := newMock(t)
	repo := NewAlertRepository(base)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`UPDATE alerts SET`)
	prep.ExpectExec().WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.BatchUpdate(context.Background(), []*model.Alert{{ID: 1, Reminders: model.Reminders{}}})
	assert.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceLatestForAnimal(t *testing.T) {
	base, mock, _ := newMock(t)
	repo := NewServiceRepository(base)

	mock.ExpectQuery(`FROM breeding_services.*service_date <= \$3`).
		WithArgs("owner-1", int64(3), "2025-02-02").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "animal_id", "service_date", "kind", "sire", "notes", "created_at"}).
			AddRow(int64(5), "owner-1", int64(3), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "ai", nil, nil, time.Now()))

	got, err := repo.LatestForAnimal(context.Background(), "owner-1", 3, civil.MustParse("2025-02-02"))
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01", got.Date.String())
	assert.Equal(t, model.ServiceKindAI, got.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPregnancyCheckUpdate(t *testing.T) {
	base, mock, _ := newMock(t)
	repo := NewPregnancyCheckRepository(base)
	created := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE pregnancy_checks SET.*RETURNING animal_id, created_at`).
		WithArgs("2025-02-10", "pregnant", nil, nil, nil, int64(8), "owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"animal_id", "created_at"}).AddRow(int64(3), created))

	check := &model.PregnancyCheck{
		ID: 8, TenantID: "owner-1", Date: civil.MustParse("2025-02-10"), Result: model.CheckResultPregnant,
	}
	require.NoError(t, repo.Update(context.Background(), check))
	assert.EqualValues(t, 3, check.AnimalID)
	assert.Equal(t, created, check.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPregnancyCheckGetMissing(t *testing.T) {
	base, mock, _ := newMock(t)
	repo := NewPregnancyCheckRepository(base)

	mock.ExpectQuery(`FROM pregnancy_checks`).
		WithArgs(int64(8), "owner-2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), "owner-2", 8)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnimalStatusUpdate(t *testing.T) {
	base, mock, _ := newMock(t)
	repo := NewAnimalRepository(base)

	mock.ExpectExec(`UPDATE animals SET reproductive_status`).
		WithArgs("pregnant", int64(3), "owner-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateReproductiveStatus(context.Background(), "owner-1", 3, model.ReproductiveStatusPregnant))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserGet(t *testing.T) {
	base, mock, _ := newMock(t)
	repo := NewUserRepository(base)

	mock.ExpectQuery(`SELECT id, email, name FROM users`).
		WithArgs("owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).AddRow("owner-1", "ana@ranch.test", "Ana"))

	u, err := repo.Get(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "ana@ranch.test", u.Email)
	require.NoError(t, mock.ExpectationsWereMet())
}
