package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/herd-api/internal/model"
	"github.com/jwalitptl/herd-api/internal/repository"
	"github.com/jwalitptl/herd-api/pkg/civil"
)

const alertSelect = `
	SELECT a.id, a.tenant_id, a.animal_id,
		COALESCE(an.tag, '') AS animal_tag, an.name AS animal_name,
		a.kind, a.target_date, a.state, a.trigger_note, a.note,
		a.recipient_id, a.reminders, a.is_deleted, a.created_at, a.updated_at
	FROM alerts a
	LEFT JOIN animals an ON an.id = a.animal_id`

type alertRepository struct {
	*BaseRepository
}

func NewAlertRepository(base *BaseRepository) repository.AlertRepository {
	return &alertRepository{BaseRepository: base}
}

func (r *alertRepository) Find(ctx context.Context, key model.AlertKey) (*model.Alert, error) {
	query := alertSelect + `
	WHERE a.tenant_id = $1 AND a.animal_id = $2 AND a.kind = $3
		AND a.target_date = $4 AND NOT a.is_deleted
	LIMIT 1`

	var alert model.Alert
	err := r.db.GetContext(ctx, &alert, query, key.TenantID, key.AnimalID, key.Kind, key.TargetDate)
	if err := r.observe("alert_find", err); err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *alertRepository) Insert(ctx context.Context, alert *model.Alert) error {
	now := time.Now().UTC()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = alert.CreatedAt
	if alert.Reminders == nil {
		alert.Reminders = model.Reminders{}
	}

	query := `
		INSERT INTO alerts (
			tenant_id, animal_id, kind, target_date, state, trigger_note,
			note, recipient_id, reminders, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	err := r.db.QueryRowxContext(ctx, query,
		alert.TenantID, alert.AnimalID, alert.Kind, alert.TargetDate, alert.State,
		alert.Trigger, alert.Note, alert.RecipientID, alert.Reminders,
		alert.CreatedAt, alert.UpdatedAt,
	).Scan(&alert.ID)
	if err := r.observe("alert_insert", err); err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (r *alertRepository) Get(ctx context.Context, tenantID string, id int64) (*model.Alert, error) {
	query := alertSelect + `
	WHERE a.id = $1 AND a.tenant_id = $2 AND NOT a.is_deleted`

	var alert model.Alert
	err := r.db.GetContext(ctx, &alert, query, id, tenantID)
	if err := r.observe("alert_get", err); err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *alertRepository) Update(ctx context.Context, alert *model.Alert, from model.AlertState) error {
	alert.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE alerts SET
			animal_id = $1, kind = $2, target_date = $3, state = $4,
			trigger_note = $5, note = $6, recipient_id = $7, updated_at = $8
		WHERE id = $9 AND tenant_id = $10 AND NOT is_deleted AND state = $11`

	err := rowsAffected(r.db.ExecContext(ctx, query,
		alert.AnimalID, alert.Kind, alert.TargetDate, alert.State,
		alert.Trigger, alert.Note, alert.RecipientID, alert.UpdatedAt,
		alert.ID, alert.TenantID, from,
	))
	err = r.missed(ctx, alert.TenantID, alert.ID, err)
	return r.observe("alert_update", err)
}

func (r *alertRepository) SetState(ctx context.Context, tenantID string, id int64, from, to model.AlertState) error {
	query := `
		UPDATE alerts SET state = $1, updated_at = now()
		WHERE id = $2 AND tenant_id = $3 AND NOT is_deleted AND state = $4`

	err := rowsAffected(r.db.ExecContext(ctx, query, to, id, tenantID, from))
	err = r.missed(ctx, tenantID, id, err)
	return r.observe("alert_set_state", err)
}

// missed tells a conditional write that matched no row apart: the alert is
// either gone or its state moved on.
func (r *alertRepository) missed(ctx context.Context, tenantID string, id int64, err error) error {
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	var state model.AlertState
	query := `SELECT state FROM alerts WHERE id = $1 AND tenant_id = $2 AND NOT is_deleted`
	switch err := r.db.GetContext(ctx, &state, query, id, tenantID); {
	case err == nil:
		return repository.ErrStateChanged
	case errors.Is(err, sql.ErrNoRows):
		return repository.ErrNotFound
	default:
		return err
	}
}

func (r *alertRepository) SoftDelete(ctx context.Context, tenantID string, id int64) error {
	query := `
		UPDATE alerts SET is_deleted = TRUE, updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND NOT is_deleted`

	err := rowsAffected(r.db.ExecContext(ctx, query, id, tenantID))
	return r.observe("alert_delete", err)
}

func (r *alertRepository) List(ctx context.Context, tenantID string, filter model.AlertFilter) ([]*model.Alert, error) {
	var (
		conds = []string{"a.tenant_id = $1", "NOT a.is_deleted", "an.id IS NOT NULL", "NOT an.is_deleted"}
		args  = []interface{}{tenantID}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q := strings.TrimSpace(filter.Query); q != "" {
		p := arg("%" + q + "%")
		conds = append(conds, fmt.Sprintf("(an.tag ILIKE %s OR an.name ILIKE %s)", p, p))
	}
	if filter.State != "" {
		conds = append(conds, "a.state = "+arg(filter.State))
	}
	if !filter.From.IsZero() {
		conds = append(conds, "a.target_date >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "a.target_date <= "+arg(filter.To))
	}

	page := filter.Page.Normalize()
	query := alertSelect + "\n\tWHERE " + strings.Join(conds, " AND ") +
		"\n\tORDER BY a.target_date, an.tag" +
		"\n\tLIMIT " + arg(page.Limit) + " OFFSET " + arg(page.Offset)

	alerts := make([]*model.Alert, 0)
	err := r.db.SelectContext(ctx, &alerts, query, args...)
	if err := r.observe("alert_list", err); err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// CountPending only counts alerts whose animal is still live, matching List.
func (r *alertRepository) CountPending(ctx context.Context, tenantID string, today civil.Date) (model.AlertCounts, error) {
	query := `
		SELECT
			COUNT(*) AS pending,
			COUNT(*) FILTER (WHERE a.target_date = $2) AS due_today,
			COUNT(*) FILTER (WHERE a.target_date > $2 AND a.target_date <= $3) AS due_this_week,
			COUNT(*) FILTER (WHERE a.target_date < $2) AS overdue
		FROM alerts a
		JOIN animals an ON an.id = a.animal_id AND NOT an.is_deleted
		WHERE a.tenant_id = $1 AND a.state = 'pending' AND NOT a.is_deleted`

	var counts model.AlertCounts
	err := r.db.GetContext(ctx, &counts, query, tenantID, today, today.AddDays(7))
	if err := r.observe("alert_count_pending", err); err != nil {
		return model.AlertCounts{}, fmt.Errorf("failed to count alerts: %w", err)
	}
	return counts, nil
}

func (r *alertRepository) ExpirePending(ctx context.Context, today civil.Date) (int64, error) {
	query := `
		UPDATE alerts SET state = 'expired', updated_at = now()
		WHERE state = 'pending' AND NOT is_deleted AND target_date < $1`

	res, err := r.db.ExecContext(ctx, query, today)
	if err := r.observe("alert_expire", err); err != nil {
		return 0, fmt.Errorf("failed to expire alerts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to expire alerts: %w", err)
	}
	return n, nil
}

func (r *alertRepository) ListPending(ctx context.Context) ([]*model.Alert, error) {
	query := alertSelect + `
	WHERE a.state = 'pending' AND NOT a.is_deleted
	ORDER BY a.id`

	alerts := make([]*model.Alert, 0)
	err := r.db.SelectContext(ctx, &alerts, query)
	if err := r.observe("alert_list_pending", err); err != nil {
		return nil, fmt.Errorf("failed to list pending alerts: %w", err)
	}
	return alerts, nil
}

// BatchUpdate merges the stored reminder object under the new one, so a
// mark already present keeps its original timestamp and is never removed.
func (r *alertRepository) BatchUpdate(ctx context.Context, alerts []*model.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	query := `
		UPDATE alerts SET
			reminders = $1::jsonb || reminders,
			updated_at = GREATEST(updated_at, $2)
		WHERE id = $3`

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, a := range alerts {
			if _, err := stmt.ExecContext(ctx, a.Reminders, a.UpdatedAt, a.ID); err != nil {
				return fmt.Errorf("alert %d: %w", a.ID, err)
			}
		}
		return nil
	})
	if err := r.observe("alert_batch_update", err); err != nil {
		return fmt.Errorf("failed to persist reminder flags: %w", err)
	}
	return nil
}
