package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/septivank/smart-copro/internal/db"
)

const thresholdColumns = `id, alert_type, limit_value, meter_id, created_at`

func scanThreshold(row pgx.Row) (*db.Threshold, error) {
	var t db.Threshold
	if err := row.Scan(&t.ID, &t.Type, &t.Limit, &t.MeterID, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (q *queries) collectThresholds(ctx context.Context, op, query string, args ...any) ([]db.Threshold, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(op, "threshold", err)
	}
	defer rows.Close()

	thresholds := make([]db.Threshold, 0)
	for rows.Next() {
		t, err := scanThreshold(rows)
		if err != nil {
			return nil, translate(op, "threshold", err)
		}
		thresholds = append(thresholds, *t)
	}
	return thresholds, translate(op, "threshold", rows.Err())
}

// CreateThreshold inserts a threshold
func (q *queries) CreateThreshold(ctx context.Context, threshold *db.Threshold) error {
	query := `
		INSERT INTO thresholds (alert_type, limit_value, meter_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := q.db.QueryRow(ctx, query, threshold.Type, threshold.Limit, threshold.MeterID).
		Scan(&threshold.ID, &threshold.CreatedAt)
	return translate("thresholds.create", "threshold", err)
}

// UpdateThreshold overwrites type, limit and scope of a threshold
func (q *queries) UpdateThreshold(ctx context.Context, threshold *db.Threshold) error {
	query := `
		UPDATE thresholds
		SET alert_type = $2, limit_value = $3, meter_id = $4
		WHERE id = $1
		RETURNING created_at
	`

	err := q.db.QueryRow(ctx, query, threshold.ID, threshold.Type, threshold.Limit, threshold.MeterID).
		Scan(&threshold.CreatedAt)
	return translate("thresholds.update", "threshold", err)
}

// DeleteThreshold removes a threshold. Alerts it raised keep a nil reference.
func (q *queries) DeleteThreshold(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM thresholds WHERE id = $1`, id)
	if err != nil {
		return translate("thresholds.delete", "threshold", err)
	}
	if tag.RowsAffected() == 0 {
		return translate("thresholds.delete", "threshold", pgx.ErrNoRows)
	}
	return nil
}

// GetThreshold retrieves a threshold by id
func (q *queries) GetThreshold(ctx context.Context, id int64) (*db.Threshold, error) {
	t, err := scanThreshold(q.db.QueryRow(ctx, `SELECT `+thresholdColumns+` FROM thresholds WHERE id = $1`, id))
	if err != nil {
		return nil, translate("thresholds.get", "threshold", err)
	}
	return t, nil
}

// ListThresholds returns every threshold in creation order
func (q *queries) ListThresholds(ctx context.Context) ([]db.Threshold, error) {
	return q.collectThresholds(ctx, "thresholds.list",
		`SELECT `+thresholdColumns+` FROM thresholds ORDER BY created_at, id`)
}

// ThresholdsForMeter returns the thresholds scoped to a meter plus the global
// ones, in creation order
func (q *queries) ThresholdsForMeter(ctx context.Context, meterID int64) ([]db.Threshold, error) {
	return q.collectThresholds(ctx, "thresholds.for_meter",
		`SELECT `+thresholdColumns+` FROM thresholds WHERE meter_id = $1 OR meter_id IS NULL ORDER BY created_at, id`,
		meterID)
}
