package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/septivank/smart-copro/internal/db"
)

const alertColumns = `id, threshold_id, meter_id, description, detected_at, handled`

func scanAlert(row pgx.Row) (*db.Alert, error) {
	var a db.Alert
	if err := row.Scan(&a.ID, &a.ThresholdID, &a.MeterID, &a.Description, &a.DetectedAt, &a.Handled); err != nil {
		return nil, err
	}
	return &a, nil
}

// InsertAlert inserts an unhandled alert
func (q *queries) InsertAlert(ctx context.Context, alert *db.Alert) error {
	query := `
		INSERT INTO alerts (threshold_id, meter_id, description, detected_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, handled
	`

	err := q.db.QueryRow(ctx, query, alert.ThresholdID, alert.MeterID, alert.Description, alert.DetectedAt).
		Scan(&alert.ID, &alert.Handled)
	return translate("alerts.insert", "alert", err)
}

// ListAlerts returns alerts newest first, optionally filtered by handled flag
func (q *queries) ListAlerts(ctx context.Context, handled *bool) ([]db.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts`
	var args []any
	if handled != nil {
		query += ` WHERE handled = $1`
		args = append(args, *handled)
	}
	query += ` ORDER BY detected_at DESC, id DESC`

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translate("alerts.list", "alert", err)
	}
	defer rows.Close()

	alerts := make([]db.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, translate("alerts.list", "alert", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, translate("alerts.list", "alert", rows.Err())
}

// MarkAlertHandled flags an alert as handled. Handling twice is a no-op.
func (q *queries) MarkAlertHandled(ctx context.Context, id int64) (*db.Alert, error) {
	a, err := scanAlert(q.db.QueryRow(ctx,
		`UPDATE alerts SET handled = true WHERE id = $1 RETURNING `+alertColumns, id))
	if err != nil {
		return nil, translate("alerts.handle", "alert", err)
	}
	return a, nil
}

// GetIdentity retrieves an identity by id
func (q *queries) GetIdentity(ctx context.Context, id uuid.UUID) (*db.Identity, error) {
	query := `SELECT id, role, email, display_name, created_at FROM identities WHERE id = $1`

	var identity db.Identity
	err := q.db.QueryRow(ctx, query, id).Scan(
		&identity.ID,
		&identity.Role,
		&identity.Email,
		&identity.DisplayName,
		&identity.CreatedAt,
	)
	if err != nil {
		return nil, translate("identities.get", "identity", err)
	}
	return &identity, nil
}
