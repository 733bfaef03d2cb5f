package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/septivank/smart-copro/internal/db"
)

const interventionColumns = `id, complaint_id, technician_id, scheduled_at, report, created_at, updated_at`

func scanIntervention(row pgx.Row) (*db.Intervention, error) {
	var i db.Intervention
	err := row.Scan(
		&i.ID,
		&i.ComplaintID,
		&i.TechnicianID,
		&i.ScheduledAt,
		&i.Report,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// InsertIntervention inserts an intervention. A second intervention for the
// same complaint is reported as a conflict.
func (q *queries) InsertIntervention(ctx context.Context, intervention *db.Intervention) error {
	query := `
		INSERT INTO interventions (complaint_id, technician_id, scheduled_at, report)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := q.db.QueryRow(ctx, query,
		intervention.ComplaintID,
		intervention.TechnicianID,
		intervention.ScheduledAt,
		intervention.Report,
	).Scan(&intervention.ID, &intervention.CreatedAt, &intervention.UpdatedAt)
	return translate("interventions.insert", "intervention", err)
}

// GetIntervention retrieves an intervention by id
func (q *queries) GetIntervention(ctx context.Context, id int64) (*db.Intervention, error) {
	i, err := scanIntervention(q.db.QueryRow(ctx, `SELECT `+interventionColumns+` FROM interventions WHERE id = $1`, id))
	if err != nil {
		return nil, translate("interventions.get", "intervention", err)
	}
	return i, nil
}

// GetInterventionForUpdate retrieves an intervention and locks its row
func (q *queries) GetInterventionForUpdate(ctx context.Context, id int64) (*db.Intervention, error) {
	i, err := scanIntervention(q.db.QueryRow(ctx, `SELECT `+interventionColumns+` FROM interventions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, translate("interventions.get_for_update", "intervention", err)
	}
	return i, nil
}

// InterventionExistsForComplaint reports whether a complaint already has an intervention
func (q *queries) InterventionExistsForComplaint(ctx context.Context, complaintID int64) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM interventions WHERE complaint_id = $1)`, complaintID).Scan(&exists)
	if err != nil {
		return false, translate("interventions.exists", "intervention", err)
	}
	return exists, nil
}

// UpdateIntervention overwrites technician, schedule and report
func (q *queries) UpdateIntervention(ctx context.Context, intervention *db.Intervention) error {
	query := `
		UPDATE interventions
		SET technician_id = $2, scheduled_at = $3, report = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`

	err := q.db.QueryRow(ctx, query,
		intervention.ID,
		intervention.TechnicianID,
		intervention.ScheduledAt,
		intervention.Report,
	).Scan(&intervention.UpdatedAt)
	return translate("interventions.update", "intervention", err)
}

// DeleteIntervention removes an intervention. The complaint keeps its status.
func (q *queries) DeleteIntervention(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM interventions WHERE id = $1`, id)
	if err != nil {
		return translate("interventions.delete", "intervention", err)
	}
	if tag.RowsAffected() == 0 {
		return translate("interventions.delete", "intervention", pgx.ErrNoRows)
	}
	return nil
}

// ListInterventions returns interventions by schedule. A non-nil technicianID
// restricts the list to that technician's assignments.
func (q *queries) ListInterventions(ctx context.Context, technicianID *uuid.UUID) ([]db.Intervention, error) {
	query := `SELECT ` + interventionColumns + ` FROM interventions`
	var args []any
	if technicianID != nil {
		query += ` WHERE technician_id = $1`
		args = append(args, *technicianID)
	}
	query += ` ORDER BY scheduled_at, id`

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translate("interventions.list", "intervention", err)
	}
	defer rows.Close()

	interventions := make([]db.Intervention, 0)
	for rows.Next() {
		i, err := scanIntervention(rows)
		if err != nil {
			return nil, translate("interventions.list", "intervention", err)
		}
		interventions = append(interventions, *i)
	}
	return interventions, translate("interventions.list", "intervention", rows.Err())
}
