package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/septivank/smart-copro/internal/apperr"
	"github.com/septivank/smart-copro/internal/db"
)

const complaintColumns = `id, resident_id, description, category, priority, status, meter_id, submitted_at, updated_at`

func scanComplaint(row pgx.Row) (*db.Complaint, error) {
	var c db.Complaint
	err := row.Scan(
		&c.ID,
		&c.ResidentID,
		&c.Description,
		&c.Category,
		&c.Priority,
		&c.Status,
		&c.MeterID,
		&c.SubmittedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertComplaint inserts a complaint
func (q *queries) InsertComplaint(ctx context.Context, complaint *db.Complaint) error {
	query := `
		INSERT INTO complaints (resident_id, description, category, priority, status, meter_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, submitted_at, updated_at
	`

	err := q.db.QueryRow(ctx, query,
		complaint.ResidentID,
		complaint.Description,
		complaint.Category,
		complaint.Priority,
		complaint.Status,
		complaint.MeterID,
	).Scan(&complaint.ID, &complaint.SubmittedAt, &complaint.UpdatedAt)
	return translate("complaints.insert", "complaint", err)
}

// GetComplaint retrieves a complaint by id
func (q *queries) GetComplaint(ctx context.Context, id int64) (*db.Complaint, error) {
	c, err := scanComplaint(q.db.QueryRow(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE id = $1`, id))
	if err != nil {
		return nil, translate("complaints.get", "complaint", err)
	}
	return c, nil
}

// GetComplaintForUpdate retrieves a complaint and locks its row until the
// surrounding transaction ends
func (q *queries) GetComplaintForUpdate(ctx context.Context, id int64) (*db.Complaint, error) {
	c, err := scanComplaint(q.db.QueryRow(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, translate("complaints.get_for_update", "complaint", err)
	}
	return c, nil
}

// ListComplaints returns complaints newest first. A non-nil residentID
// restricts the list to that resident's complaints.
func (q *queries) ListComplaints(ctx context.Context, residentID *uuid.UUID) ([]db.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints`
	var args []any
	if residentID != nil {
		query += ` WHERE resident_id = $1`
		args = append(args, *residentID)
	}
	query += ` ORDER BY submitted_at DESC, id DESC`

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translate("complaints.list", "complaint", err)
	}
	defer rows.Close()

	complaints := make([]db.Complaint, 0)
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, translate("complaints.list", "complaint", err)
		}
		complaints = append(complaints, *c)
	}
	return complaints, translate("complaints.list", "complaint", rows.Err())
}

// UpdateComplaintState writes a manual status and priority change. The write
// is refused when it would move a resolved or rejected complaint to another
// status.
func (q *queries) UpdateComplaintState(ctx context.Context, id int64, status db.ComplaintStatus, priority db.Priority) error {
	query := `
		UPDATE complaints
		SET status = $2, priority = $3, updated_at = now()
		WHERE id = $1 AND (status = $2 OR status NOT IN ('RESOLVED', 'REJECTED'))
	`

	tag, err := q.db.Exec(ctx, query, id, status, priority)
	if err != nil {
		return translate("complaints.update_state", "complaint", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Tell a missing complaint apart from a closed one
	if _, err := q.GetComplaint(ctx, id); err != nil {
		return err
	}
	return apperr.Conflict("complaint is closed").WithField("status").WithOp("complaints.update_state")
}

// ForceComplaintStatus sets the status unconditionally. Used by dispatch and
// report processing, which own those transitions.
func (q *queries) ForceComplaintStatus(ctx context.Context, id int64, status db.ComplaintStatus) error {
	tag, err := q.db.Exec(ctx, `UPDATE complaints SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return translate("complaints.force_status", "complaint", err)
	}
	if tag.RowsAffected() == 0 {
		return translate("complaints.force_status", "complaint", pgx.ErrNoRows)
	}
	return nil
}
