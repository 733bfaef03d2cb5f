package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/septivank/smart-copro/internal/db"
)

const readingColumns = `r.id, r.meter_id, r.value, r.recorded_at, r.method, r.corrected, r.comment, r.created_at`

func scanReading(row pgx.Row) (*db.Reading, error) {
	var reading db.Reading
	err := row.Scan(
		&reading.ID,
		&reading.MeterID,
		&reading.Value,
		&reading.RecordedAt,
		&reading.Method,
		&reading.Corrected,
		&reading.Comment,
		&reading.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &reading, nil
}

// InsertReading inserts a reading. A second reading for the same meter and
// timestamp is reported as a conflict.
func (q *queries) InsertReading(ctx context.Context, reading *db.Reading) error {
	query := `
		INSERT INTO readings (meter_id, value, recorded_at, method, comment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, corrected, created_at
	`

	err := q.db.QueryRow(ctx, query,
		reading.MeterID,
		reading.Value,
		reading.RecordedAt,
		reading.Method,
		reading.Comment,
	).Scan(&reading.ID, &reading.Corrected, &reading.CreatedAt)
	return translate("readings.insert", "reading", err)
}

// InsertReadingIfAbsent inserts a reading unless one already exists for the
// meter at that timestamp. It reports whether a row was written.
func (q *queries) InsertReadingIfAbsent(ctx context.Context, reading *db.Reading) (bool, error) {
	query := `
		INSERT INTO readings (meter_id, value, recorded_at, method, comment)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT readings_meter_recorded_at_key DO NOTHING
		RETURNING id, corrected, created_at
	`

	err := q.db.QueryRow(ctx, query,
		reading.MeterID,
		reading.Value,
		reading.RecordedAt,
		reading.Method,
		reading.Comment,
	).Scan(&reading.ID, &reading.Corrected, &reading.CreatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, translate("readings.insert_if_absent", "reading", err)
	}
	return true, nil
}

// GetReading retrieves a reading by id
func (q *queries) GetReading(ctx context.Context, id int64) (*db.Reading, error) {
	reading, err := scanReading(q.db.QueryRow(ctx, `SELECT `+readingColumns+` FROM readings r WHERE r.id = $1`, id))
	if err != nil {
		return nil, translate("readings.get", "reading", err)
	}
	return reading, nil
}

// UpdateReading stores a corrected value and comment
func (q *queries) UpdateReading(ctx context.Context, reading *db.Reading) error {
	query := `
		UPDATE readings
		SET value = $2, comment = $3, corrected = $4
		WHERE id = $1
	`

	tag, err := q.db.Exec(ctx, query, reading.ID, reading.Value, reading.Comment, reading.Corrected)
	if err != nil {
		return translate("readings.update", "reading", err)
	}
	if tag.RowsAffected() == 0 {
		return translate("readings.update", "reading", pgx.ErrNoRows)
	}
	return nil
}

// ListReadings returns readings newest first, optionally filtered by meter
// reference or zone
func (q *queries) ListReadings(ctx context.Context, filter ReadingFilter) ([]db.Reading, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.MeterReference != "" {
		args = append(args, filter.MeterReference)
		conditions = append(conditions, fmt.Sprintf("m.reference = $%d", len(args)))
	}
	if filter.ZoneID != 0 {
		args = append(args, filter.ZoneID)
		conditions = append(conditions, fmt.Sprintf("m.zone_id = $%d", len(args)))
	}

	query := `SELECT ` + readingColumns + ` FROM readings r JOIN meters m ON m.id = r.meter_id`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY r.recorded_at DESC, r.id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translate("readings.list", "reading", err)
	}
	defer rows.Close()

	readings := make([]db.Reading, 0)
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, translate("readings.list", "reading", err)
		}
		readings = append(readings, *reading)
	}
	return readings, translate("readings.list", "reading", rows.Err())
}

// RecentReadingValues gets the latest values of a meter for anomaly detection,
// leaving out the reading being evaluated
func (q *queries) RecentReadingValues(ctx context.Context, meterID, excludeID int64, limit int) ([]float64, error) {
	query := `
		SELECT value
		FROM readings
		WHERE meter_id = $1 AND id <> $2
		ORDER BY recorded_at DESC
		LIMIT $3
	`

	rows, err := q.db.Query(ctx, query, meterID, excludeID, limit)
	if err != nil {
		return nil, translate("readings.recent", "reading", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var value float64
		if err := rows.Scan(&value); err != nil {
			return nil, translate("readings.recent", "reading", err)
		}
		values = append(values, value)
	}
	return values, translate("readings.recent", "reading", rows.Err())
}

// ZoneConsumption aggregates the readings of every meter in a zone over [from, to)
func (q *queries) ZoneConsumption(ctx context.Context, zoneID int64, from, to time.Time) (*db.ZoneConsumption, error) {
	query := `
		SELECT count(r.id), coalesce(avg(r.value), 0), coalesce(max(r.value), 0)
		FROM readings r
		JOIN meters m ON m.id = r.meter_id
		WHERE m.zone_id = $1 AND r.recorded_at >= $2 AND r.recorded_at < $3
	`

	result := db.ZoneConsumption{ZoneID: zoneID, From: from, To: to}
	err := q.db.QueryRow(ctx, query, zoneID, from, to).Scan(&result.ReadingCount, &result.Average, &result.Maximum)
	if err != nil {
		return nil, translate("readings.zone_consumption", "zone", err)
	}
	return &result, nil
}
