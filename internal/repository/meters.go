package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/septivank/smart-copro/internal/db"
)

// CreateZone inserts a zone
func (q *queries) CreateZone(ctx context.Context, zone *db.Zone) error {
	query := `
		INSERT INTO zones (name, surface)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	err := q.db.QueryRow(ctx, query, zone.Name, zone.Surface).Scan(&zone.ID, &zone.CreatedAt)
	return translate("zones.create", "zone", err)
}

// GetZone retrieves a zone by id
func (q *queries) GetZone(ctx context.Context, id int64) (*db.Zone, error) {
	var z db.Zone
	err := q.db.QueryRow(ctx, `SELECT id, name, surface, created_at FROM zones WHERE id = $1`, id).
		Scan(&z.ID, &z.Name, &z.Surface, &z.CreatedAt)
	if err != nil {
		return nil, translate("zones.get", "zone", err)
	}
	return &z, nil
}

// ListZones returns all zones ordered by name
func (q *queries) ListZones(ctx context.Context) ([]db.Zone, error) {
	rows, err := q.db.Query(ctx, `SELECT id, name, surface, created_at FROM zones ORDER BY name, id`)
	if err != nil {
		return nil, translate("zones.list", "zone", err)
	}
	defer rows.Close()

	zones := make([]db.Zone, 0)
	for rows.Next() {
		var z db.Zone
		if err := rows.Scan(&z.ID, &z.Name, &z.Surface, &z.CreatedAt); err != nil {
			return nil, translate("zones.list", "zone", err)
		}
		zones = append(zones, z)
	}
	return zones, translate("zones.list", "zone", rows.Err())
}

const meterColumns = `id, reference, location, installed_on, meter_type, state, zone_id, default_threshold, created_at`

func scanMeter(row pgx.Row) (*db.Meter, error) {
	var m db.Meter
	err := row.Scan(
		&m.ID,
		&m.Reference,
		&m.Location,
		&m.InstalledOn,
		&m.Type,
		&m.State,
		&m.ZoneID,
		&m.DefaultThreshold,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMeter inserts a meter
func (q *queries) CreateMeter(ctx context.Context, meter *db.Meter) error {
	query := `
		INSERT INTO meters (reference, location, installed_on, meter_type, state, zone_id, default_threshold)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := q.db.QueryRow(ctx, query,
		meter.Reference,
		meter.Location,
		meter.InstalledOn,
		meter.Type,
		meter.State,
		meter.ZoneID,
		meter.DefaultThreshold,
	).Scan(&meter.ID, &meter.CreatedAt)
	return translate("meters.create", "meter", err)
}

// UpdateMeter overwrites the mutable fields of a meter
func (q *queries) UpdateMeter(ctx context.Context, meter *db.Meter) error {
	query := `
		UPDATE meters
		SET location = $2, meter_type = $3, state = $4, zone_id = $5, default_threshold = $6
		WHERE id = $1
		RETURNING ` + meterColumns

	updated, err := scanMeter(q.db.QueryRow(ctx, query,
		meter.ID,
		meter.Location,
		meter.Type,
		meter.State,
		meter.ZoneID,
		meter.DefaultThreshold,
	))
	if err != nil {
		return translate("meters.update", "meter", err)
	}
	*meter = *updated
	return nil
}

// GetMeter retrieves a meter by id
func (q *queries) GetMeter(ctx context.Context, id int64) (*db.Meter, error) {
	m, err := scanMeter(q.db.QueryRow(ctx, `SELECT `+meterColumns+` FROM meters WHERE id = $1`, id))
	if err != nil {
		return nil, translate("meters.get", "meter", err)
	}
	return m, nil
}

// GetMeterByReference retrieves a meter by its unique reference
func (q *queries) GetMeterByReference(ctx context.Context, reference string) (*db.Meter, error) {
	m, err := scanMeter(q.db.QueryRow(ctx, `SELECT `+meterColumns+` FROM meters WHERE reference = $1`, reference))
	if err != nil {
		return nil, translate("meters.get_by_reference", "meter", err)
	}
	return m, nil
}

// ListMeters returns all meters ordered by reference
func (q *queries) ListMeters(ctx context.Context) ([]db.Meter, error) {
	rows, err := q.db.Query(ctx, `SELECT `+meterColumns+` FROM meters ORDER BY reference`)
	if err != nil {
		return nil, translate("meters.list", "meter", err)
	}
	defer rows.Close()

	meters := make([]db.Meter, 0)
	for rows.Next() {
		m, err := scanMeter(rows)
		if err != nil {
			return nil, translate("meters.list", "meter", err)
		}
		meters = append(meters, *m)
	}
	return meters, translate("meters.list", "meter", rows.Err())
}
