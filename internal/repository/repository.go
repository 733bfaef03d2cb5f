package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/smart-copro/internal/apperr"
	"github.com/septivank/smart-copro/internal/db"
)

// DBTX is satisfied by both the pool and a transaction
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ReadingFilter narrows ListReadings. Zero values mean no filter.
type ReadingFilter struct {
	MeterReference string
	ZoneID         int64
	Limit          int
}

// Metric names a dashboard counter
type Metric string

const (
	MetricZones                   Metric = "zones"
	MetricMeters                  Metric = "meters"
	MetricResidents               Metric = "residents"
	MetricTechnicians             Metric = "technicians"
	MetricComplaints              Metric = "complaints"
	MetricOpenComplaints          Metric = "open_complaints"
	MetricResolvedComplaints      Metric = "resolved_complaints"
	MetricUnhandledAlerts         Metric = "unhandled_alerts"
	MetricInProgressInterventions Metric = "in_progress_interventions"
)

// Querier lists every query the services run, inside or outside a transaction
type Querier interface {
	CreateZone(ctx context.Context, zone *db.Zone) error
	GetZone(ctx context.Context, id int64) (*db.Zone, error)
	ListZones(ctx context.Context) ([]db.Zone, error)

	CreateMeter(ctx context.Context, meter *db.Meter) error
	UpdateMeter(ctx context.Context, meter *db.Meter) error
	GetMeter(ctx context.Context, id int64) (*db.Meter, error)
	GetMeterByReference(ctx context.Context, reference string) (*db.Meter, error)
	ListMeters(ctx context.Context) ([]db.Meter, error)

	InsertReading(ctx context.Context, reading *db.Reading) error
	InsertReadingIfAbsent(ctx context.Context, reading *db.Reading) (bool, error)
	GetReading(ctx context.Context, id int64) (*db.Reading, error)
	UpdateReading(ctx context.Context, reading *db.Reading) error
	ListReadings(ctx context.Context, filter ReadingFilter) ([]db.Reading, error)
	RecentReadingValues(ctx context.Context, meterID, excludeID int64, limit int) ([]float64, error)
	ZoneConsumption(ctx context.Context, zoneID int64, from, to time.Time) (*db.ZoneConsumption, error)

	CreateThreshold(ctx context.Context, threshold *db.Threshold) error
	UpdateThreshold(ctx context.Context, threshold *db.Threshold) error
	DeleteThreshold(ctx context.Context, id int64) error
	GetThreshold(ctx context.Context, id int64) (*db.Threshold, error)
	ListThresholds(ctx context.Context) ([]db.Threshold, error)
	ThresholdsForMeter(ctx context.Context, meterID int64) ([]db.Threshold, error)

	InsertAlert(ctx context.Context, alert *db.Alert) error
	ListAlerts(ctx context.Context, handled *bool) ([]db.Alert, error)
	MarkAlertHandled(ctx context.Context, id int64) (*db.Alert, error)

	GetIdentity(ctx context.Context, id uuid.UUID) (*db.Identity, error)

	InsertComplaint(ctx context.Context, complaint *db.Complaint) error
	GetComplaint(ctx context.Context, id int64) (*db.Complaint, error)
	GetComplaintForUpdate(ctx context.Context, id int64) (*db.Complaint, error)
	ListComplaints(ctx context.Context, residentID *uuid.UUID) ([]db.Complaint, error)
	UpdateComplaintState(ctx context.Context, id int64, status db.ComplaintStatus, priority db.Priority) error
	ForceComplaintStatus(ctx context.Context, id int64, status db.ComplaintStatus) error

	InsertIntervention(ctx context.Context, intervention *db.Intervention) error
	GetIntervention(ctx context.Context, id int64) (*db.Intervention, error)
	GetInterventionForUpdate(ctx context.Context, id int64) (*db.Intervention, error)
	InterventionExistsForComplaint(ctx context.Context, complaintID int64) (bool, error)
	UpdateIntervention(ctx context.Context, intervention *db.Intervention) error
	DeleteIntervention(ctx context.Context, id int64) error
	ListInterventions(ctx context.Context, technicianID *uuid.UUID) ([]db.Intervention, error)

	Count(ctx context.Context, metric Metric) (int64, error)
}

// Store is a Querier that can also run a unit of work atomically
type Store interface {
	Querier
	InTx(ctx context.Context, fn func(q Querier) error) error
}

// Repository handles database operations
type Repository struct {
	*queries
	pool *pgxpool.Pool
}

type queries struct {
	db DBTX
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{queries: &queries{db: pool}, pool: pool}
}

// InTx runs fn inside a transaction, committing when fn returns nil
func (r *Repository) InTx(ctx context.Context, fn func(q Querier) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&queries{db: tx})
	})
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

var conflictMessages = map[string]string{
	"readings_meter_recorded_at_key": "a reading already exists for this meter at this timestamp",
	"interventions_complaint_id_key": "complaint already has an intervention",
	"meters_reference_key":           "meter reference already exists",
	"identities_email_key":           "email already registered",
}

// translate turns a storage error into an apperr error. entity names the row
// looked up, for not-found messages.
func translate(op, entity string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity + " not found").WithOp(op)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			msg, ok := conflictMessages[pgErr.ConstraintName]
			if !ok {
				msg = "resource already exists"
			}
			return apperr.Conflict(msg).WithOp(op)
		case pgForeignKeyViolation:
			field := foreignKeyField(pgErr.TableName, pgErr.ConstraintName)
			return apperr.FieldValidation(field, "referenced resource does not exist").WithOp(op)
		}
	}

	return apperr.Internal("database error", err).WithOp(op)
}

// foreignKeyField recovers the column from PostgreSQL's default
// "<table>_<column>_fkey" constraint names.
func foreignKeyField(table, constraint string) string {
	field := strings.TrimSuffix(constraint, "_fkey")
	if table != "" {
		field = strings.TrimPrefix(field, table+"_")
	}
	return field
}
