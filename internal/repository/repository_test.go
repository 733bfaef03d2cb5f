package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/septivank/smart-copro/internal/apperr"
)

func TestTranslate_Nil(t *testing.T) {
	if err := translate("op", "meter", nil); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}

func TestTranslate_NoRows(t *testing.T) {
	err := translate("meters.get", "meter", fmt.Errorf("scan: %w", pgx.ErrNoRows))
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("Expected not found, got %v", err)
	}
	if err.Error() != "meters.get: meter not found" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}

func TestTranslate_UniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "readings_meter_recorded_at_key"}

	err := translate("readings.insert", "reading", pgErr)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("Expected conflict, got %v", err)
	}

	var appErr *apperr.Error
	errors.As(err, &appErr)
	if appErr.Message != "a reading already exists for this meter at this timestamp" {
		t.Errorf("Unexpected message %q", appErr.Message)
	}
}

func TestTranslate_UnknownUniqueConstraint(t *testing.T) {
	err := translate("zones.create", "zone", &pgconn.PgError{Code: "23505", ConstraintName: "zones_name_key"})

	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindConflict {
		t.Fatalf("Expected conflict, got %v", err)
	}
	if appErr.Message != "resource already exists" {
		t.Errorf("Unexpected message %q", appErr.Message)
	}
}

func TestTranslate_ForeignKeyViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23503", TableName: "complaints", ConstraintName: "complaints_meter_id_fkey"}

	err := translate("complaints.insert", "complaint", pgErr)

	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindValidation {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if appErr.Field != "meter_id" {
		t.Errorf("Expected field meter_id, got %q", appErr.Field)
	}
}

func TestTranslate_Other(t *testing.T) {
	cause := errors.New("connection reset")

	err := translate("alerts.list", "alert", cause)
	if !apperr.Is(err, apperr.KindInternal) {
		t.Fatalf("Expected internal error, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("Expected the cause to stay reachable")
	}
}

func TestForeignKeyField(t *testing.T) {
	tests := []struct {
		table, constraint, want string
	}{
		{"interventions", "interventions_technician_id_fkey", "technician_id"},
		{"meters", "meters_zone_id_fkey", "zone_id"},
		{"", "custom_fkey", "custom"},
	}

	for _, tt := range tests {
		if got := foreignKeyField(tt.table, tt.constraint); got != tt.want {
			t.Errorf("foreignKeyField(%q, %q) = %q, want %q", tt.table, tt.constraint, got, tt.want)
		}
	}
}

func TestMetricQueriesCoverEveryMetric(t *testing.T) {
	metrics := []Metric{
		MetricZones,
		MetricMeters,
		MetricResidents,
		MetricTechnicians,
		MetricComplaints,
		MetricOpenComplaints,
		MetricResolvedComplaints,
		MetricUnhandledAlerts,
		MetricInProgressInterventions,
	}

	for _, m := range metrics {
		if _, ok := metricQueries[m]; !ok {
			t.Errorf("No query registered for metric %s", m)
		}
	}
}
