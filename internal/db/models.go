package db

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ThresholdType is the kind of condition a threshold watches for.
type ThresholdType string

const (
	ThresholdOverConsumption ThresholdType = "OVER_CONSUMPTION"
	ThresholdReadingAnomaly  ThresholdType = "READING_ANOMALY"
)

// Valid reports whether t is a known threshold type.
func (t ThresholdType) Valid() bool {
	return t == ThresholdOverConsumption || t == ThresholdReadingAnomaly
}

// ReadingMethod is how a reading was acquired.
type ReadingMethod string

const (
	ReadingManual    ReadingMethod = "MANUAL"
	ReadingAutomatic ReadingMethod = "AUTOMATIC"
)

// ComplaintStatus is the workflow state of a complaint.
type ComplaintStatus string

const (
	StatusOpen       ComplaintStatus = "OPEN"
	StatusInProgress ComplaintStatus = "IN_PROGRESS"
	StatusResolved   ComplaintStatus = "RESOLVED"
	StatusRejected   ComplaintStatus = "REJECTED"
)

// Priority is the urgency of a complaint.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Legacy French labels still sent by older clients.
var statusAliases = map[string]ComplaintStatus{
	"OPEN":        StatusOpen,
	"OUVERTE":     StatusOpen,
	"IN_PROGRESS": StatusInProgress,
	"EN_COURS":    StatusInProgress,
	"RESOLVED":    StatusResolved,
	"RESOLUE":     StatusResolved,
	"REJECTED":    StatusRejected,
	"REJETEE":     StatusRejected,
}

var priorityAliases = map[string]Priority{
	"LOW":      PriorityLow,
	"BASSE":    PriorityLow,
	"MEDIUM":   PriorityMedium,
	"MOYENNE":  PriorityMedium,
	"HIGH":     PriorityHigh,
	"HAUTE":    PriorityHigh,
	"CRITICAL": PriorityCritical,
	"CRITIQUE": PriorityCritical,
}

// ParseStatus accepts canonical and legacy status labels, case-insensitively.
func ParseStatus(s string) (ComplaintStatus, bool) {
	status, ok := statusAliases[strings.ToUpper(strings.TrimSpace(s))]
	return status, ok
}

// ParsePriority accepts canonical and legacy priority labels, case-insensitively.
func ParsePriority(s string) (Priority, bool) {
	priority, ok := priorityAliases[strings.ToUpper(strings.TrimSpace(s))]
	return priority, ok
}

// Zone is a common area of the building served by one or more meters
type Zone struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Surface   float64   `json:"surface"`
	CreatedAt time.Time `json:"created_at"`
}

// Meter represents a metering device
type Meter struct {
	ID               int64     `json:"id"`
	Reference        string    `json:"reference"`
	Location         string    `json:"location"`
	InstalledOn      time.Time `json:"installed_on"`
	Type             string    `json:"type"`
	State            string    `json:"state"`
	ZoneID           int64     `json:"zone_id"`
	DefaultThreshold *float64  `json:"default_threshold,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Reading represents a meter reading in the database
type Reading struct {
	ID         int64         `json:"id"`
	MeterID    int64         `json:"meter_id"`
	Value      float64       `json:"value"`
	RecordedAt time.Time     `json:"recorded_at"`
	Method     ReadingMethod `json:"method"`
	Corrected  bool          `json:"corrected"`
	Comment    *string       `json:"comment,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Threshold is a configured alert limit. A nil MeterID marks a global default.
type Threshold struct {
	ID        int64         `json:"id"`
	Type      ThresholdType `json:"type"`
	Limit     float64       `json:"limit"`
	MeterID   *int64        `json:"meter_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Alert is raised by the alert engine. ThresholdID becomes nil when the
// threshold is deleted.
type Alert struct {
	ID          int64     `json:"id"`
	ThresholdID *int64    `json:"threshold_id,omitempty"`
	MeterID     int64     `json:"meter_id"`
	Description string    `json:"description"`
	DetectedAt  time.Time `json:"detected_at"`
	Handled     bool      `json:"handled"`
}

// Complaint is an issue submitted by a resident
type Complaint struct {
	ID          int64           `json:"id"`
	ResidentID  uuid.UUID       `json:"resident_id"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Priority    Priority        `json:"priority"`
	Status      ComplaintStatus `json:"status"`
	MeterID     *int64          `json:"meter_id,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Intervention is the work order attached one-to-one to a complaint.
// TechnicianID becomes nil when the technician is removed.
type Intervention struct {
	ID           int64      `json:"id"`
	ComplaintID  int64      `json:"complaint_id"`
	TechnicianID *uuid.UUID `json:"technician_id,omitempty"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	Report       string     `json:"report"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Identity is an account known to the service together with its role tag.
type Identity struct {
	ID          uuid.UUID `json:"id"`
	Role        string    `json:"role"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// ZoneConsumption aggregates the readings of every meter in a zone over a period.
type ZoneConsumption struct {
	ZoneID       int64     `json:"zone_id"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	ReadingCount int64     `json:"reading_count"`
	Average      float64   `json:"average"`
	Maximum      float64   `json:"maximum"`
}

// DashboardSnapshot is the read-only summary consumed by the report generator.
type DashboardSnapshot struct {
	Zones                   int64     `json:"zones"`
	Meters                  int64     `json:"meters"`
	Residents               int64     `json:"residents"`
	Technicians             int64     `json:"technicians"`
	OpenComplaints          int64     `json:"open_complaints"`
	UnhandledAlerts         int64     `json:"unhandled_alerts"`
	InProgressInterventions int64     `json:"in_progress_interventions"`
	ResolutionRate          float64   `json:"resolution_rate"`
	GeneratedAt             time.Time `json:"generated_at"`
}
