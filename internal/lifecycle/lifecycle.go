// Package lifecycle holds the complaint state machine:
//
//	OPEN -> IN_PROGRESS -> {RESOLVED, REJECTED}
//
// RESOLVED and REJECTED are terminal. The machine is pure: callers load the
// complaint, ask for an Outcome, persist it and emit Outcome.Notify.
package lifecycle

import (
	"unicode/utf8"

	"github.com/septivank/smart-copro/internal/apperr"
	"github.com/septivank/smart-copro/internal/db"
	"github.com/septivank/smart-copro/internal/notify"
)

const errComplaintClosed = "complaint is closed"

// IsTerminal reports whether status accepts no further transition.
func IsTerminal(status db.ComplaintStatus) bool {
	return status == db.StatusResolved || status == db.StatusRejected
}

// NotificationFor returns the notification kind raised by moving to status.
func NotificationFor(status db.ComplaintStatus) notify.Kind {
	switch status {
	case db.StatusResolved:
		return notify.KindResolution
	case db.StatusRejected:
		return notify.KindRejection
	default:
		return notify.KindUpdate
	}
}

// Outcome is the result of applying an action to a complaint.
type Outcome struct {
	Status        db.ComplaintStatus
	Priority      db.Priority
	StatusChanged bool
	Changed       bool
	// Notify is empty when nothing changed.
	Notify notify.Kind
}

// Machine applies lifecycle actions.
type Machine struct {
	reportMinLength int
	reopenTerminal  bool
}

// New creates a machine. A technician report resolves the complaint when it is
// longer than reportMinLength characters. reopenTerminal keeps the historical
// behaviour of assignment forcing IN_PROGRESS even on closed complaints.
func New(reportMinLength int, reopenTerminal bool) *Machine {
	return &Machine{reportMinLength: reportMinLength, reopenTerminal: reopenTerminal}
}

// Submit returns the initial state of a new complaint.
func (m *Machine) Submit(priority *db.Priority) (db.ComplaintStatus, db.Priority) {
	p := db.PriorityMedium
	if priority != nil {
		p = *priority
	}
	return db.StatusOpen, p
}

// ManualUpdate applies a manager edit. A closed complaint accepts a priority
// change but no status change.
func (m *Machine) ManualUpdate(c db.Complaint, status *db.ComplaintStatus, priority *db.Priority) (Outcome, error) {
	out := Outcome{Status: c.Status, Priority: c.Priority}

	if status != nil && *status != c.Status {
		if IsTerminal(c.Status) {
			return Outcome{}, apperr.Conflict(errComplaintClosed).WithField("status")
		}
		out.Status = *status
		out.StatusChanged = true
	}
	if priority != nil && *priority != c.Priority {
		out.Priority = *priority
		out.Changed = true
	}
	out.Changed = out.Changed || out.StatusChanged

	switch {
	case out.StatusChanged:
		out.Notify = NotificationFor(out.Status)
	case out.Changed:
		out.Notify = notify.KindUpdate
	}
	return out, nil
}

// Assign moves the complaint to IN_PROGRESS when an intervention is created.
func (m *Machine) Assign(c db.Complaint) (Outcome, error) {
	if IsTerminal(c.Status) && !m.reopenTerminal {
		return Outcome{}, apperr.Conflict(errComplaintClosed).WithField("complaint_id")
	}

	out := Outcome{Status: db.StatusInProgress, Priority: c.Priority}
	if c.Status != db.StatusInProgress {
		out.StatusChanged = true
		out.Changed = true
		out.Notify = notify.KindUpdate
	}
	return out, nil
}

// Report evaluates a technician report. A substantive report resolves a
// complaint that is still open or in progress; anything else is a no-op.
func (m *Machine) Report(c db.Complaint, report string) Outcome {
	out := Outcome{Status: c.Status, Priority: c.Priority}
	if IsTerminal(c.Status) || !m.IsSubstantive(report) {
		return out
	}

	out.Status = db.StatusResolved
	out.StatusChanged = true
	out.Changed = true
	out.Notify = notify.KindResolution
	return out
}

// IsSubstantive reports whether report is long enough to close a complaint.
func (m *Machine) IsSubstantive(report string) bool {
	return utf8.RuneCountInString(report) > m.reportMinLength
}
