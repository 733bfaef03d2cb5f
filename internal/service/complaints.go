package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/smart-copro/internal/apperr"
	"github.com/septivank/smart-copro/internal/db"
	"github.com/septivank/smart-copro/internal/identity"
	"github.com/septivank/smart-copro/internal/lifecycle"
	"github.com/septivank/smart-copro/internal/notify"
	"github.com/septivank/smart-copro/internal/repository"
	"github.com/septivank/smart-copro/internal/validator"
	"go.uber.org/zap"
)

// ComplaintInput is a resident's complaint submission. The author is always
// the authenticated resident.
type ComplaintInput struct {
	Description string `json:"description" validate:"required"`
	Category    string `json:"category" validate:"required"`
	Priority    string `json:"priority"`
	MeterID     *int64 `json:"meter_id" validate:"omitempty,gt=0"`
}

// ComplaintPatch is a manager's status and priority edit
type ComplaintPatch struct {
	Status   *string `json:"status" validate:"required_without=Priority"`
	Priority *string `json:"priority" validate:"required_without=Status"`
}

// ComplaintService runs the complaint lifecycle for submissions and manual edits
type ComplaintService struct {
	store     repository.Store
	machine   *lifecycle.Machine
	validator *validator.Validator
	sink      notify.Sink
	logger    *zap.Logger
	now       Clock
}

// NewComplaintService creates a new complaint service
func NewComplaintService(
	store repository.Store,
	machine *lifecycle.Machine,
	validator *validator.Validator,
	sink notify.Sink,
	logger *zap.Logger,
) *ComplaintService {
	return &ComplaintService{
		store:     store,
		machine:   machine,
		validator: validator,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
	}
}

func parsePriority(raw *string) (*db.Priority, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	p, ok := db.ParsePriority(*raw)
	if !ok {
		return nil, apperr.FieldValidation("priority", "must be one of [LOW MEDIUM HIGH CRITICAL]")
	}
	return &p, nil
}

func parseStatus(raw *string) (*db.ComplaintStatus, error) {
	if raw == nil {
		return nil, nil
	}
	st, ok := db.ParseStatus(*raw)
	if !ok {
		return nil, apperr.FieldValidation("status", "must be one of [OPEN IN_PROGRESS RESOLVED REJECTED]")
	}
	return &st, nil
}

// Submit creates an OPEN complaint authored by the calling resident
func (s *ComplaintService) Submit(ctx context.Context, actor identity.Actor, in ComplaintInput) (*db.Complaint, error) {
	if err := authorize(actor, identity.RoleResident); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	priority, err := parsePriority(&in.Priority)
	if err != nil {
		return nil, err
	}

	status, p := s.machine.Submit(priority)
	complaint := &db.Complaint{
		ResidentID:  actor.ID,
		Description: in.Description,
		Category:    in.Category,
		Priority:    p,
		Status:      status,
		MeterID:     in.MeterID,
	}

	err = s.store.InTx(ctx, func(q repository.Querier) error {
		if in.MeterID != nil {
			if _, err := q.GetMeter(ctx, *in.MeterID); err != nil {
				return asFieldError(err, "meter_id")
			}
		}
		return q.InsertComplaint(ctx, complaint)
	})
	if err != nil {
		logFailure(s.logger, "failed to submit complaint", err, zap.String("resident_id", actor.ID.String()))
		return nil, err
	}

	s.logger.Info("complaint submitted",
		zap.Int64("complaint_id", complaint.ID),
		zap.String("resident_id", actor.ID.String()),
		zap.String("priority", string(complaint.Priority)),
	)
	return complaint, nil
}

// Update applies a manager's status and priority edit. A closed complaint
// keeps its status; the check is repeated by the guarded write under the row
// lock.
func (s *ComplaintService) Update(ctx context.Context, actor identity.Actor, id int64, patch ComplaintPatch) (*db.Complaint, error) {
	if err := authorize(actor, identity.RoleManager); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(patch); err != nil {
		return nil, err
	}
	status, err := parseStatus(patch.Status)
	if err != nil {
		return nil, err
	}
	priority, err := parsePriority(patch.Priority)
	if err != nil {
		return nil, err
	}

	var (
		complaint *db.Complaint
		outcome   lifecycle.Outcome
	)
	err = s.store.InTx(ctx, func(q repository.Querier) error {
		var err error
		if complaint, err = q.GetComplaintForUpdate(ctx, id); err != nil {
			return err
		}
		if outcome, err = s.machine.ManualUpdate(*complaint, status, priority); err != nil {
			return err
		}
		if !outcome.Changed {
			return nil
		}
		if err := q.UpdateComplaintState(ctx, id, outcome.Status, outcome.Priority); err != nil {
			return err
		}
		complaint.Status, complaint.Priority = outcome.Status, outcome.Priority
		complaint.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		logFailure(s.logger, "failed to update complaint", err, zap.Int64("complaint_id", id))
		return nil, err
	}

	s.logger.Info("complaint updated",
		zap.Int64("complaint_id", id),
		zap.String("status", string(complaint.Status)),
		zap.String("priority", string(complaint.Priority)),
		zap.Bool("changed", outcome.Changed),
	)
	emit(ctx, s.sink, complaint, outcome.Notify, s.now())
	return complaint, nil
}

// Get returns one complaint. Residents may only read their own.
func (s *ComplaintService) Get(ctx context.Context, actor identity.Actor, id int64) (*db.Complaint, error) {
	if err := authorize(actor, identity.RoleManager, identity.RoleCouncil, identity.RoleResident); err != nil {
		return nil, err
	}

	complaint, err := s.store.GetComplaint(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == identity.RoleResident && complaint.ResidentID != actor.ID {
		return nil, apperr.Forbidden()
	}
	return complaint, nil
}

// List returns complaints newest first. Residents only see their own.
func (s *ComplaintService) List(ctx context.Context, actor identity.Actor) ([]db.Complaint, error) {
	if err := authorize(actor, identity.RoleManager, identity.RoleCouncil, identity.RoleResident); err != nil {
		return nil, err
	}

	var residentID *uuid.UUID
	if actor.Role == identity.RoleResident {
		residentID = &actor.ID
	}
	return s.store.ListComplaints(ctx, residentID)
}

// emit sends the notification of a committed transition to the complaint's
// author. An empty kind means nothing changed.
func emit(ctx context.Context, sink notify.Sink, c *db.Complaint, kind notify.Kind, now time.Time) {
	if kind == "" || sink == nil {
		return
	}
	sink.Notify(ctx, notify.Notification{
		ID:          uuid.New(),
		RecipientID: c.ResidentID,
		Kind:        kind,
		ComplaintID: c.ID,
		Status:      string(c.Status),
		OccurredAt:  now.UTC(),
	})
}
