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

// AssignInput creates the intervention of a complaint
type AssignInput struct {
	ComplaintID  *int64     `json:"complaint_id" validate:"required"`
	TechnicianID *uuid.UUID `json:"technician_id" validate:"required"`
	ScheduledAt  *time.Time `json:"scheduled_at" validate:"required"`
}

// InterventionInput fully replaces an intervention. The complaint cannot change.
type InterventionInput struct {
	TechnicianID *uuid.UUID `json:"technician_id" validate:"required"`
	ScheduledAt  *time.Time `json:"scheduled_at" validate:"required"`
	Report       string     `json:"report"`
}

// ReportInput is a technician's report on their intervention
type ReportInput struct {
	Report      *string    `json:"report" validate:"required_without=ScheduledAt"`
	ScheduledAt *time.Time `json:"scheduled_at" validate:"required_without=Report"`
}

// ReportResult is the intervention after a report, with the resulting
// complaint status
type ReportResult struct {
	Intervention    db.Intervention    `json:"intervention"`
	ComplaintStatus db.ComplaintStatus `json:"complaint_status"`
}

// DispatchService assigns interventions to technicians and processes their
// reports
type DispatchService struct {
	store     repository.Store
	machine   *lifecycle.Machine
	validator *validator.Validator
	sink      notify.Sink
	logger    *zap.Logger
	now       Clock
}

// NewDispatchService creates a new dispatch service
func NewDispatchService(
	store repository.Store,
	machine *lifecycle.Machine,
	validator *validator.Validator,
	sink notify.Sink,
	logger *zap.Logger,
) *DispatchService {
	return &DispatchService{
		store:     store,
		machine:   machine,
		validator: validator,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
	}
}

func checkTechnician(ctx context.Context, q repository.Querier, id uuid.UUID) error {
	tech, err := q.GetIdentity(ctx, id)
	if err != nil {
		return asFieldError(err, "technician_id")
	}
	if identity.ParseRole(tech.Role) != identity.RoleTechnician {
		return apperr.FieldValidation("technician_id", "identity is not a technician")
	}
	return nil
}

// Assign creates the intervention of a complaint and moves the complaint to
// IN_PROGRESS. A complaint holds at most one intervention.
func (s *DispatchService) Assign(ctx context.Context, actor identity.Actor, in AssignInput) (*db.Intervention, error) {
	if err := authorize(actor, identity.RoleManager); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	intervention := &db.Intervention{
		ComplaintID:  *in.ComplaintID,
		TechnicianID: in.TechnicianID,
		ScheduledAt:  in.ScheduledAt.UTC(),
	}

	var (
		complaint *db.Complaint
		outcome   lifecycle.Outcome
	)
	err := s.store.InTx(ctx, func(q repository.Querier) error {
		var err error
		if complaint, err = q.GetComplaintForUpdate(ctx, intervention.ComplaintID); err != nil {
			return asFieldError(err, "complaint_id")
		}

		exists, err := q.InterventionExistsForComplaint(ctx, complaint.ID)
		if err != nil {
			return err
		}
		if exists {
			return apperr.Conflict("complaint already has an intervention").WithField("complaint_id")
		}

		if err := checkTechnician(ctx, q, *in.TechnicianID); err != nil {
			return err
		}
		if outcome, err = s.machine.Assign(*complaint); err != nil {
			return err
		}

		if err := q.InsertIntervention(ctx, intervention); err != nil {
			return err
		}
		if outcome.StatusChanged {
			if err := q.ForceComplaintStatus(ctx, complaint.ID, outcome.Status); err != nil {
				return err
			}
			complaint.Status = outcome.Status
		}
		return nil
	})
	if err != nil {
		logFailure(s.logger, "failed to assign intervention", err, zap.Int64("complaint_id", intervention.ComplaintID))
		return nil, err
	}

	s.logger.Info("intervention assigned",
		zap.Int64("intervention_id", intervention.ID),
		zap.Int64("complaint_id", complaint.ID),
		zap.String("technician_id", in.TechnicianID.String()),
		zap.String("complaint_status", string(complaint.Status)),
	)
	emit(ctx, s.sink, complaint, outcome.Notify, s.now())
	return intervention, nil
}

// Replace overwrites technician, schedule and report of an intervention
// without touching the complaint
func (s *DispatchService) Replace(ctx context.Context, actor identity.Actor, id int64, in InterventionInput) (*db.Intervention, error) {
	if err := authorize(actor, identity.RoleManager); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	var intervention *db.Intervention
	err := s.store.InTx(ctx, func(q repository.Querier) error {
		var err error
		if intervention, err = q.GetInterventionForUpdate(ctx, id); err != nil {
			return err
		}
		if err := checkTechnician(ctx, q, *in.TechnicianID); err != nil {
			return err
		}
		intervention.TechnicianID = in.TechnicianID
		intervention.ScheduledAt = in.ScheduledAt.UTC()
		intervention.Report = in.Report
		return q.UpdateIntervention(ctx, intervention)
	})
	if err != nil {
		logFailure(s.logger, "failed to replace intervention", err, zap.Int64("intervention_id", id))
		return nil, err
	}

	s.logger.Info("intervention replaced", zap.Int64("intervention_id", id))
	return intervention, nil
}

// Delete removes an intervention. The complaint keeps its current status.
func (s *DispatchService) Delete(ctx context.Context, actor identity.Actor, id int64) error {
	if err := authorize(actor, identity.RoleManager); err != nil {
		return err
	}
	if err := s.store.DeleteIntervention(ctx, id); err != nil {
		logFailure(s.logger, "failed to delete intervention", err, zap.Int64("intervention_id", id))
		return err
	}
	s.logger.Info("intervention deleted", zap.Int64("intervention_id", id))
	return nil
}

// List returns interventions by schedule. Technicians only see their own.
func (s *DispatchService) List(ctx context.Context, actor identity.Actor) ([]db.Intervention, error) {
	if err := authorize(actor, identity.RoleManager, identity.RoleCouncil, identity.RoleTechnician); err != nil {
		return nil, err
	}

	var technicianID *uuid.UUID
	if actor.Role == identity.RoleTechnician {
		technicianID = &actor.ID
	}
	return s.store.ListInterventions(ctx, technicianID)
}

// Report records the assigned technician's report and date. A substantive
// report resolves a complaint that is still open or in progress.
func (s *DispatchService) Report(ctx context.Context, actor identity.Actor, id int64, in ReportInput) (*ReportResult, error) {
	if err := authorize(actor, identity.RoleTechnician); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	var (
		intervention *db.Intervention
		complaint    *db.Complaint
		outcome      lifecycle.Outcome
	)
	err := s.store.InTx(ctx, func(q repository.Querier) error {
		var err error
		if intervention, err = q.GetInterventionForUpdate(ctx, id); err != nil {
			return err
		}
		if intervention.TechnicianID == nil || *intervention.TechnicianID != actor.ID {
			return apperr.Forbidden()
		}

		if in.Report != nil {
			intervention.Report = *in.Report
		}
		if in.ScheduledAt != nil {
			intervention.ScheduledAt = in.ScheduledAt.UTC()
		}
		if err := q.UpdateIntervention(ctx, intervention); err != nil {
			return err
		}

		if complaint, err = q.GetComplaintForUpdate(ctx, intervention.ComplaintID); err != nil {
			return err
		}
		if in.Report == nil {
			return nil
		}
		outcome = s.machine.Report(*complaint, *in.Report)
		if !outcome.StatusChanged {
			return nil
		}
		if err := q.ForceComplaintStatus(ctx, complaint.ID, outcome.Status); err != nil {
			return err
		}
		complaint.Status = outcome.Status
		return nil
	})
	if err != nil {
		logFailure(s.logger, "failed to record intervention report", err,
			zap.Int64("intervention_id", id),
			zap.String("technician_id", actor.ID.String()),
		)
		return nil, err
	}

	s.logger.Info("intervention report recorded",
		zap.Int64("intervention_id", id),
		zap.Int64("complaint_id", complaint.ID),
		zap.String("complaint_status", string(complaint.Status)),
		zap.Bool("resolved", outcome.StatusChanged),
	)
	emit(ctx, s.sink, complaint, outcome.Notify, s.now())

	return &ReportResult{Intervention: *intervention, ComplaintStatus: complaint.Status}, nil
}
