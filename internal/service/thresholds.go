package service

import (
	"context"

	"github.com/septivank/smart-copro/internal/db"
	"github.com/septivank/smart-copro/internal/identity"
	"github.com/septivank/smart-copro/internal/repository"
	"github.com/septivank/smart-copro/internal/validator"
	"go.uber.org/zap"
)

// ThresholdInput creates or replaces a threshold. A nil MeterID makes it global.
type ThresholdInput struct {
	Type    string   `json:"type" validate:"required,oneof=OVER_CONSUMPTION READING_ANOMALY"`
	Limit   *float64 `json:"limit" validate:"required,gte=0"`
	MeterID *int64   `json:"meter_id" validate:"omitempty,gt=0"`
}

// ThresholdService manages the threshold registry and the alerts it produces
type ThresholdService struct {
	store     repository.Store
	validator *validator.Validator
	logger    *zap.Logger
}

// NewThresholdService creates a new threshold service
func NewThresholdService(store repository.Store, validator *validator.Validator, logger *zap.Logger) *ThresholdService {
	return &ThresholdService{store: store, validator: validator, logger: logger}
}

func (s *ThresholdService) build(ctx context.Context, q repository.Querier, in ThresholdInput) (*db.Threshold, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	if in.MeterID != nil {
		if _, err := q.GetMeter(ctx, *in.MeterID); err != nil {
			return nil, asFieldError(err, "meter_id")
		}
	}
	return &db.Threshold{
		Type:    db.ThresholdType(in.Type),
		Limit:   *in.Limit,
		MeterID: in.MeterID,
	}, nil
}

// CreateThreshold adds a threshold to the registry
func (s *ThresholdService) CreateThreshold(ctx context.Context, actor identity.Actor, in ThresholdInput) (*db.Threshold, error) {
	if err := authorize(actor, identity.RoleManager); err != nil {
		return nil, err
	}

	var threshold *db.Threshold
	err := s.store.InTx(ctx, func(q repository.Querier) error {
		var err error
		if threshold, err = s.build(ctx, q, in); err != nil {
			return err
		}
		return q.CreateThreshold(ctx, threshold)
	})
	if err != nil {
		logFailure(s.logger, "failed to create threshold", err)
		return nil, err
	}

	s.logger.Info("threshold created",
		zap.Int64("threshold_id", threshold.ID),
		zap.String("type", string(threshold.Type)),
		zap.Float64("limit", threshold.Limit),
	)
	return threshold, nil
}

// ReplaceThreshold overwrites type, limit and scope of a threshold. Its
// creation time, and so its selection precedence, is kept.
func (s *ThresholdService) ReplaceThreshold(ctx context.Context, actor identity.Actor, id int64, in ThresholdInput) (*db.Threshold, error) {
	if err := authorize(actor, identity.RoleManager); err != nil {
		return nil, err
	}

	var threshold *db.Threshold
	err := s.store.InTx(ctx, func(q repository.Querier) error {
		if _, err := q.GetThreshold(ctx, id); err != nil {
			return err
		}
		var err error
		if threshold, err = s.build(ctx, q, in); err != nil {
			return err
		}
		threshold.ID = id
		return q.UpdateThreshold(ctx, threshold)
	})
	if err != nil {
		logFailure(s.logger, "failed to replace threshold", err, zap.Int64("threshold_id", id))
		return nil, err
	}

	s.logger.Info("threshold replaced", zap.Int64("threshold_id", id))
	return threshold, nil
}

// DeleteThreshold removes a threshold. Its alerts remain with no threshold.
func (s *ThresholdService) DeleteThreshold(ctx context.Context, actor identity.Actor, id int64) error {
	if err := authorize(actor, identity.RoleManager); err != nil {
		return err
	}
	if err := s.store.DeleteThreshold(ctx, id); err != nil {
		logFailure(s.logger, "failed to delete threshold", err, zap.Int64("threshold_id", id))
		return err
	}
	s.logger.Info("threshold deleted", zap.Int64("threshold_id", id))
	return nil
}

// ListThresholds returns the whole registry in selection order
func (s *ThresholdService) ListThresholds(ctx context.Context, actor identity.Actor) ([]db.Threshold, error) {
	if err := authorize(actor, identity.RoleManager, identity.RoleCouncil); err != nil {
		return nil, err
	}
	return s.store.ListThresholds(ctx)
}

// ListAlerts returns alerts newest first, optionally filtered by handled flag
func (s *ThresholdService) ListAlerts(ctx context.Context, actor identity.Actor, handled *bool) ([]db.Alert, error) {
	if err := authorize(actor, identity.RoleManager, identity.RoleCouncil); err != nil {
		return nil, err
	}
	return s.store.ListAlerts(ctx, handled)
}

// HandleAlert marks an alert as handled
func (s *ThresholdService) HandleAlert(ctx context.Context, actor identity.Actor, id int64) (*db.Alert, error) {
	if err := authorize(actor, identity.RoleManager); err != nil {
		return nil, err
	}

	alert, err := s.store.MarkAlertHandled(ctx, id)
	if err != nil {
		logFailure(s.logger, "failed to handle alert", err, zap.Int64("alert_id", id))
		return nil, err
	}

	s.logger.Info("alert handled", zap.Int64("alert_id", id))
	return alert, nil
}
