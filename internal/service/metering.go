package service

import (
	"context"
	"time"

	"github.com/septivank/smart-copro/internal/alerting"
	"github.com/septivank/smart-copro/internal/apperr"
	"github.com/septivank/smart-copro/internal/config"
	"github.com/septivank/smart-copro/internal/db"
	"github.com/septivank/smart-copro/internal/identity"
	"github.com/septivank/smart-copro/internal/mq"
	"github.com/septivank/smart-copro/internal/repository"
	"github.com/septivank/smart-copro/internal/validator"
	"go.uber.org/zap"
)

const readingRecordedMessage = "reading recorded"

// ZoneInput is the payload creating a zone
type ZoneInput struct {
	Name    string  `json:"name" validate:"required"`
	Surface float64 `json:"surface" validate:"gte=0"`
}

// MeterInput is the payload creating a meter
type MeterInput struct {
	Reference        string   `json:"reference" validate:"required"`
	Location         string   `json:"location" validate:"required"`
	InstalledOn      string   `json:"installed_on" validate:"required,datetime=2006-01-02"`
	Type             string   `json:"type" validate:"required"`
	State            string   `json:"state" validate:"required"`
	ZoneID           int64    `json:"zone_id" validate:"required"`
	DefaultThreshold *float64 `json:"default_threshold" validate:"omitempty,gte=0"`
}

// MeterPatch updates the mutable fields of a meter. Nil fields are kept.
type MeterPatch struct {
	Location         *string  `json:"location" validate:"omitempty,min=1"`
	Type             *string  `json:"type" validate:"omitempty,min=1"`
	State            *string  `json:"state" validate:"omitempty,min=1"`
	ZoneID           *int64   `json:"zone_id" validate:"omitempty,gt=0"`
	DefaultThreshold *float64 `json:"default_threshold" validate:"omitempty,gte=0"`
}

// ReadingInput is the payload of a manual reading submission
type ReadingInput struct {
	MeterID    *int64     `json:"meter_id" validate:"required"`
	Value      *float64   `json:"value" validate:"required,finite,gte=0"`
	RecordedAt *time.Time `json:"recorded_at"`
	Method     string     `json:"method" validate:"omitempty,oneof=MANUAL AUTOMATIC"`
	Comment    *string    `json:"comment"`
}

// ReadingCorrection is the payload correcting a stored reading
type ReadingCorrection struct {
	Value   *float64 `json:"value" validate:"required,finite,gte=0"`
	Comment *string  `json:"comment"`
}

// ReadingResult confirms a recorded reading
type ReadingResult struct {
	ReadingID      int64  `json:"reading_id"`
	AlertGenerated bool   `json:"alert_generated"`
	Message        string `json:"message"`
}

// ReadingEvent is published after a reading is committed
type ReadingEvent struct {
	ReadingID      int64            `json:"reading_id"`
	MeterID        int64            `json:"meter_id"`
	MeterReference string           `json:"meter_reference"`
	Value          float64          `json:"value"`
	RecordedAt     time.Time        `json:"recorded_at"`
	Method         db.ReadingMethod `json:"method"`
	AlertGenerated bool             `json:"alert_generated"`
}

// AlertEvent is published after an alert is committed
type AlertEvent struct {
	AlertID        int64     `json:"alert_id"`
	ThresholdID    *int64    `json:"threshold_id,omitempty"`
	MeterID        int64     `json:"meter_id"`
	MeterReference string    `json:"meter_reference"`
	Description    string    `json:"description"`
	DetectedAt     time.Time `json:"detected_at"`
}

// MeteringService owns zones, meters and readings, and runs the alert engine
// on every recorded reading
type MeteringService struct {
	store     repository.Store
	engine    *alerting.Engine
	validator *validator.Validator
	publisher EventPublisher
	cfg       *config.Config
	logger    *zap.Logger
	now       Clock
}

// NewMeteringService creates a new metering service
func NewMeteringService(
	store repository.Store,
	engine *alerting.Engine,
	validator *validator.Validator,
	publisher EventPublisher,
	cfg *config.Config,
	logger *zap.Logger,
) *MeteringService {
	return &MeteringService{
		store:     store,
		engine:    engine,
		validator: validator,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateZone registers a common area
func (s *MeteringService) CreateZone(ctx context.Context, actor identity.Actor, in ZoneInput) (*db.Zone, error) {
	if err := authorize(actor, identity.RoleManager); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	zone := &db.Zone{Name: in.Name, Surface: in.Surface}
	if err := s.store.CreateZone(ctx, zone); err != nil {
		logFailure(s.logger, "failed to create zone", err)
		return nil, err
	}

	s.logger.Info("zone created", zap.Int64("zone_id", zone.ID), zap.String("name", zone.Name))
	return zone, nil
}

// ListZones returns every zone
func (s *MeteringService) ListZones(ctx context.Context, actor identity.Actor) ([]db.Zone, error) {
	if err := authorize(actor, identity.RoleManager, identity.RoleCouncil, identity.RoleResident, identity.RoleTechnician); err != nil {
		return nil, err
	}
	return s.store.ListZones(ctx)
}

// CreateMeter registers a meter in a zone
func (s *MeteringService) CreateMeter(ctx context.Context, actor identity.Actor, in MeterInput) (*db.Meter, error) {
	if err := authorize(actor, identity.RoleManager); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	installedOn, err := time.Parse("2006-01-02", in.InstalledOn)
	if err != nil {
		return nil, apperr.FieldValidation("installed_on", "must be a date formatted YYYY-MM-DD")
	}

	meter := &db.Meter{
		Reference:        in.Reference,
		Location:         in.Location,
		InstalledOn:      installedOn,
		Type:             in.Type,
		State:            in.State,
		ZoneID:           in.ZoneID,
		DefaultThreshold: in.DefaultThreshold,
	}
	if err := s.store.CreateMeter(ctx, meter); err != nil {
		logFailure(s.logger, "failed to create meter", err, zap.String("reference", in.Reference))
		return nil, err
	}

	s.logger.Info("meter created", zap.Int64("meter_id", meter.ID), zap.String("reference", meter.Reference))
	return meter, nil
}

// UpdateMeter applies a partial update to a meter
func (s *MeteringService) UpdateMeter(ctx context.Context, actor identity.Actor, id int64, patch MeterPatch) (*db.Meter, error) {
	if err := authorize(actor, identity.RoleManager); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(patch); err != nil {
		return nil, err
	}

	var meter *db.Meter
	err := s.store.InTx(ctx, func(q repository.Querier) error {
		var err error
		if meter, err = q.GetMeter(ctx, id); err != nil {
			return err
		}

		if patch.Location != nil {
			meter.Location = *patch.Location
		}
		if patch.Type != nil {
			meter.Type = *patch.Type
		}
		if patch.State != nil {
			meter.State = *patch.State
		}
		if patch.ZoneID != nil {
			meter.ZoneID = *patch.ZoneID
		}
		if patch.DefaultThreshold != nil {
			meter.DefaultThreshold = patch.DefaultThreshold
		}
		return q.UpdateMeter(ctx, meter)
	})
	if err != nil {
		logFailure(s.logger, "failed to update meter", err, zap.Int64("meter_id", id))
		return nil, err
	}

	s.logger.Info("meter updated", zap.Int64("meter_id", id))
	return meter, nil
}

// GetMeter returns one meter
func (s *MeteringService) GetMeter(ctx context.Context, actor identity.Actor, id int64) (*db.Meter, error) {
	if err := authorize(actor, identity.RoleManager, identity.RoleCouncil); err != nil {
		return nil, err
	}
	return s.store.GetMeter(ctx, id)
}

// ListMeters returns every meter
func (s *MeteringService) ListMeters(ctx context.Context, actor identity.Actor) ([]db.Meter, error) {
	if err := authorize(actor, identity.RoleManager, identity.RoleCouncil); err != nil {
		return nil, err
	}
	return s.store.ListMeters(ctx)
}

// SubmitReading records a manual reading and evaluates it against the
// thresholds in the same transaction. A second reading for the same meter and
// timestamp fails with a conflict.
func (s *MeteringService) SubmitReading(ctx context.Context, actor identity.Actor, in ReadingInput) (*ReadingResult, error) {
	if err := authorize(actor, identity.RoleManager); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	reading := &db.Reading{
		MeterID:    *in.MeterID,
		Value:      *in.Value,
		RecordedAt: s.now().UTC(),
		Method:     db.ReadingManual,
		Comment:    in.Comment,
	}
	if in.RecordedAt != nil {
		reading.RecordedAt = in.RecordedAt.UTC()
	}
	if in.Method != "" {
		reading.Method = db.ReadingMethod(in.Method)
	}

	var (
		meter *db.Meter
		alert *db.Alert
	)
	err := s.store.InTx(ctx, func(q repository.Querier) error {
		var err error
		if meter, err = q.GetMeter(ctx, reading.MeterID); err != nil {
			return asFieldError(err, "meter_id")
		}
		if err := q.InsertReading(ctx, reading); err != nil {
			return err
		}
		alert, err = s.evaluate(ctx, q, meter, reading)
		return err
	})
	if err != nil {
		logFailure(s.logger, "failed to record reading", err, zap.Int64("meter_id", reading.MeterID))
		return nil, err
	}

	s.afterRecord(ctx, s.logger, meter, reading, alert)

	return &ReadingResult{
		ReadingID:      reading.ID,
		AlertGenerated: alert != nil,
		Message:        readingRecordedMessage,
	}, nil
}

// evaluate runs the alert engine on a reading already inserted through q and
// stores the resulting alert, if any
func (s *MeteringService) evaluate(ctx context.Context, q repository.Querier, meter *db.Meter, reading *db.Reading) (*db.Alert, error) {
	thresholds, err := q.ThresholdsForMeter(ctx, meter.ID)
	if err != nil {
		return nil, err
	}

	history := func() ([]float64, error) {
		return q.RecentReadingValues(ctx, meter.ID, reading.ID, s.cfg.Alerting.HistoryWindow)
	}

	alert, err := s.engine.Evaluate(*meter, reading.Value, thresholds, history)
	if err != nil || alert == nil {
		return nil, err
	}

	alert.DetectedAt = s.now().UTC()
	if err := q.InsertAlert(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// afterRecord logs and publishes the events of a committed reading. Publish
// failures are logged and never undo the reading.
func (s *MeteringService) afterRecord(ctx context.Context, logger *zap.Logger, meter *db.Meter, reading *db.Reading, alert *db.Alert) {
	logger.Info("reading recorded",
		zap.Int64("reading_id", reading.ID),
		zap.String("meter", meter.Reference),
		zap.Float64("value", reading.Value),
		zap.Bool("alert_generated", alert != nil),
	)

	event := ReadingEvent{
		ReadingID:      reading.ID,
		MeterID:        meter.ID,
		MeterReference: meter.Reference,
		Value:          reading.Value,
		RecordedAt:     reading.RecordedAt,
		Method:         reading.Method,
		AlertGenerated: alert != nil,
	}
	if err := s.publisher.PublishEvent(ctx, s.cfg.RabbitMQ.ReadingRoutingKey, mq.EventReadingRecorded, event); err != nil {
		logger.Error("failed to publish reading event", zap.Error(err), zap.Int64("reading_id", reading.ID))
	}

	if alert == nil {
		return
	}

	logger.Info("alert raised",
		zap.Int64("alert_id", alert.ID),
		zap.String("meter", meter.Reference),
		zap.String("description", alert.Description),
	)
	alertEvent := AlertEvent{
		AlertID:        alert.ID,
		ThresholdID:    alert.ThresholdID,
		MeterID:        alert.MeterID,
		MeterReference: meter.Reference,
		Description:    alert.Description,
		DetectedAt:     alert.DetectedAt,
	}
	if err := s.publisher.PublishEvent(ctx, s.cfg.RabbitMQ.AlertRoutingKey, mq.EventAlertRaised, alertEvent); err != nil {
		logger.Error("failed to publish alert event", zap.Error(err), zap.Int64("alert_id", alert.ID))
	}
}

// CorrectReading overwrites the value of a stored reading and flags it as
// corrected. The alert engine does not run again.
func (s *MeteringService) CorrectReading(ctx context.Context, actor identity.Actor, id int64, in ReadingCorrection) (*db.Reading, error) {
	if err := authorize(actor, identity.RoleManager); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	var reading *db.Reading
	err := s.store.InTx(ctx, func(q repository.Querier) error {
		var err error
		if reading, err = q.GetReading(ctx, id); err != nil {
			return err
		}
		reading.Value = *in.Value
		if in.Comment != nil {
			reading.Comment = in.Comment
		}
		reading.Corrected = true
		return q.UpdateReading(ctx, reading)
	})
	if err != nil {
		logFailure(s.logger, "failed to correct reading", err, zap.Int64("reading_id", id))
		return nil, err
	}

	s.logger.Info("reading corrected", zap.Int64("reading_id", id), zap.Float64("value", reading.Value))
	return reading, nil
}

// ListReadings returns readings newest first, filtered by meter reference or zone
func (s *MeteringService) ListReadings(ctx context.Context, actor identity.Actor, filter repository.ReadingFilter) ([]db.Reading, error) {
	if err := authorize(actor, identity.RoleManager, identity.RoleCouncil, identity.RoleResident); err != nil {
		return nil, err
	}
	return s.store.ListReadings(ctx, filter)
}
