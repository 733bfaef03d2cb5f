package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/septivank/smart-copro/internal/apperr"
	"github.com/septivank/smart-copro/internal/db"
	"github.com/septivank/smart-copro/internal/logging"
	"github.com/septivank/smart-copro/internal/repository"
	"github.com/septivank/smart-copro/internal/validator"
	"go.uber.org/zap"
)

// IngestMessage is a batch of automatically collected readings
type IngestMessage struct {
	RequestID  string             `json:"request_id"`
	ReceivedAt time.Time          `json:"received_at"`
	Readings   []CollectedReading `json:"readings"`
}

// CollectedReading is one raw reading as sent by a meter gateway
type CollectedReading struct {
	Meter string `json:"meter"`
	Date  string `json:"date"`
	Data  string `json:"data"`
}

// IngestSummary counts what happened to the readings of a batch
type IngestSummary struct {
	Recorded   int
	Duplicates int
	Rejected   int
	Alerts     int
}

// ProcessorService records batches of collected readings consumed from the
// ingest queue
type ProcessorService struct {
	metering  *MeteringService
	validator *validator.Validator
	logger    *zap.Logger
}

// NewProcessorService creates a new processor service
func NewProcessorService(metering *MeteringService, validator *validator.Validator, logger *zap.Logger) *ProcessorService {
	return &ProcessorService{
		metering:  metering,
		validator: validator,
		logger:    logger,
	}
}

type recorded struct {
	meter   *db.Meter
	reading *db.Reading
	alert   *db.Alert
}

// ProcessMessage handles one ingest message. Malformed readings, unknown
// meters and duplicates are skipped. Any storage failure rolls the whole
// batch back and is returned so the message is dead-lettered; replaying it is
// safe because duplicates are skipped.
func (s *ProcessorService) ProcessMessage(ctx context.Context, body []byte) error {
	_, err := s.Process(ctx, body)
	return err
}

// Process is ProcessMessage returning the batch summary
func (s *ProcessorService) Process(ctx context.Context, body []byte) (*IngestSummary, error) {
	var msg IngestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.metering.now()
	}

	reqLogger := logging.WithRequestID(s.logger, msg.RequestID)
	reqLogger.Info("processing ingest batch", zap.Int("readings_count", len(msg.Readings)))

	var (
		summary IngestSummary
		done    []recorded
	)
	err := s.metering.store.InTx(ctx, func(q repository.Querier) error {
		meters := make(map[string]*db.Meter)
		for _, raw := range msg.Readings {
			rec, err := s.processSingleReading(ctx, q, meters, raw, msg.ReceivedAt, reqLogger)
			if err != nil {
				return err
			}
			switch {
			case rec == nil:
				summary.Rejected++
			case rec.reading.ID == 0:
				summary.Duplicates++
			default:
				summary.Recorded++
				if rec.alert != nil {
					summary.Alerts++
				}
				done = append(done, *rec)
			}
		}
		return nil
	})
	if err != nil {
		reqLogger.Error("failed to record ingest batch", zap.Error(err))
		return nil, fmt.Errorf("failed to record ingest batch: %w", err)
	}

	// Publish events after successful commit
	for _, rec := range done {
		s.metering.afterRecord(ctx, reqLogger, rec.meter, rec.reading, rec.alert)
	}

	reqLogger.Info("ingest batch processed",
		zap.Int("recorded", summary.Recorded),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("rejected", summary.Rejected),
		zap.Int("alerts", summary.Alerts),
	)
	return &summary, nil
}

// processSingleReading returns nil for a rejected reading, and a reading with
// a zero ID for a duplicate
func (s *ProcessorService) processSingleReading(
	ctx context.Context,
	q repository.Querier,
	meters map[string]*db.Meter,
	raw CollectedReading,
	receivedAt time.Time,
	logger *zap.Logger,
) (*recorded, error) {
	value, recordedAt, result := s.validator.ValidateMetricData(validator.MetricData{
		Meter: raw.Meter,
		Date:  raw.Date,
		Data:  raw.Data,
	}, receivedAt)
	if !result.IsValid {
		logger.Warn("rejected collected reading",
			zap.String("meter", raw.Meter),
			zap.String("reason", result.Reason),
		)
		return nil, nil
	}

	meter, ok := meters[raw.Meter]
	if !ok {
		var err error
		meter, err = q.GetMeterByReference(ctx, raw.Meter)
		if apperr.Is(err, apperr.KindNotFound) {
			logger.Warn("rejected collected reading", zap.String("meter", raw.Meter), zap.String("reason", "unknown meter"))
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		meters[raw.Meter] = meter
	}

	reading := &db.Reading{
		MeterID:    meter.ID,
		Value:      value,
		RecordedAt: recordedAt,
		Method:     db.ReadingAutomatic,
	}
	inserted, err := q.InsertReadingIfAbsent(ctx, reading)
	if err != nil {
		return nil, err
	}
	if !inserted {
		logger.Debug("skipped duplicate reading",
			zap.String("meter", meter.Reference),
			zap.Time("recorded_at", recordedAt),
		)
		return &recorded{meter: meter, reading: &db.Reading{}}, nil
	}

	alert, err := s.metering.evaluate(ctx, q, meter, reading)
	if err != nil {
		return nil, err
	}
	return &recorded{meter: meter, reading: reading, alert: alert}, nil
}
