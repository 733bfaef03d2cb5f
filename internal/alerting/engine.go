// Package alerting decides whether a newly recorded reading raises an alert.
package alerting

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/septivank/smart-copro/internal/db"
)

// HistoryFunc lazily loads the recent reading values of the evaluated meter,
// newest first. It is only called when a reading-anomaly threshold applies.
type HistoryFunc func() ([]float64, error)

// Engine evaluates readings against the threshold registry.
type Engine struct {
	detector       *Detector
	globalFallback bool
}

// NewEngine creates an engine. With globalFallback set, a meter without a
// meter-scoped threshold of the evaluated type uses the earliest global one.
func NewEngine(detector *Detector, globalFallback bool) *Engine {
	return &Engine{
		detector:       detector,
		globalFallback: globalFallback,
	}
}

// SelectThreshold returns the threshold of type typ that applies to meterID,
// or nil. Ties between several candidates go to the earliest created_at, then
// the lowest id, whatever order thresholds arrive in.
func (e *Engine) SelectThreshold(thresholds []db.Threshold, meterID int64, typ db.ThresholdType) *db.Threshold {
	ordered := make([]db.Threshold, len(thresholds))
	copy(ordered, thresholds)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	var global *db.Threshold
	for i := range ordered {
		t := &ordered[i]
		if t.Type != typ {
			continue
		}
		if t.MeterID != nil && *t.MeterID == meterID {
			return t
		}
		if t.MeterID == nil && global == nil {
			global = t
		}
	}

	if e.globalFallback {
		return global
	}
	return nil
}

// Evaluate returns the alert to raise for value on meter, or nil. An
// over-consumption breach takes precedence; the anomaly check only runs when
// it did not fire, so a reading raises at most one alert.
func (e *Engine) Evaluate(meter db.Meter, value float64, thresholds []db.Threshold, history HistoryFunc) (*db.Alert, error) {
	if t := e.SelectThreshold(thresholds, meter.ID, db.ThresholdOverConsumption); t != nil && value > t.Limit {
		return newAlert(meter, t, OverConsumptionDescription(meter.Reference, value, t.Limit)), nil
	}

	t := e.SelectThreshold(thresholds, meter.ID, db.ThresholdReadingAnomaly)
	if t == nil || e.detector == nil {
		return nil, nil
	}

	var values []float64
	if history != nil {
		var err error
		if values, err = history(); err != nil {
			return nil, fmt.Errorf("failed to load reading history: %w", err)
		}
	}

	if anomalous, reason := e.detector.DetectAnomaly(value, t.Limit, values); anomalous {
		return newAlert(meter, t, fmt.Sprintf("%s on meter %s", reason, meter.Reference)), nil
	}
	return nil, nil
}

// OverConsumptionDescription embeds the observed value and the limit.
func OverConsumptionDescription(reference string, value, limit float64) string {
	return fmt.Sprintf("Over-consumption detected on meter %s: %s recorded, allowed threshold is %s.",
		reference, formatValue(value), formatValue(limit))
}

func newAlert(meter db.Meter, t *db.Threshold, description string) *db.Alert {
	id := t.ID
	return &db.Alert{
		ThresholdID: &id,
		MeterID:     meter.ID,
		Description: description,
		Handled:     false,
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
