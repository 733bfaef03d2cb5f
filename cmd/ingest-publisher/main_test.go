package main

import (
	"testing"
	"time"

	"github.com/septivank/smart-copro/tools/timeparser"
)

func TestSampleBatch(t *testing.T) {
	now := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)

	first := sampleBatch(0, []string{"M1", " ", "M2"}, now)
	second := sampleBatch(1, []string{"M1", "M2"}, now)

	if len(first.Readings) != 2 {
		t.Fatalf("Expected blank references to be skipped, got %d readings", len(first.Readings))
	}
	if first.RequestID == second.RequestID {
		t.Error("Expected a fresh request id per message")
	}

	parsed, err := timeparser.ParseMeterTimestamp(first.Readings[0].Date)
	if err != nil {
		t.Fatalf("Sample date must be accepted by the meter parser: %v", err)
	}
	if !parsed.Equal(now.Add(-time.Minute)) {
		t.Errorf("Expected %v, got %v", now.Add(-time.Minute), parsed)
	}
	if first.Readings[0].Date == second.Readings[0].Date {
		t.Error("Consecutive messages must not share a timestamp")
	}
}
