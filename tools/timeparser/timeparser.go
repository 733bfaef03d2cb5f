package timeparser

import (
	"fmt"
	"strings"
	"time"
)

// meterFormats are the layouts emitted by the building's meter gateways.
var meterFormats = []string{
	"02/01/2006 15:04:05", // DD/MM/YYYY HH:mm:ss
	"02 15:04:05/01/2006", // DD HH:mm:ss/MM/YYYY
	"2006-01-02 15:04:05", // YYYY-MM-DD HH:mm:ss
	time.RFC3339Nano,
}

// periodFormats are accepted for report period boundaries.
var periodFormats = []string{
	time.RFC3339Nano,
	"2006-01-02",
}

// ParseMeterTimestamp attempts to parse meter timestamp with multiple formats.
// Layouts without a zone are read as UTC.
func ParseMeterTimestamp(dateStr string) (time.Time, error) {
	return parseAny(meterFormats, dateStr)
}

// ParsePeriodBoundary parses a report period bound given as a date or an
// RFC3339 timestamp.
func ParsePeriodBoundary(s string) (time.Time, error) {
	return parseAny(periodFormats, s)
}

func parseAny(formats []string, s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", s, lastErr)
}

// IsWithinTolerance checks if the reading timestamp is within tolerance of received time
func IsWithinTolerance(readingTime, receivedTime time.Time, toleranceMinutes int) bool {
	diff := readingTime.Sub(receivedTime)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(toleranceMinutes)*time.Minute
}
