package alerting

import (
	"fmt"
)

// Detector flags readings that are inconsistent with the meter's recent history
type Detector struct {
	minDataPointsForDetection int
}

// NewDetector creates a new anomaly detector
func NewDetector(minDataPointsForDetection int) *Detector {
	return &Detector{
		minDataPointsForDetection: minDataPointsForDetection,
	}
}

// DetectAnomaly checks if value is anomalous. multiplier is the spike factor
// over the rolling average of historicalValues.
func (d *Detector) DetectAnomaly(value, multiplier float64, historicalValues []float64) (bool, string) {
	if value < 0 {
		return true, fmt.Sprintf("inconsistent reading: negative value %.2f", value)
	}

	if len(historicalValues) < d.minDataPointsForDetection || len(historicalValues) == 0 {
		return false, ""
	}

	sum := 0.0
	for _, v := range historicalValues {
		sum += v
	}
	average := sum / float64(len(historicalValues))

	if average > 0 && multiplier > 0 && value > multiplier*average {
		return true, fmt.Sprintf("inconsistent reading: value %.2f exceeds %.1fx rolling average %.2f",
			value, multiplier, average)
	}

	return false, ""
}
