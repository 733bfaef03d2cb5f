package validator

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/septivank/smart-copro/internal/apperr"
	"github.com/septivank/smart-copro/tools/timeparser"
)

// ValidationResult holds validation outcome
type ValidationResult struct {
	IsValid bool
	Reason  string
}

// MetricData represents a single collected reading as sent by a meter gateway
type MetricData struct {
	Meter string
	Date  string
	Data  string
}

// Validator validates request payloads and collected readings
type Validator struct {
	v                         *validator.Validate
	timestampToleranceMinutes int
}

// NewValidator creates a new validator with the specified tolerance
func NewValidator(timestampToleranceMinutes int) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("finite", validateFinite)

	return &Validator{
		v:                         v,
		timestampToleranceMinutes: timestampToleranceMinutes,
	}
}

// Struct validates s against its validate tags. The first failing field is
// reported as an apperr validation error naming that field.
func (val *Validator) Struct(s interface{}) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return apperr.FieldValidation(fe.Field(), describe(fe))
	}
	return apperr.Validation(err.Error())
}

// validateFinite rejects NaN and the infinities on float fields.
func validateFinite(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Float32, reflect.Float64:
		return isFinite(fl.Field().Float())
	default:
		return true
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "finite":
		return "must be a finite number"
	case "gt", "gte", "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// ValidateMetricData validates a single collected reading
func (val *Validator) ValidateMetricData(metric MetricData, receivedAt time.Time) (float64, time.Time, ValidationResult) {
	result := ValidationResult{IsValid: true}

	if strings.TrimSpace(metric.Meter) == "" {
		result.IsValid = false
		result.Reason = "empty meter reference"
		return 0, time.Time{}, result
	}

	// Strip square brackets if present
	dataValue := strings.Trim(metric.Data, "[] ")
	value, err := strconv.ParseFloat(dataValue, 64)
	if err != nil {
		result.IsValid = false
		result.Reason = fmt.Sprintf("invalid reading value: %v", err)
		return 0, time.Time{}, result
	}

	if !isFinite(value) {
		result.IsValid = false
		result.Reason = "non-finite reading value"
		return 0, time.Time{}, result
	}

	if value < 0 {
		result.IsValid = false
		result.Reason = "negative value detected"
		return value, time.Time{}, result
	}

	readingTime, err := timeparser.ParseMeterTimestamp(metric.Date)
	if err != nil {
		result.IsValid = false
		result.Reason = fmt.Sprintf("invalid timestamp format: %v", err)
		return value, time.Time{}, result
	}

	if !timeparser.IsWithinTolerance(readingTime, receivedAt, val.timestampToleranceMinutes) {
		result.IsValid = false
		result.Reason = fmt.Sprintf("timestamp outside tolerance window (±%d minutes)", val.timestampToleranceMinutes)
		return value, readingTime, result
	}

	return value, readingTime, result
}
