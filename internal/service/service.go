// Package service holds the business operations behind the HTTP API and the
// ingest consumer. Every operation takes the authenticated actor, checks its
// role, runs its writes in one transaction and emits events after commit.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/septivank/smart-copro/internal/apperr"
	"github.com/septivank/smart-copro/internal/identity"
	"go.uber.org/zap"
)

// EventPublisher publishes domain events on the message broker
type EventPublisher interface {
	PublishEvent(ctx context.Context, routingKey, eventType string, payload any) error
}

// Clock returns the current time. Tests replace it.
type Clock func() time.Time

func authorize(actor identity.Actor, roles ...identity.Role) error {
	if !actor.Is(roles...) {
		return apperr.Forbidden()
	}
	return nil
}

// asFieldError turns a failed lookup of an id taken from the request body into
// a validation error on that field
func asFieldError(err error, field string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind == apperr.KindNotFound {
		return apperr.FieldValidation(field, appErr.Message)
	}
	return err
}

// logFailure logs err at a level matching its kind. Expected domain failures
// stay below Error.
func logFailure(logger *zap.Logger, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	switch apperr.GetKind(err) {
	case apperr.KindValidation, apperr.KindNotFound:
		logger.Debug(msg, fields...)
	case apperr.KindForbidden, apperr.KindConflict, apperr.KindUnauthorized:
		logger.Warn(msg, fields...)
	default:
		logger.Error(msg, fields...)
	}
}
