// Package notify carries complaint notifications to residents. The core only
// emits events; delivery belongs to whatever consumes the sink.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind is the notification event kind.
type Kind string

const (
	KindUpdate     Kind = "generic-update"
	KindResolution Kind = "resolution"
	KindRejection  Kind = "rejection"
)

// Notification is addressed to one recipient identity.
type Notification struct {
	ID          uuid.UUID `json:"id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Kind        Kind      `json:"kind"`
	ComplaintID int64     `json:"complaint_id"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Sink accepts notifications fire-and-forget.
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification)

// Notify calls f.
func (f SinkFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}
