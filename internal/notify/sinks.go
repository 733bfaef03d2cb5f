package notify

import (
	"context"

	"go.uber.org/zap"
)

// Publisher publishes an event on the message broker
type Publisher interface {
	PublishEvent(ctx context.Context, routingKey, eventType string, payload any) error
}

// EventType is the broker event type carrying a Notification
const EventType = "complaint.notification"

// BrokerSink publishes notifications on the events exchange. Failures are
// logged and dropped.
type BrokerSink struct {
	publisher  Publisher
	routingKey string
	logger     *zap.Logger
}

// NewBrokerSink creates a sink publishing under routingKey
func NewBrokerSink(publisher Publisher, routingKey string, logger *zap.Logger) *BrokerSink {
	return &BrokerSink{publisher: publisher, routingKey: routingKey, logger: logger}
}

// Notify publishes n
func (s *BrokerSink) Notify(ctx context.Context, n Notification) {
	if err := s.publisher.PublishEvent(ctx, s.routingKey, EventType, n); err != nil {
		s.logger.Warn("failed to publish notification",
			zap.Error(err),
			zap.String("notification_id", n.ID.String()),
			zap.Int64("complaint_id", n.ComplaintID),
		)
	}
}

// LogSink writes notifications to the log
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink logging at info level
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Notify logs n
func (s *LogSink) Notify(_ context.Context, n Notification) {
	s.logger.Info("notification emitted",
		zap.String("notification_id", n.ID.String()),
		zap.String("recipient_id", n.RecipientID.String()),
		zap.String("kind", string(n.Kind)),
		zap.Int64("complaint_id", n.ComplaintID),
		zap.String("status", n.Status),
	)
}

// Fanout delivers each notification to every sink in order
type Fanout []Sink

// Notify forwards n to every sink
func (f Fanout) Notify(ctx context.Context, n Notification) {
	for _, s := range f {
		s.Notify(ctx, n)
	}
}
