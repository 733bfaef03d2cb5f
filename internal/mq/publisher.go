package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Event types published on the events exchange
const (
	EventAlertRaised     = "alert.raised"
	EventReadingRecorded = "reading.recorded"
)

// Envelope wraps every event published by the service
type Envelope struct {
	EventID    uuid.UUID       `json:"event_id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into a fresh envelope
func NewEnvelope(eventType string, payload any, now time.Time) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return Envelope{
		EventID:    uuid.New(),
		Type:       eventType,
		OccurredAt: now.UTC(),
		Payload:    body,
	}, nil
}

// Publisher handles event publishing to RabbitMQ. Publishing is serialized
// because an AMQP channel is not safe for concurrent use.
type Publisher struct {
	mu       sync.Mutex
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher opens a channel and declares the events exchange
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := declareTopicExchange(ch, exchange); err != nil {
		ch.Close()
		return nil, err
	}

	return &Publisher{
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// PublishEvent publishes payload wrapped in an Envelope of the given type
func (p *Publisher) PublishEvent(ctx context.Context, routingKey, eventType string, payload any) error {
	envelope, err := NewEnvelope(eventType, payload, time.Now())
	if err != nil {
		return err
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	p.mu.Lock()
	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    envelope.EventID.String(),
			Type:         eventType,
			Timestamp:    envelope.OccurredAt,
		},
	)
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}

	p.logger.Debug("published event",
		zap.String("routing_key", routingKey),
		zap.String("type", eventType),
		zap.String("event_id", envelope.EventID.String()),
	)

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
