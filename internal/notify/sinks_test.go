package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/smart-copro/internal/notify"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubPublisher struct {
	routingKey string
	eventType  string
	payload    any
	err        error
}

func (p *stubPublisher) PublishEvent(ctx context.Context, routingKey, eventType string, payload any) error {
	p.routingKey, p.eventType, p.payload = routingKey, eventType, payload
	return p.err
}

func sampleNotification() notify.Notification {
	return notify.Notification{
		ID:          uuid.New(),
		RecipientID: uuid.New(),
		Kind:        notify.KindResolution,
		ComplaintID: 42,
		Status:      "RESOLVED",
		OccurredAt:  time.Date(2025, 12, 29, 10, 0, 0, 0, time.UTC),
	}
}

func TestBrokerSink_Publishes(t *testing.T) {
	pub := &stubPublisher{}
	sink := notify.NewBrokerSink(pub, "copro.notification", zap.NewNop())
	n := sampleNotification()

	sink.Notify(context.Background(), n)

	if pub.routingKey != "copro.notification" || pub.eventType != notify.EventType {
		t.Errorf("Unexpected routing %q / %q", pub.routingKey, pub.eventType)
	}
	if got, ok := pub.payload.(notify.Notification); !ok || got.ID != n.ID {
		t.Errorf("Expected the notification as payload, got %#v", pub.payload)
	}
}

func TestBrokerSink_LogsFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := notify.NewBrokerSink(&stubPublisher{err: errors.New("channel closed")}, "rk", zap.New(core))

	sink.Notify(context.Background(), sampleNotification())

	if logs.FilterMessage("failed to publish notification").Len() != 1 {
		t.Errorf("Expected one warning, got %v", logs.All())
	}
}

func TestFanout(t *testing.T) {
	var calls []string
	record := func(name string) notify.Sink {
		return notify.SinkFunc(func(ctx context.Context, n notify.Notification) {
			calls = append(calls, name)
		})
	}

	notify.Fanout{record("a"), record("b")}.Notify(context.Background(), sampleNotification())

	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Errorf("Expected both sinks in order, got %v", calls)
	}
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	notify.NewLogSink(zap.New(core)).Notify(context.Background(), sampleNotification())

	entries := logs.FilterMessage("notification emitted").All()
	if len(entries) != 1 {
		t.Fatalf("Expected one log entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["kind"] != string(notify.KindResolution) {
		t.Errorf("Expected kind field, got %v", entries[0].ContextMap())
	}
}
