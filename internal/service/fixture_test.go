package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/septivank/smart-copro/internal/alerting"
	"github.com/septivank/smart-copro/internal/apperr"
	"github.com/septivank/smart-copro/internal/config"
	"github.com/septivank/smart-copro/internal/db"
	"github.com/septivank/smart-copro/internal/identity"
	"github.com/septivank/smart-copro/internal/lifecycle"
	"github.com/septivank/smart-copro/internal/notify"
	"github.com/septivank/smart-copro/internal/validator"
	"go.uber.org/zap"
)

type publishedEvent struct {
	routingKey string
	eventType  string
	payload    any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) PublishEvent(ctx context.Context, routingKey, eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{routingKey, eventType, payload})
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []publishedEvent
	for _, e := range p.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type recordingSink struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (s *recordingSink) Notify(ctx context.Context, n notify.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
}

func (s *recordingSink) kinds() []notify.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()

	kinds := make([]notify.Kind, 0, len(s.sent))
	for _, n := range s.sent {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

type options struct {
	globalFallback bool
	reopenTerminal bool
}

type fixture struct {
	store     *memStore
	events    *recordingPublisher
	sink      *recordingSink
	metering  *MeteringService
	processor *ProcessorService
	registry  *ThresholdService
	complaint *ComplaintService
	dispatch  *DispatchService

	manager    identity.Actor
	council    identity.Actor
	resident   identity.Actor
	technician identity.Actor

	now time.Time
}

var fixedNow = time.Date(2025, 12, 29, 10, 32, 0, 0, time.UTC)

func newFixture(t *testing.T, opts options) *fixture {
	t.Helper()

	cfg := &config.Config{
		RabbitMQ: config.RabbitMQConfig{
			AlertRoutingKey:   "alert.raised",
			ReadingRoutingKey: "meter.reading.recorded",
		},
		Alerting: config.AlertingConfig{
			GlobalFallback:            opts.globalFallback,
			MinDataPointsForDetection: 3,
			HistoryWindow:             10,
		},
	}

	store := newMemStore()
	events := &recordingPublisher{}
	sink := &recordingSink{}
	logger := zap.NewNop()
	v := validator.NewValidator(10080)
	engine := alerting.NewEngine(alerting.NewDetector(cfg.Alerting.MinDataPointsForDetection), cfg.Alerting.GlobalFallback)
	machine := lifecycle.New(10, opts.reopenTerminal)
	clock := func() time.Time { return fixedNow }

	metering := NewMeteringService(store, engine, v, events, cfg, logger)
	metering.now = clock
	complaints := NewComplaintService(store, machine, v, sink, logger)
	complaints.now = clock
	dispatch := NewDispatchService(store, machine, v, sink, logger)
	dispatch.now = clock

	return &fixture{
		store:     store,
		events:    events,
		sink:      sink,
		metering:  metering,
		processor: NewProcessorService(metering, v, logger),
		registry:  NewThresholdService(store, v, logger),
		complaint: complaints,
		dispatch:  dispatch,

		manager:    identity.Actor{ID: store.addIdentity("MANAGER"), Role: identity.RoleManager},
		council:    identity.Actor{ID: store.addIdentity("COUNCIL"), Role: identity.RoleCouncil},
		resident:   identity.Actor{ID: store.addIdentity("RESIDENT"), Role: identity.RoleResident},
		technician: identity.Actor{ID: store.addIdentity("TECHNICIAN"), Role: identity.RoleTechnician},

		now: fixedNow,
	}
}

func (f *fixture) otherTechnician() identity.Actor {
	return identity.Actor{ID: f.store.addIdentity("TECHNICIAN"), Role: identity.RoleTechnician}
}

func (f *fixture) meter(t *testing.T, reference string) *db.Meter {
	t.Helper()
	ctx := context.Background()

	zone, err := f.metering.CreateZone(ctx, f.manager, ZoneInput{Name: "Hall " + reference, Surface: 120})
	if err != nil {
		t.Fatalf("CreateZone: %v", err)
	}
	meter, err := f.metering.CreateMeter(ctx, f.manager, MeterInput{
		Reference:   reference,
		Location:    "Basement",
		InstalledOn: "2024-01-15",
		Type:        "ELECTRICITY",
		State:       "ACTIVE",
		ZoneID:      zone.ID,
	})
	if err != nil {
		t.Fatalf("CreateMeter: %v", err)
	}
	return meter
}

func (f *fixture) threshold(t *testing.T, typ db.ThresholdType, limit float64, meterID *int64) *db.Threshold {
	t.Helper()

	th, err := f.registry.CreateThreshold(context.Background(), f.manager, ThresholdInput{
		Type:    string(typ),
		Limit:   &limit,
		MeterID: meterID,
	})
	if err != nil {
		t.Fatalf("CreateThreshold: %v", err)
	}
	return th
}

func (f *fixture) submit(meterID int64, value float64, at time.Time) (*ReadingResult, error) {
	return f.metering.SubmitReading(context.Background(), f.manager, ReadingInput{
		MeterID:    &meterID,
		Value:      &value,
		RecordedAt: &at,
	})
}

func (f *fixture) openComplaint(t *testing.T, priority string) *db.Complaint {
	t.Helper()

	c, err := f.complaint.Submit(context.Background(), f.resident, ComplaintInput{
		Description: "Lift stuck between floors",
		Category:    "ELEVATOR",
		Priority:    priority,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return c
}

func (f *fixture) assign(complaintID int64, tech identity.Actor) (*db.Intervention, error) {
	at := f.now.Add(24 * time.Hour)
	return f.dispatch.Assign(context.Background(), f.manager, AssignInput{
		ComplaintID:  &complaintID,
		TechnicianID: &tech.ID,
		ScheduledAt:  &at,
	})
}

func (f *fixture) statusOf(t *testing.T, complaintID int64) db.ComplaintStatus {
	t.Helper()

	c, err := f.store.GetComplaint(context.Background(), complaintID)
	if err != nil {
		t.Fatalf("GetComplaint: %v", err)
	}
	return c.Status
}

func ptr[T any](v T) *T {
	return &v
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if !apperr.Is(err, kind) {
		t.Fatalf("Expected error kind %d, got %v", kind, err)
	}
}

func assertField(t *testing.T, err error, field string) {
	t.Helper()
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("Expected *apperr.Error, got %T (%v)", err, err)
	}
	if appErr.Field != field {
		t.Errorf("Expected field %q, got %q", field, appErr.Field)
	}
}
