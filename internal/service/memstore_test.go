package service

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/smart-copro/internal/apperr"
	"github.com/septivank/smart-copro/internal/db"
	"github.com/septivank/smart-copro/internal/repository"
)

var errInjected = errors.New("injected storage failure")

// memStore is an in-memory repository.Store. Transactions are serialized and
// rolled back by restoring a copy of every table.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	seq  int64
	base time.Time

	zones         map[int64]db.Zone
	meters        map[int64]db.Meter
	readings      map[int64]db.Reading
	thresholds    map[int64]db.Threshold
	alerts        map[int64]db.Alert
	identities    map[uuid.UUID]db.Identity
	complaints    map[int64]db.Complaint
	interventions map[int64]db.Intervention

	failInsertAlert bool
}

var _ repository.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		base:          time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC),
		zones:         map[int64]db.Zone{},
		meters:        map[int64]db.Meter{},
		readings:      map[int64]db.Reading{},
		thresholds:    map[int64]db.Threshold{},
		alerts:        map[int64]db.Alert{},
		identities:    map[uuid.UUID]db.Identity{},
		complaints:    map[int64]db.Complaint{},
		interventions: map[int64]db.Intervention{},
	}
}

type memSnapshot struct {
	seq           int64
	zones         map[int64]db.Zone
	meters        map[int64]db.Meter
	readings      map[int64]db.Reading
	thresholds    map[int64]db.Threshold
	alerts        map[int64]db.Alert
	complaints    map[int64]db.Complaint
	interventions map[int64]db.Intervention
}

func (m *memStore) InTx(ctx context.Context, fn func(q repository.Querier) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snap := memSnapshot{
		seq:           m.seq,
		zones:         maps.Clone(m.zones),
		meters:        maps.Clone(m.meters),
		readings:      maps.Clone(m.readings),
		thresholds:    maps.Clone(m.thresholds),
		alerts:        maps.Clone(m.alerts),
		complaints:    maps.Clone(m.complaints),
		interventions: maps.Clone(m.interventions),
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.seq = snap.seq
		m.zones, m.meters, m.readings = snap.zones, snap.meters, snap.readings
		m.thresholds, m.alerts = snap.thresholds, snap.alerts
		m.complaints, m.interventions = snap.complaints, snap.interventions
		m.mu.Unlock()
		return err
	}
	return nil
}

// next returns a fresh id and a creation time that increases with it
func (m *memStore) next() (int64, time.Time) {
	m.seq++
	return m.seq, m.base.Add(time.Duration(m.seq) * time.Second)
}

func notFound(entity string) error {
	return apperr.NotFound(entity + " not found")
}

func missingRef(field string) error {
	return apperr.FieldValidation(field, "referenced resource does not exist")
}

func (m *memStore) addIdentity(role string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New()
	m.identities[id] = db.Identity{ID: id, Role: role, Email: id.String() + "@copro.test", CreatedAt: m.base}
	return id
}

func (m *memStore) CreateZone(ctx context.Context, zone *db.Zone) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	zone.ID, zone.CreatedAt = m.next()
	m.zones[zone.ID] = *zone
	return nil
}

func (m *memStore) GetZone(ctx context.Context, id int64) (*db.Zone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	z, ok := m.zones[id]
	if !ok {
		return nil, notFound("zone")
	}
	return &z, nil
}

func (m *memStore) ListZones(ctx context.Context) ([]db.Zone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	zones := make([]db.Zone, 0, len(m.zones))
	for _, z := range m.zones {
		zones = append(zones, z)
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].ID < zones[j].ID })
	return zones, nil
}

func (m *memStore) CreateMeter(ctx context.Context, meter *db.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.meters {
		if existing.Reference == meter.Reference {
			return apperr.Conflict("meter reference already exists")
		}
	}
	if _, ok := m.zones[meter.ZoneID]; !ok {
		return missingRef("zone_id")
	}
	meter.ID, meter.CreatedAt = m.next()
	m.meters[meter.ID] = *meter
	return nil
}

func (m *memStore) UpdateMeter(ctx context.Context, meter *db.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.meters[meter.ID]; !ok {
		return notFound("meter")
	}
	if _, ok := m.zones[meter.ZoneID]; !ok {
		return missingRef("zone_id")
	}
	m.meters[meter.ID] = *meter
	return nil
}

func (m *memStore) GetMeter(ctx context.Context, id int64) (*db.Meter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	meter, ok := m.meters[id]
	if !ok {
		return nil, notFound("meter")
	}
	return &meter, nil
}

func (m *memStore) GetMeterByReference(ctx context.Context, reference string) (*db.Meter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, meter := range m.meters {
		if meter.Reference == reference {
			return &meter, nil
		}
	}
	return nil, notFound("meter")
}

func (m *memStore) ListMeters(ctx context.Context) ([]db.Meter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	meters := make([]db.Meter, 0, len(m.meters))
	for _, meter := range m.meters {
		meters = append(meters, meter)
	}
	sort.Slice(meters, func(i, j int) bool { return meters[i].Reference < meters[j].Reference })
	return meters, nil
}

func (m *memStore) duplicateReading(r *db.Reading) bool {
	for _, existing := range m.readings {
		if existing.MeterID == r.MeterID && existing.RecordedAt.Equal(r.RecordedAt) {
			return true
		}
	}
	return false
}

func (m *memStore) InsertReading(ctx context.Context, reading *db.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.meters[reading.MeterID]; !ok {
		return missingRef("meter_id")
	}
	if m.duplicateReading(reading) {
		return apperr.Conflict("a reading already exists for this meter at this timestamp")
	}
	reading.ID, reading.CreatedAt = m.next()
	m.readings[reading.ID] = *reading
	return nil
}

func (m *memStore) InsertReadingIfAbsent(ctx context.Context, reading *db.Reading) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.meters[reading.MeterID]; !ok {
		return false, missingRef("meter_id")
	}
	if m.duplicateReading(reading) {
		return false, nil
	}
	reading.ID, reading.CreatedAt = m.next()
	m.readings[reading.ID] = *reading
	return true, nil
}

func (m *memStore) GetReading(ctx context.Context, id int64) (*db.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.readings[id]
	if !ok {
		return nil, notFound("reading")
	}
	return &r, nil
}

func (m *memStore) UpdateReading(ctx context.Context, reading *db.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.readings[reading.ID]; !ok {
		return notFound("reading")
	}
	m.readings[reading.ID] = *reading
	return nil
}

func (m *memStore) sortedReadings(keep func(db.Reading) bool) []db.Reading {
	readings := make([]db.Reading, 0)
	for _, r := range m.readings {
		if keep(r) {
			readings = append(readings, r)
		}
	}
	sort.Slice(readings, func(i, j int) bool {
		if !readings[i].RecordedAt.Equal(readings[j].RecordedAt) {
			return readings[i].RecordedAt.After(readings[j].RecordedAt)
		}
		return readings[i].ID > readings[j].ID
	})
	return readings
}

func (m *memStore) ListReadings(ctx context.Context, filter repository.ReadingFilter) ([]db.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	readings := m.sortedReadings(func(r db.Reading) bool {
		meter := m.meters[r.MeterID]
		if filter.MeterReference != "" && meter.Reference != filter.MeterReference {
			return false
		}
		return filter.ZoneID == 0 || meter.ZoneID == filter.ZoneID
	})
	if filter.Limit > 0 && len(readings) > filter.Limit {
		readings = readings[:filter.Limit]
	}
	return readings, nil
}

func (m *memStore) RecentReadingValues(ctx context.Context, meterID, excludeID int64, limit int) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	readings := m.sortedReadings(func(r db.Reading) bool {
		return r.MeterID == meterID && r.ID != excludeID
	})
	var values []float64
	for i, r := range readings {
		if i == limit {
			break
		}
		values = append(values, r.Value)
	}
	return values, nil
}

func (m *memStore) ZoneConsumption(ctx context.Context, zoneID int64, from, to time.Time) (*db.ZoneConsumption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := &db.ZoneConsumption{ZoneID: zoneID, From: from, To: to}
	var sum float64
	for _, r := range m.readings {
		if m.meters[r.MeterID].ZoneID != zoneID || r.RecordedAt.Before(from) || !r.RecordedAt.Before(to) {
			continue
		}
		result.ReadingCount++
		sum += r.Value
		if r.Value > result.Maximum {
			result.Maximum = r.Value
		}
	}
	if result.ReadingCount > 0 {
		result.Average = sum / float64(result.ReadingCount)
	}
	return result, nil
}

func (m *memStore) CreateThreshold(ctx context.Context, threshold *db.Threshold) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if threshold.MeterID != nil {
		if _, ok := m.meters[*threshold.MeterID]; !ok {
			return missingRef("meter_id")
		}
	}
	threshold.ID, threshold.CreatedAt = m.next()
	m.thresholds[threshold.ID] = *threshold
	return nil
}

func (m *memStore) UpdateThreshold(ctx context.Context, threshold *db.Threshold) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.thresholds[threshold.ID]
	if !ok {
		return notFound("threshold")
	}
	threshold.CreatedAt = existing.CreatedAt
	m.thresholds[threshold.ID] = *threshold
	return nil
}

func (m *memStore) DeleteThreshold(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.thresholds[id]; !ok {
		return notFound("threshold")
	}
	delete(m.thresholds, id)
	for alertID, a := range m.alerts {
		if a.ThresholdID != nil && *a.ThresholdID == id {
			a.ThresholdID = nil
			m.alerts[alertID] = a
		}
	}
	return nil
}

func (m *memStore) GetThreshold(ctx context.Context, id int64) (*db.Threshold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.thresholds[id]
	if !ok {
		return nil, notFound("threshold")
	}
	return &t, nil
}

func (m *memStore) sortedThresholds(keep func(db.Threshold) bool) []db.Threshold {
	thresholds := make([]db.Threshold, 0)
	for _, t := range m.thresholds {
		if keep(t) {
			thresholds = append(thresholds, t)
		}
	}
	sort.Slice(thresholds, func(i, j int) bool { return thresholds[i].ID < thresholds[j].ID })
	return thresholds
}

func (m *memStore) ListThresholds(ctx context.Context) ([]db.Threshold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sortedThresholds(func(db.Threshold) bool { return true }), nil
}

func (m *memStore) ThresholdsForMeter(ctx context.Context, meterID int64) ([]db.Threshold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sortedThresholds(func(t db.Threshold) bool {
		return t.MeterID == nil || *t.MeterID == meterID
	}), nil
}

func (m *memStore) InsertAlert(ctx context.Context, alert *db.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failInsertAlert {
		return apperr.Internal("database error", errInjected)
	}
	alert.ID, _ = m.next()
	alert.Handled = false
	m.alerts[alert.ID] = *alert
	return nil
}

func (m *memStore) ListAlerts(ctx context.Context, handled *bool) ([]db.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alerts := make([]db.Alert, 0)
	for _, a := range m.alerts {
		if handled == nil || a.Handled == *handled {
			alerts = append(alerts, a)
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID > alerts[j].ID })
	return alerts, nil
}

func (m *memStore) MarkAlertHandled(ctx context.Context, id int64) (*db.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return nil, notFound("alert")
	}
	a.Handled = true
	m.alerts[id] = a
	return &a, nil
}

func (m *memStore) GetIdentity(ctx context.Context, id uuid.UUID) (*db.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity, ok := m.identities[id]
	if !ok {
		return nil, notFound("identity")
	}
	return &identity, nil
}

func (m *memStore) InsertComplaint(ctx context.Context, complaint *db.Complaint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if complaint.MeterID != nil {
		if _, ok := m.meters[*complaint.MeterID]; !ok {
			return missingRef("meter_id")
		}
	}
	complaint.ID, complaint.SubmittedAt = m.next()
	complaint.UpdatedAt = complaint.SubmittedAt
	m.complaints[complaint.ID] = *complaint
	return nil
}

func (m *memStore) GetComplaint(ctx context.Context, id int64) (*db.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.complaints[id]
	if !ok {
		return nil, notFound("complaint")
	}
	return &c, nil
}

func (m *memStore) GetComplaintForUpdate(ctx context.Context, id int64) (*db.Complaint, error) {
	return m.GetComplaint(ctx, id)
}

func (m *memStore) ListComplaints(ctx context.Context, residentID *uuid.UUID) ([]db.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	complaints := make([]db.Complaint, 0)
	for _, c := range m.complaints {
		if residentID == nil || c.ResidentID == *residentID {
			complaints = append(complaints, c)
		}
	}
	sort.Slice(complaints, func(i, j int) bool { return complaints[i].ID > complaints[j].ID })
	return complaints, nil
}

func (m *memStore) UpdateComplaintState(ctx context.Context, id int64, status db.ComplaintStatus, priority db.Priority) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.complaints[id]
	if !ok {
		return notFound("complaint")
	}
	closed := c.Status == db.StatusResolved || c.Status == db.StatusRejected
	if closed && c.Status != status {
		return apperr.Conflict("complaint is closed").WithField("status")
	}
	c.Status, c.Priority = status, priority
	m.complaints[id] = c
	return nil
}

func (m *memStore) ForceComplaintStatus(ctx context.Context, id int64, status db.ComplaintStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.complaints[id]
	if !ok {
		return notFound("complaint")
	}
	c.Status = status
	m.complaints[id] = c
	return nil
}

func (m *memStore) InsertIntervention(ctx context.Context, intervention *db.Intervention) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.complaints[intervention.ComplaintID]; !ok {
		return missingRef("complaint_id")
	}
	for _, existing := range m.interventions {
		if existing.ComplaintID == intervention.ComplaintID {
			return apperr.Conflict("complaint already has an intervention")
		}
	}
	intervention.ID, intervention.CreatedAt = m.next()
	intervention.UpdatedAt = intervention.CreatedAt
	m.interventions[intervention.ID] = *intervention
	return nil
}

func (m *memStore) GetIntervention(ctx context.Context, id int64) (*db.Intervention, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.interventions[id]
	if !ok {
		return nil, notFound("intervention")
	}
	return &i, nil
}

func (m *memStore) GetInterventionForUpdate(ctx context.Context, id int64) (*db.Intervention, error) {
	return m.GetIntervention(ctx, id)
}

func (m *memStore) InterventionExistsForComplaint(ctx context.Context, complaintID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, i := range m.interventions {
		if i.ComplaintID == complaintID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) UpdateIntervention(ctx context.Context, intervention *db.Intervention) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.interventions[intervention.ID]; !ok {
		return notFound("intervention")
	}
	m.interventions[intervention.ID] = *intervention
	return nil
}

func (m *memStore) DeleteIntervention(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.interventions[id]; !ok {
		return notFound("intervention")
	}
	delete(m.interventions, id)
	return nil
}

func (m *memStore) ListInterventions(ctx context.Context, technicianID *uuid.UUID) ([]db.Intervention, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	interventions := make([]db.Intervention, 0)
	for _, i := range m.interventions {
		if technicianID == nil || (i.TechnicianID != nil && *i.TechnicianID == *technicianID) {
			interventions = append(interventions, i)
		}
	}
	sort.Slice(interventions, func(a, b int) bool { return interventions[a].ID < interventions[b].ID })
	return interventions, nil
}

func (m *memStore) Count(ctx context.Context, metric repository.Metric) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	countComplaints := func(keep func(db.Complaint) bool) (n int64) {
		for _, c := range m.complaints {
			if keep(c) {
				n++
			}
		}
		return n
	}
	countRole := func(role string) (n int64) {
		for _, i := range m.identities {
			if i.Role == role {
				n++
			}
		}
		return n
	}

	switch metric {
	case repository.MetricZones:
		return int64(len(m.zones)), nil
	case repository.MetricMeters:
		return int64(len(m.meters)), nil
	case repository.MetricResidents:
		return countRole("RESIDENT"), nil
	case repository.MetricTechnicians:
		return countRole("TECHNICIAN"), nil
	case repository.MetricComplaints:
		return int64(len(m.complaints)), nil
	case repository.MetricOpenComplaints:
		return countComplaints(func(c db.Complaint) bool { return c.Status == db.StatusOpen }), nil
	case repository.MetricResolvedComplaints:
		return countComplaints(func(c db.Complaint) bool { return c.Status == db.StatusResolved }), nil
	case repository.MetricUnhandledAlerts:
		var n int64
		for _, a := range m.alerts {
			if !a.Handled {
				n++
			}
		}
		return n, nil
	case repository.MetricInProgressInterventions:
		var n int64
		for _, i := range m.interventions {
			if m.complaints[i.ComplaintID].Status == db.StatusInProgress {
				n++
			}
		}
		return n, nil
	}
	return 0, apperr.Internal("unknown dashboard metric "+string(metric), nil)
}
