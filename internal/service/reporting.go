package service

import (
	"context"
	"math"
	"time"

	"github.com/septivank/smart-copro/internal/apperr"
	"github.com/septivank/smart-copro/internal/db"
	"github.com/septivank/smart-copro/internal/identity"
	"github.com/septivank/smart-copro/internal/repository"
	"github.com/septivank/smart-copro/tools/timeparser"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SnapshotCache stores the latest dashboard snapshot
type SnapshotCache interface {
	Get(ctx context.Context) (*db.DashboardSnapshot, bool, error)
	Set(ctx context.Context, snapshot *db.DashboardSnapshot) error
	Invalidate(ctx context.Context) error
}

// ReportingService builds read-only aggregates. It never writes domain data.
type ReportingService struct {
	store  repository.Querier
	cache  SnapshotCache
	logger *zap.Logger
	now    Clock
}

// NewReportingService creates a new reporting service
func NewReportingService(store repository.Querier, cache SnapshotCache, logger *zap.Logger) *ReportingService {
	return &ReportingService{store: store, cache: cache, logger: logger, now: time.Now}
}

// Dashboard returns the dashboard snapshot, from the cache unless refresh is
// set. Cache failures are logged and fall through to the database.
func (s *ReportingService) Dashboard(ctx context.Context, actor identity.Actor, refresh bool) (*db.DashboardSnapshot, error) {
	if err := authorize(actor, identity.RoleManager, identity.RoleCouncil); err != nil {
		return nil, err
	}

	if refresh {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
		}
	} else {
		snapshot, ok, err := s.cache.Get(ctx)
		if err != nil {
			s.logger.Warn("failed to read dashboard cache", zap.Error(err))
		}
		if ok {
			return snapshot, nil
		}
	}

	snapshot, err := s.buildSnapshot(ctx)
	if err != nil {
		logFailure(s.logger, "failed to build dashboard", err)
		return nil, err
	}

	if err := s.cache.Set(ctx, snapshot); err != nil {
		s.logger.Warn("failed to cache dashboard", zap.Error(err))
	}
	return snapshot, nil
}

func (s *ReportingService) buildSnapshot(ctx context.Context) (*db.DashboardSnapshot, error) {
	var (
		snapshot           db.DashboardSnapshot
		complaints, solved int64
	)
	targets := map[repository.Metric]*int64{
		repository.MetricZones:                   &snapshot.Zones,
		repository.MetricMeters:                  &snapshot.Meters,
		repository.MetricResidents:               &snapshot.Residents,
		repository.MetricTechnicians:             &snapshot.Technicians,
		repository.MetricOpenComplaints:          &snapshot.OpenComplaints,
		repository.MetricUnhandledAlerts:         &snapshot.UnhandledAlerts,
		repository.MetricInProgressInterventions: &snapshot.InProgressInterventions,
		repository.MetricComplaints:              &complaints,
		repository.MetricResolvedComplaints:      &solved,
	}

	g, gctx := errgroup.WithContext(ctx)
	for metric, target := range targets {
		g.Go(func() error {
			n, err := s.store.Count(gctx, metric)
			if err != nil {
				return err
			}
			*target = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snapshot.ResolutionRate = ResolutionRate(solved, complaints)
	snapshot.GeneratedAt = s.now().UTC()
	return &snapshot, nil
}

// ResolutionRate is the share of resolved complaints as a percentage rounded
// to two decimals. With no complaints at all the rate is 100.
func ResolutionRate(resolved, total int64) float64 {
	if total == 0 {
		return 100
	}
	return math.Round(float64(resolved)/float64(total)*100*100) / 100
}

// ZoneConsumption aggregates the readings of a zone over [from, to). Empty
// bounds default to the beginning of time and now.
func (s *ReportingService) ZoneConsumption(ctx context.Context, actor identity.Actor, zoneID int64, from, to string) (*db.ZoneConsumption, error) {
	if err := authorize(actor, identity.RoleManager, identity.RoleCouncil); err != nil {
		return nil, err
	}

	start := time.Unix(0, 0).UTC()
	end := s.now().UTC()
	var err error
	if from != "" {
		if start, err = timeparser.ParsePeriodBoundary(from); err != nil {
			return nil, apperr.FieldValidation("from", "must be a date (YYYY-MM-DD) or an RFC3339 timestamp")
		}
	}
	if to != "" {
		if end, err = timeparser.ParsePeriodBoundary(to); err != nil {
			return nil, apperr.FieldValidation("to", "must be a date (YYYY-MM-DD) or an RFC3339 timestamp")
		}
	}
	if !start.Before(end) {
		return nil, apperr.FieldValidation("from", "must be before to")
	}

	if _, err := s.store.GetZone(ctx, zoneID); err != nil {
		return nil, err
	}
	return s.store.ZoneConsumption(ctx, zoneID, start, end)
}
