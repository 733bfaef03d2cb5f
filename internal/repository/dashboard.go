package repository

import (
	"context"

	"github.com/septivank/smart-copro/internal/apperr"
)

var metricQueries = map[Metric]string{
	MetricZones:              `SELECT count(*) FROM zones`,
	MetricMeters:             `SELECT count(*) FROM meters`,
	MetricResidents:          `SELECT count(*) FROM identities WHERE role = 'RESIDENT'`,
	MetricTechnicians:        `SELECT count(*) FROM identities WHERE role = 'TECHNICIAN'`,
	MetricComplaints:         `SELECT count(*) FROM complaints`,
	MetricOpenComplaints:     `SELECT count(*) FROM complaints WHERE status = 'OPEN'`,
	MetricResolvedComplaints: `SELECT count(*) FROM complaints WHERE status = 'RESOLVED'`,
	MetricUnhandledAlerts:    `SELECT count(*) FROM alerts WHERE handled = false`,
	MetricInProgressInterventions: `
		SELECT count(*)
		FROM interventions i
		JOIN complaints c ON c.id = i.complaint_id
		WHERE c.status = 'IN_PROGRESS'
	`,
}

// Count returns the current value of a dashboard counter
func (q *queries) Count(ctx context.Context, metric Metric) (int64, error) {
	query, ok := metricQueries[metric]
	if !ok {
		return 0, apperr.Internal("unknown dashboard metric "+string(metric), nil)
	}

	var n int64
	if err := q.db.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, translate("dashboard.count."+string(metric), "metric", err)
	}
	return n, nil
}
