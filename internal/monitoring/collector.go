package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/weekly-intel/internal/history"
	"github.com/sells-group/weekly-intel/internal/model"
	"github.com/sells-group/weekly-intel/internal/profile"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsNotified int     `json:"runs_notified"`
	RunsFailed   int     `json:"runs_failed"`
	RunsInFlight int     `json:"runs_in_flight"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Digest metrics for the current ISO week.
	ClientsTotal     int     `json:"clients_total"`
	DigestsThisWeek  int     `json:"digests_this_week"`
	AvgOpportunities float64 `json:"avg_opportunities"`

	// Metadata.
	Week          string    `json:"week"`
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the history store and client roster.
type Collector struct {
	store    history.Store
	profiles profile.Provider
}

// NewCollector creates a new metrics collector.
func NewCollector(st history.Store, profiles profile.Provider) *Collector {
	return &Collector{store: st, profiles: profiles}
}

// Collect gathers a snapshot of system metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		Week:          model.ISOWeek(now),
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, history.RunFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.State {
		case model.RunStateNotified:
			snap.RunsNotified++
		case model.RunStateFailed:
			snap.RunsFailed++
		default:
			snap.RunsInFlight++
		}
	}
	if finished := snap.RunsNotified + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}

	clients, err := c.profiles.List(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list clients")
	}
	snap.ClientsTotal = len(clients)

	var totalOpps int
	for _, client := range clients {
		d, err := c.store.GetDigest(ctx, client.ID, snap.Week)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: digest for client %s", client.ID)
		}
		if d == nil {
			continue
		}
		snap.DigestsThisWeek++
		totalOpps += len(d.Opportunities())
	}
	if snap.DigestsThisWeek > 0 {
		snap.AvgOpportunities = float64(totalOpps) / float64(snap.DigestsThisWeek)
	}

	return snap, nil
}
