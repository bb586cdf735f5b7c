package services

import (
	"context"
	"time"

	"github.com/yeremiapane/tenant-realtime/events"
	"github.com/yeremiapane/tenant-realtime/utils"
)

// MetricsMonitor recomputes the platform snapshot and one snapshot per org
// with live subscribers on every tick.
type MetricsMonitor struct {
	Aggregator *MetricsAggregator
	ActiveOrgs func() []string
	StopChan   chan struct{}
	Interval   time.Duration
}

func NewMetricsMonitor(agg *MetricsAggregator, activeOrgs func() []string) *MetricsMonitor {
	return &MetricsMonitor{
		Aggregator: agg,
		ActiveOrgs: activeOrgs,
		StopChan:   make(chan struct{}),
		Interval:   60 * time.Second,
	}
}

func (mm *MetricsMonitor) Start() {
	go func() {
		ticker := time.NewTicker(mm.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				mm.RunOnce(context.Background())
			case <-mm.StopChan:
				return
			}
		}
	}()
}

func (mm *MetricsMonitor) Stop() {
	close(mm.StopChan)
}

// RunOnce computes every snapshot due on a tick and returns how many were
// published.
func (mm *MetricsMonitor) RunOnce(ctx context.Context) int {
	scopes := []events.Scope{events.Global()}
	if mm.ActiveOrgs != nil {
		for _, org := range mm.ActiveOrgs() {
			scopes = append(scopes, events.Org(org))
		}
	}

	for _, scope := range scopes {
		// partial failures are logged by the aggregator
		if _, err := mm.Aggregator.Trigger(ctx, scope); err != nil {
			utils.InfoLogger.WithField("scope", scope.Key()).Debug("snapshot published with degraded sections")
		}
	}
	return len(scopes)
}
