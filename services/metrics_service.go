package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/tenant-realtime/events"
	"github.com/yeremiapane/tenant-realtime/hub"
	"github.com/yeremiapane/tenant-realtime/utils"
)

const (
	SectionUsers         = "users"
	SectionRevenue       = "revenue"
	SectionAPI           = "api"
	SectionNotifications = "notifications"
	SectionSystem        = "system"

	DefaultQueryTimeout = 5 * time.Second

	userGrowthWindow    = 7 * 24 * time.Hour
	revenueGrowthWindow = 30 * 24 * time.Hour
)

// AggregationPartialFailure marks one section that could not be computed.
// The rest of the snapshot is still published.
type AggregationPartialFailure struct {
	Section string
	Err     error
}

func (e *AggregationPartialFailure) Error() string {
	return fmt.Sprintf("metrics section %s: %v", e.Section, e.Err)
}

func (e *AggregationPartialFailure) Unwrap() error { return e.Err }

// HealthCheck probes one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// ServiceHealth is the outcome of one HealthCheck.
type ServiceHealth struct {
	Service     string               `json:"service"`
	Status      events.SectionStatus `json:"status"`
	Latency     string               `json:"latency"`
	LastChecked time.Time            `json:"lastChecked"`
	Error       string               `json:"error,omitempty"`
}

// MetricsAggregator computes snapshots for one org or for the whole
// platform and publishes them as metrics:update.
type MetricsAggregator struct {
	Source       AggregateSource
	Checks       []HealthCheck
	Bus          hub.Publisher
	QueryTimeout time.Duration

	now func() time.Time
	log logrus.FieldLogger

	mu     sync.RWMutex
	latest map[string]events.MetricsSnapshot
}

func NewMetricsAggregator(source AggregateSource, bus hub.Publisher, checks ...HealthCheck) *MetricsAggregator {
	return &MetricsAggregator{
		Source:       source,
		Checks:       checks,
		Bus:          bus,
		QueryTimeout: DefaultQueryTimeout,
		now:          time.Now,
		log:          utils.InfoLogger.WithField("component", "metrics"),
		latest:       make(map[string]events.MetricsSnapshot),
	}
}

// FormatGrowth renders (current-previous)/max(previous,1)*100 with an
// explicit sign, e.g. "+500.0%".
func FormatGrowth(current, previous float64) string {
	growth := (current - previous) / math.Max(previous, 1) * 100
	sign := ""
	if growth >= 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.1f%%", sign, growth)
}

// FormatErrorRate renders errors per hundred requests with two decimals.
// The two counts are windowed independently and not joined per request.
func FormatErrorRate(errorCount, total int64) string {
	rate := 0.0
	if total > 0 {
		rate = float64(errorCount) / float64(total) * 100
	}
	return fmt.Sprintf("%.2f", rate)
}

// Trigger computes a snapshot for scope, retains it and publishes it. A
// user scope is widened to its org. The returned error, if any, joins the
// AggregationPartialFailure of every failed section; the snapshot is valid
// and published regardless.
func (a *MetricsAggregator) Trigger(ctx context.Context, scope events.Scope) (events.MetricsSnapshot, error) {
	if scope.Kind == events.ScopeUser {
		scope = events.Org(scope.OrgID)
	}
	if err := scope.Validate(); err != nil {
		return events.MetricsSnapshot{}, err
	}
	orgID := scope.OrgID
	now := a.now().UTC()

	type result struct {
		name    string
		section events.Section
		err     error
	}
	computations := map[string]func(context.Context) (events.Section, error){
		SectionUsers:         func(ctx context.Context) (events.Section, error) { return a.users(ctx, orgID, now) },
		SectionRevenue:       func(ctx context.Context) (events.Section, error) { return a.revenue(ctx, orgID, now) },
		SectionAPI:           func(ctx context.Context) (events.Section, error) { return a.api(ctx, orgID, now) },
		SectionNotifications: func(ctx context.Context) (events.Section, error) { return a.notifications(ctx, orgID) },
		SectionSystem:        func(ctx context.Context) (events.Section, error) { return a.system(ctx, now) },
	}

	results := make(chan result, len(computations))
	var wg sync.WaitGroup
	for name, compute := range computations {
		wg.Add(1)
		go func(name string, compute func(context.Context) (events.Section, error)) {
			defer wg.Done()
			qctx, cancel := context.WithTimeout(ctx, a.queryTimeout())
			defer cancel()
			section, err := compute(qctx)
			results <- result{name: name, section: section, err: err}
		}(name, compute)
	}
	wg.Wait()
	close(results)

	snap := events.MetricsSnapshot{
		ComputedAt: now,
		Scope:      scope.Key(),
		Status:     events.StatusOperational,
		Sections:   make(map[string]events.Section, len(computations)),
	}
	var failures []error
	for r := range results {
		if r.err != nil {
			failures = append(failures, &AggregationPartialFailure{Section: r.name, Err: r.err})
			r.section.Error = r.err.Error()
			if r.section.Status == "" || r.section.Status == events.StatusOperational {
				r.section.Status = events.StatusDegraded
			}
		}
		if r.section.Status != events.StatusOperational {
			snap.Status = events.StatusDegraded
		}
		snap.Sections[r.name] = r.section
	}

	a.mu.Lock()
	a.latest[snap.Scope] = snap
	a.mu.Unlock()

	if a.Bus != nil {
		env, err := events.New(scope, snap)
		if err != nil {
			utils.ErrorLogger.WithError(err).Error("refusing to publish metrics snapshot")
		} else {
			a.Bus.Publish(env)
		}
	}

	entry := a.log.WithFields(logrus.Fields{"scope": snap.Scope, "status": snap.Status})
	if len(failures) > 0 {
		err := errors.Join(failures...)
		entry.WithError(err).Warn("metrics snapshot partially computed")
		return snap, err
	}
	entry.Debug("metrics snapshot computed")
	return snap, nil
}

// Latest returns the most recent snapshot computed for scope.
func (a *MetricsAggregator) Latest(scope events.Scope) (events.MetricsSnapshot, bool) {
	if scope.Kind == events.ScopeUser {
		scope = events.Org(scope.OrgID)
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	snap, ok := a.latest[scope.Key()]
	return snap, ok
}

func (a *MetricsAggregator) queryTimeout() time.Duration {
	if a.QueryTimeout <= 0 {
		return DefaultQueryTimeout
	}
	return a.QueryTimeout
}

func (a *MetricsAggregator) users(ctx context.Context, orgID string, now time.Time) (events.Section, error) {
	total, err := a.Source.CountMembers(ctx, orgID, time.Time{})
	if err != nil {
		return events.Section{}, err
	}
	previous, err := a.Source.CountMembers(ctx, orgID, now.Add(-userGrowthWindow))
	if err != nil {
		return events.Section{Value: total, Detail: map[string]any{"total": total}}, err
	}
	return events.Section{
		Status: events.StatusOperational,
		Value:  total,
		Detail: map[string]any{
			"total":  total,
			"growth": FormatGrowth(float64(total), float64(previous)),
		},
	}, nil
}

func (a *MetricsAggregator) revenue(ctx context.Context, orgID string, now time.Time) (events.Section, error) {
	day, transactions, err := a.Source.SumPayments(ctx, orgID, now.Add(-24*time.Hour), time.Time{})
	if err != nil {
		return events.Section{}, err
	}
	detail := map[string]any{"day": day, "transactions": transactions}

	periodStart := now.Add(-revenueGrowthWindow)
	current, _, err := a.Source.SumPayments(ctx, orgID, periodStart, time.Time{})
	if err != nil {
		return events.Section{Value: day, Detail: detail}, err
	}
	previous, _, err := a.Source.SumPayments(ctx, orgID, time.Time{}, periodStart)
	if err != nil {
		return events.Section{Value: day, Detail: detail}, err
	}
	detail["growth"] = FormatGrowth(current, previous)
	return events.Section{Status: events.StatusOperational, Value: day, Detail: detail}, nil
}

func (a *MetricsAggregator) api(ctx context.Context, orgID string, now time.Time) (events.Section, error) {
	since := now.Add(-time.Hour)
	requests, err := a.Source.CountAPIUsage(ctx, orgID, since)
	if err != nil {
		return events.Section{}, err
	}
	errorCount, err := a.Source.CountAuditErrors(ctx, orgID, since)
	if err != nil {
		return events.Section{Value: requests, Detail: map[string]any{"requests": requests}}, err
	}
	return events.Section{
		Status: events.StatusOperational,
		Value:  requests,
		Detail: map[string]any{
			"requests":  requests,
			"errorRate": FormatErrorRate(errorCount, requests),
		},
	}, nil
}

func (a *MetricsAggregator) notifications(ctx context.Context, orgID string) (events.Section, error) {
	unread, err := a.Source.CountUnread(ctx, orgID)
	if err != nil {
		return events.Section{}, err
	}
	return events.Section{Status: events.StatusOperational, Value: unread, Detail: map[string]any{"unread": unread}}, nil
}

// system runs every health check. A failing dependency is reported as an
// OUTAGE and degrades only this section.
func (a *MetricsAggregator) system(ctx context.Context, now time.Time) (events.Section, error) {
	services := make([]ServiceHealth, len(a.Checks))
	var wg sync.WaitGroup
	for i, check := range a.Checks {
		wg.Add(1)
		go func(i int, check HealthCheck) {
			defer wg.Done()
			start := time.Now()
			err := check.Check(ctx)
			h := ServiceHealth{
				Service:     check.Name,
				Status:      events.StatusOperational,
				Latency:     fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
				LastChecked: now,
			}
			if err != nil {
				h.Status = events.StatusOutage
				h.Latency = "--"
				h.Error = err.Error()
			}
			services[i] = h
		}(i, check)
	}
	wg.Wait()

	status := events.StatusOperational
	var failed []string
	for _, h := range services {
		if h.Status != events.StatusOperational {
			status = events.StatusDegraded
			failed = append(failed, h.Service)
		}
	}
	section := events.Section{
		Status: status,
		Value:  string(status),
		Detail: map[string]any{"services": services},
	}
	if len(failed) > 0 {
		return section, fmt.Errorf("dependencies down: %v", failed)
	}
	return section, nil
}

// BusCheck reports the bus as healthy while it accepts subscriptions. A
// throwaway Global subscription is registered and removed on every check.
func BusCheck(bus *hub.Bus) HealthCheck {
	return HealthCheck{
		Name: "event_bus",
		Check: func(ctx context.Context) error {
			if bus == nil {
				return errors.New("event bus not configured")
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			connID := "healthcheck-" + uuid.NewString()
			if _, err := bus.Subscribe(connID, events.Global()); err != nil {
				return fmt.Errorf("event bus refused subscription: %w", err)
			}
			bus.Unsubscribe(connID)
			return nil
		},
	}
}
