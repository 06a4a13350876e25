// Package orchestrator watches the store for new averaged data points and
// drives the advisory service: after a quiet period it runs one analysis
// cycle fanning out health and alert requests, and it serves the on-demand
// insight and power-recommendation operations.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/batteryview/batteryview/pkg/advisor"
	"github.com/batteryview/batteryview/pkg/gemini"
	"github.com/batteryview/batteryview/pkg/log"
	"github.com/batteryview/batteryview/pkg/store"
	"github.com/batteryview/batteryview/pkg/types"

	"github.com/levenlabs/go-lflag"
)

const (
	// thresholds below which a re-run of the deviation alerts is skipped
	socAlertThreshold      = 2.0
	cellDiffAlertThreshold = 0.005

	// insights are only generated from reasonably recent data
	insightFreshness = 12 * time.Hour
)

// ErrNoData is returned by the on-demand operations when the selected battery
// has no data points yet.
var ErrNoData = errors.New("no data points available for the selected battery")

type pointIdentity struct {
	batteryID   string
	bucket      time.Time
	uploadCount int
}

// Orchestrator debounces store updates into advisory cycles.
type Orchestrator struct {
	svc            advisor.Service
	store          *store.Store
	notify         func(types.Notice)
	debounce       time.Duration
	location       string
	coerceNullCell bool

	mu       sync.Mutex
	timer    *time.Timer
	inFlight bool
	pending  bool
	closed   bool
	lastSeen pointIdentity
	prevEval *types.AveragedDataPoint
	wg       sync.WaitGroup
}

// Configured sets up the orchestrator and its flags.
func Configured(svc advisor.Service, st *store.Store) *Orchestrator {
	o := &Orchestrator{svc: svc, store: st}
	debounce := lflag.Duration("analysis-debounce", 1500*time.Millisecond, "Quiet period after the last data point before analysis runs")
	location := lflag.String("location", "Pahoa, HI", "Location used for weather-aware insights and recommendations")
	coerce := lflag.Bool("coerce-null-cell-voltages", false, "Send 0 instead of null for missing cell voltages in health requests")

	lflag.Do(func() {
		o.debounce = *debounce
		o.location = *location
		o.coerceNullCell = *coerce
	})

	return o
}

// New creates an orchestrator with explicit settings, for tests.
func New(svc advisor.Service, st *store.Store, debounce time.Duration, location string) *Orchestrator {
	return &Orchestrator{svc: svc, store: st, debounce: debounce, location: location}
}

// SetNotifier registers the callback used for user-visible notices.
func (o *Orchestrator) SetNotifier(fn func(types.Notice)) {
	o.notify = fn
}

func (o *Orchestrator) notice(n types.Notice) {
	if o.notify != nil {
		o.notify(n)
	}
}

// Watch subscribes to the store. Every change to the selected battery's
// latest averaged point restarts the debounce timer.
func (o *Orchestrator) Watch() {
	o.store.Subscribe(o.onState)
}

func (o *Orchestrator) onState(s store.State) {
	latest, ok := s.LatestDataPoint()
	if !ok {
		return
	}
	id := pointIdentity{
		batteryID:   s.CurrentBatteryID,
		bucket:      latest.Timestamp,
		uploadCount: latest.UploadCount,
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || id == o.lastSeen {
		return
	}
	o.lastSeen = id
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(o.debounce, o.fire)
}

func (o *Orchestrator) fire() {
	o.mu.Lock()
	o.timer = nil
	if o.closed {
		o.mu.Unlock()
		return
	}
	if o.inFlight {
		// a cycle is running; remember to go again when it finishes
		o.pending = true
		o.mu.Unlock()
		return
	}
	o.inFlight = true
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		o.runCycle(context.Background())

		o.mu.Lock()
		o.inFlight = false
		rerun := o.pending && !o.closed
		o.pending = false
		if rerun && o.timer == nil {
			o.timer = time.AfterFunc(o.debounce, o.fire)
		}
		o.mu.Unlock()
	}()
}

// runCycle performs one analysis pass over the latest averaged point.
func (o *Orchestrator) runCycle(ctx context.Context) {
	state := o.store.State()
	latest, ok := state.LatestDataPoint()
	if !ok {
		return
	}
	l := log.Ctx(ctx)

	o.mu.Lock()
	prev := o.prevEval
	o.mu.Unlock()

	needAlerts := prev == nil ||
		math.Abs(latest.SOC-prev.SOC) > socAlertThreshold ||
		math.Abs(derefZero(latest.CellVoltageDifference)-derefZero(prev.CellVoltageDifference)) > cellDiffAlertThreshold

	snap := o.snapshot(latest)

	var (
		wg        sync.WaitGroup
		summary   string
		healthErr error
		alerts    []string
		alertsErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		summary, healthErr = o.svc.HealthSummary(ctx, snap)
	}()
	if needAlerts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alerts, alertsErr = o.svc.DeviationAlerts(ctx, snap)
		}()
	}
	wg.Wait()

	if healthErr == nil {
		o.store.Dispatch(ctx, store.SetHealthSummary{Summary: summary})
	}
	if needAlerts && alertsErr == nil {
		o.store.Dispatch(ctx, store.SetAlerts{Alerts: alerts})
		if len(alerts) > 1 {
			o.summarizeAlerts(ctx, alerts)
		}
	}

	var notified bool
	o.reportCycleError(ctx, healthErr, &notified)
	if needAlerts {
		o.reportCycleError(ctx, alertsErr, &notified)
	}

	cycleFailed := healthErr != nil || (needAlerts && alertsErr != nil)
	if !cycleFailed {
		o.mu.Lock()
		p := latest
		o.prevEval = &p
		o.mu.Unlock()
	}

	l.DebugContext(ctx, "analysis cycle finished",
		slog.String("batteryID", latest.BatteryID),
		slog.Bool("alertsChecked", needAlerts),
		slog.Bool("failed", cycleFailed),
	)
}

// summarizeAlerts condenses multiple alerts in the background. Failures only
// lose the digest, never the alerts themselves.
func (o *Orchestrator) summarizeAlerts(ctx context.Context, alerts []string) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		digest, err := o.svc.AlertSummary(ctx, alerts)
		if err != nil {
			log.Ctx(ctx).DebugContext(ctx, "alert summary failed", slog.Any("error", err))
			return
		}
		o.store.Dispatch(ctx, store.SetAlertDigest{Digest: digest})
	}()
}

// reportCycleError surfaces at most one non-transient failure per cycle.
// Rate limits are expected under load and only logged.
func (o *Orchestrator) reportCycleError(ctx context.Context, err error, notified *bool) {
	if err == nil {
		return
	}
	if gemini.IsRateLimited(err) {
		log.Ctx(ctx).DebugContext(ctx, "analysis rate limited", slog.Any("error", err))
		return
	}
	log.Ctx(ctx).ErrorContext(ctx, "analysis failed", slog.Any("error", err))
	if *notified {
		return
	}
	*notified = true
	o.notice(types.Notice{
		Severity:    types.SeverityError,
		Title:       "Analysis Failed",
		Description: err.Error(),
	})
}

func (o *Orchestrator) snapshot(p types.AveragedDataPoint) advisor.Snapshot {
	snap := advisor.Snapshot{
		BatteryID:          p.BatteryID,
		SOC:                p.SOC,
		Voltage:            p.Voltage,
		Current:            p.Current,
		MaxCellVoltage:     p.MaxCellVoltage,
		MinCellVoltage:     p.MinCellVoltage,
		AverageCellVoltage: p.AvgCellVoltage,
		CycleCount:         p.CycleCount,
	}
	if o.coerceNullCell {
		zero := 0.0
		if snap.MaxCellVoltage == nil {
			snap.MaxCellVoltage = &zero
		}
		if snap.MinCellVoltage == nil {
			snap.MinCellVoltage = &zero
		}
		if snap.AverageCellVoltage == nil {
			snap.AverageCellVoltage = &zero
		}
	}
	return snap
}

// GenerateInsights runs the full on-demand analysis: health, alerts, and,
// when the latest data is fresh enough, forward-looking insights.
func (o *Orchestrator) GenerateInsights(ctx context.Context) error {
	state := o.store.State()
	latest, ok := state.LatestDataPoint()
	if !ok {
		return ErrNoData
	}

	o.store.Dispatch(ctx, store.StartLoading{})
	defer o.store.Dispatch(ctx, store.StopLoading{})

	snap := o.snapshot(latest)
	fresh := time.Since(latest.Timestamp) <= insightFreshness

	var (
		wg          sync.WaitGroup
		summary     string
		healthErr   error
		alerts      []string
		alertsErr   error
		insights    []types.Insight
		insightsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		summary, healthErr = o.svc.HealthSummary(ctx, snap)
	}()
	go func() {
		defer wg.Done()
		alerts, alertsErr = o.svc.DeviationAlerts(ctx, snap)
	}()
	if fresh {
		wg.Add(1)
		go func() {
			defer wg.Done()
			insights, insightsErr = o.svc.Insights(ctx, advisor.InsightsRequest{
				SOC:      latest.SOC,
				Power:    latest.Power,
				Location: o.location,
			})
		}()
	}
	wg.Wait()

	if healthErr == nil {
		o.store.Dispatch(ctx, store.SetHealthSummary{Summary: summary})
	}
	if alertsErr == nil {
		o.store.Dispatch(ctx, store.SetAlerts{Alerts: alerts})
		if len(alerts) > 1 {
			o.summarizeAlerts(ctx, alerts)
		}
	}
	if fresh && insightsErr == nil {
		o.store.Dispatch(ctx, store.SetInsights{Insights: insights})
	}
	if !fresh {
		log.Ctx(ctx).InfoContext(ctx, "skipping insights, data too old",
			slog.Time("latest", latest.Timestamp))
	}

	for _, err := range []error{healthErr, alertsErr, insightsErr} {
		if err != nil && !gemini.IsRateLimited(err) {
			return fmt.Errorf("analysis incomplete: %w", err)
		}
	}
	return nil
}

// RecommendPower returns a usage recommendation for the latest conditions.
func (o *Orchestrator) RecommendPower(ctx context.Context) (string, error) {
	state := o.store.State()
	latest, ok := state.LatestDataPoint()
	if !ok {
		return "", ErrNoData
	}
	return o.svc.PowerRecommendation(ctx, advisor.RecommendationRequest{
		SOC:      latest.SOC,
		Power:    latest.Power,
		Location: o.location,
	})
}

// Flush cancels any pending debounce timer and synchronously runs one
// analysis cycle over the current state, so callers shutting down right
// after an upload still get the batch's health summary and alerts.
func (o *Orchestrator) Flush(ctx context.Context) {
	for {
		o.mu.Lock()
		if o.timer != nil {
			o.timer.Stop()
			o.timer = nil
		}
		if o.closed {
			o.mu.Unlock()
			return
		}
		if !o.inFlight {
			o.inFlight = true
			o.mu.Unlock()
			break
		}
		o.mu.Unlock()
		// let the running cycle finish, then take the guard ourselves
		o.wg.Wait()
	}

	o.runCycle(ctx)

	o.mu.Lock()
	o.inFlight = false
	o.pending = false
	o.mu.Unlock()
}

// Close stops the debounce timer and waits for in-flight work.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.mu.Unlock()
	o.wg.Wait()
}

func derefZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
