package biz

import (
	"fmt"
	"math"
	"sync"
	"time"

	"Bulwark/internal/conf"
	"Bulwark/internal/metrics"
	"Bulwark/internal/model"
	pkglog "Bulwark/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// Monitor defaults applied when the config leaves a field unset.
const (
	defaultMaxPoints = 1000
	defaultRetention = 24 * time.Hour
)

// equalsEpsilon bounds float comparison for the "equals" alert condition.
const equalsEpsilon = 1e-9

// AlertNotifier receives alert edge notifications. Implementations run
// outside the monitor's lock and may block briefly, but they receive
// copies and must not expect to mutate monitor state.
type AlertNotifier interface {
	OnAlertTriggered(alert *model.Alert, value float64)
	OnAlertResolved(alert *model.Alert)
}

// MonitorUseCase is the metrics and alerting monitor: an in-process
// time-series store with bounded points, retention pruning, and
// edge-triggered threshold alerts. Misuse (recording to an unknown metric,
// re-registering a name) degrades to a logged warning, never a failure.
type MonitorUseCase struct {
	logger    *pkglog.LogHelper
	maxPoints int
	retention time.Duration

	mu        sync.Mutex
	metrics   map[string]*model.Metric
	alerts    map[string]*model.Alert
	alertSeq  uint64
	notifiers []AlertNotifier

	now func() time.Time
}

// NewMonitorUseCase creates the monitor with limits from config. A non-nil
// notifier is registered as the first notification consumer.
func NewMonitorUseCase(c *conf.Monitor, notifier AlertNotifier, logger log.Logger) *MonitorUseCase {
	maxPoints := defaultMaxPoints
	retention := defaultRetention

	if c != nil {
		if c.MaxPoints > 0 {
			maxPoints = int(c.MaxPoints)
		}
		if c.Retention != nil {
			retention = c.Retention.AsDuration()
		}
	}

	uc := &MonitorUseCase{
		logger:    pkglog.NewLogHelper(logger),
		maxPoints: maxPoints,
		retention: retention,
		metrics:   make(map[string]*model.Metric),
		alerts:    make(map[string]*model.Alert),
		now:       time.Now,
	}
	if notifier != nil {
		uc.notifiers = append(uc.notifiers, notifier)
	}
	return uc
}

// RegisterNotifier adds an alert notification consumer.
func (uc *MonitorUseCase) RegisterNotifier(n AlertNotifier) {
	if n == nil {
		uc.logger.Warnw("msg", "ignoring nil alert notifier")
		return
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.notifiers = append(uc.notifiers, n)
}

// RegisterMetric registers a named time series. Re-registering an existing
// name is a no-op with a warning, not an error.
func (uc *MonitorUseCase) RegisterMetric(name, kind, unit string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.registerMetricLocked(name, kind, unit)
}

func (uc *MonitorUseCase) registerMetricLocked(name, kind, unit string) {
	if _, exists := uc.metrics[name]; exists {
		uc.logger.Warnw("msg", "metric already registered", "metric", name)
		return
	}

	uc.metrics[name] = &model.Metric{
		Name:   name,
		Kind:   kind,
		Unit:   unit,
		Points: make([]model.MetricPoint, 0, 16),
	}
	uc.logger.Metric("Metric registered", "metric", name, "kind", kind, "unit", unit)
}

// Record appends one observation to a registered metric. Recording to an
// unknown name warns and does nothing.
func (uc *MonitorUseCase) Record(name string, value float64, tags map[string]string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.recordLocked(name, value, tags)
}

func (uc *MonitorUseCase) recordLocked(name string, value float64, tags map[string]string) {
	metric, exists := uc.metrics[name]
	if !exists {
		uc.logger.Warnw("msg", "recording to unregistered metric", "metric", name)
		return
	}

	metric.Points = append(metric.Points, model.MetricPoint{
		Timestamp: uc.now(),
		Value:     value,
		Tags:      tags,
	})
	if len(metric.Points) > uc.maxPoints {
		metric.Points = metric.Points[len(metric.Points)-uc.maxPoints:]
	}
}

// IncrementCounter adds delta to the metric's last recorded value and
// records the sum. A counter with no points yet starts from zero.
func (uc *MonitorUseCase) IncrementCounter(name string, delta float64) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	metric, exists := uc.metrics[name]
	if !exists {
		uc.logger.Warnw("msg", "incrementing unregistered counter", "metric", name)
		return
	}

	last := 0.0
	if point := metric.LastPoint(); point != nil {
		last = point.Value
	}
	uc.recordLocked(name, last+delta, nil)
}

// RecordDuration times one completed unit of work: a histogram point on
// <name>_duration_ms plus an increment of <name>_count. Both derived
// metrics are registered on first use.
func (uc *MonitorUseCase) RecordDuration(name string, elapsed time.Duration) {
	durationMetric := name + "_duration_ms"
	countMetric := name + "_count"

	uc.mu.Lock()
	defer uc.mu.Unlock()

	if _, exists := uc.metrics[durationMetric]; !exists {
		uc.registerMetricLocked(durationMetric, model.MetricKindHistogram, "ms")
	}
	if _, exists := uc.metrics[countMetric]; !exists {
		uc.registerMetricLocked(countMetric, model.MetricKindCounter, "")
	}

	uc.recordLocked(durationMetric, float64(elapsed.Milliseconds()), nil)

	last := 0.0
	if point := uc.metrics[countMetric].LastPoint(); point != nil {
		last = point.Value
	}
	uc.recordLocked(countMetric, last+1, nil)
}

// StartOperation starts timing a unit of work. The returned stop function
// records the duration once, on completion.
func (uc *MonitorUseCase) StartOperation(name string) func() {
	started := uc.now()
	return func() {
		uc.RecordDuration(name, uc.now().Sub(started))
	}
}

// Summary aggregates a metric's points inside the trailing window. Current
// is the latest recorded value regardless of the window. An unknown name
// warns and returns an empty summary.
func (uc *MonitorUseCase) Summary(name string, window time.Duration) *model.MetricSummary {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	summary := &model.MetricSummary{Name: name}

	metric, exists := uc.metrics[name]
	if !exists {
		uc.logger.Warnw("msg", "summarizing unregistered metric", "metric", name)
		return summary
	}
	if point := metric.LastPoint(); point != nil {
		summary.Current = point.Value
	}

	cutoff := uc.now().Add(-window)
	sum := 0.0
	for i := range metric.Points {
		point := &metric.Points[i]
		if point.Timestamp.Before(cutoff) {
			continue
		}
		if summary.Count == 0 || point.Value < summary.Min {
			summary.Min = point.Value
		}
		if summary.Count == 0 || point.Value > summary.Max {
			summary.Max = point.Value
		}
		sum += point.Value
		summary.Count++
	}
	if summary.Count > 0 {
		summary.Avg = sum / float64(summary.Count)
	}
	return summary
}

// RegisterAlert creates an edge-triggered threshold watch over one metric.
// Re-registering an existing alert name warns and returns the existing
// alert unchanged.
func (uc *MonitorUseCase) RegisterAlert(name, metricName, condition string, threshold float64, severity string) *model.Alert {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if existing, ok := uc.alerts[name]; ok {
		uc.logger.Warnw("msg", "alert already registered", "alert", name)
		copied := *existing
		return &copied
	}

	switch condition {
	case model.AlertConditionAbove, model.AlertConditionBelow, model.AlertConditionEquals:
	default:
		uc.logger.Warnw("msg", "alert condition unknown, alert will never fire",
			"alert", name,
			"condition", condition)
	}

	uc.alertSeq++
	alert := &model.Alert{
		ID:         fmt.Sprintf("AL-%d", uc.alertSeq),
		Name:       name,
		MetricName: metricName,
		Condition:  condition,
		Threshold:  threshold,
		Severity:   severity,
	}
	uc.alerts[name] = alert

	uc.logger.Metric("Alert registered",
		"alert", name,
		"metric", metricName,
		"condition", condition,
		"threshold", threshold,
		"severity", severity)

	copied := *alert
	return &copied
}

// alertNotification is one pending edge to deliver after the lock drops.
type alertNotification struct {
	alert     model.Alert
	value     float64
	triggered bool
}

// EvaluateAlerts compares every alert against its metric's latest point
// and flips edge-triggered state. Exactly one notification is emitted per
// transition; a condition holding steady emits nothing. Alerts whose
// metric has no points yet are skipped.
func (uc *MonitorUseCase) EvaluateAlerts() {
	uc.mu.Lock()
	now := uc.now()
	pending := make([]alertNotification, 0)

	for _, alert := range uc.alerts {
		metric, exists := uc.metrics[alert.MetricName]
		if !exists {
			continue
		}
		point := metric.LastPoint()
		if point == nil {
			continue
		}

		breached := evaluateCondition(alert.Condition, point.Value, alert.Threshold)
		switch {
		case breached && !alert.Triggered:
			alert.Triggered = true
			triggeredAt := now
			alert.TriggeredAt = &triggeredAt
			alert.ResolvedAt = nil
			pending = append(pending, alertNotification{alert: *alert, value: point.Value, triggered: true})
		case !breached && alert.Triggered:
			alert.Triggered = false
			resolvedAt := now
			alert.ResolvedAt = &resolvedAt
			pending = append(pending, alertNotification{alert: *alert, triggered: false})
		}
	}

	notifiers := make([]AlertNotifier, len(uc.notifiers))
	copy(notifiers, uc.notifiers)
	uc.mu.Unlock()

	for _, n := range pending {
		if n.triggered {
			metrics.AlertTriggered()
			uc.logger.Alert("Alert triggered",
				"alert", n.alert.Name,
				"metric", n.alert.MetricName,
				"condition", n.alert.Condition,
				"threshold", n.alert.Threshold,
				"value", n.value,
				"severity", n.alert.Severity)
		} else {
			metrics.AlertResolved()
			uc.logger.Success("Alert resolved",
				"alert", n.alert.Name,
				"metric", n.alert.MetricName)
		}

		for _, notifier := range notifiers {
			alertCopy := n.alert
			if n.triggered {
				notifier.OnAlertTriggered(&alertCopy, n.value)
			} else {
				notifier.OnAlertResolved(&alertCopy)
			}
		}
	}
}

// evaluateCondition reports whether value breaches the threshold. Unknown
// conditions never breach.
func evaluateCondition(condition string, value, threshold float64) bool {
	switch condition {
	case model.AlertConditionAbove:
		return value > threshold
	case model.AlertConditionBelow:
		return value < threshold
	case model.AlertConditionEquals:
		return math.Abs(value-threshold) <= equalsEpsilon
	default:
		return false
	}
}

// PruneRetention drops points older than the retention window across all
// metrics and returns how many were removed.
func (uc *MonitorUseCase) PruneRetention() int {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	cutoff := uc.now().Add(-uc.retention)
	pruned := 0
	for _, metric := range uc.metrics {
		kept := metric.Points[:0]
		for i := range metric.Points {
			if metric.Points[i].Timestamp.Before(cutoff) {
				pruned++
				continue
			}
			kept = append(kept, metric.Points[i])
		}
		metric.Points = kept
	}

	if pruned > 0 {
		uc.logger.Metric("Retention prune completed", "points_dropped", pruned)
	}
	return pruned
}

// Alerts snapshots every registered alert.
func (uc *MonitorUseCase) Alerts() []model.Alert {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	out := make([]model.Alert, 0, len(uc.alerts))
	for _, alert := range uc.alerts {
		out = append(out, *alert)
	}
	return out
}

// MetricNames lists every registered metric name.
func (uc *MonitorUseCase) MetricNames() []string {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	names := make([]string, 0, len(uc.metrics))
	for name := range uc.metrics {
		names = append(names, name)
	}
	return names
}
