package model

import "time"

// Metric kinds
const (
	MetricKindCounter   = "counter"
	MetricKindGauge     = "gauge"
	MetricKindHistogram = "histogram"
	MetricKindRate      = "rate"
)

// Alert conditions
const (
	AlertConditionAbove  = "above"
	AlertConditionBelow  = "below"
	AlertConditionEquals = "equals"
)

// Alert severities
const (
	AlertSeverityInfo     = "info"
	AlertSeverityWarning  = "warning"
	AlertSeverityCritical = "critical"
)

// MetricPoint is one observation of a metric.
type MetricPoint struct {
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Metric is a named time series bounded by max point count and retention.
type Metric struct {
	Name   string        `json:"name"`
	Kind   string        `json:"kind"`
	Unit   string        `json:"unit,omitempty"`
	Points []MetricPoint `json:"points"`
}

// LastPoint returns the most recent point, or nil when empty.
func (m *Metric) LastPoint() *MetricPoint {
	if len(m.Points) == 0 {
		return nil
	}
	return &m.Points[len(m.Points)-1]
}

// MetricSummary aggregates the points of one metric inside a trailing window.
type MetricSummary struct {
	Name    string  `json:"name"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Avg     float64 `json:"avg"`
	Current float64 `json:"current"`
	Count   int     `json:"count"`
}

// Alert is an edge-triggered threshold watch over one metric. Triggered
// flips only on condition transitions; each transition emits exactly one
// notification.
type Alert struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	MetricName  string     `json:"metricName"`
	Condition   string     `json:"condition"`
	Threshold   float64    `json:"threshold"`
	Severity    string     `json:"severity"`
	Triggered   bool       `json:"triggered"`
	TriggeredAt *time.Time `json:"triggeredAt,omitempty"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}
