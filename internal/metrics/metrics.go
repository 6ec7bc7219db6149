package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeExecuted labels recovery actions that completed.
	OutcomeExecuted = "executed"
	// OutcomeFailed labels recovery actions that were skipped after failing.
	OutcomeFailed = "failed"
)

var (
	errorsRecordedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulwark",
			Name:      "errors_recorded_total",
			Help:      "Errors recorded by the recovery orchestrator, partitioned by category and severity.",
		},
		[]string{"category", "severity"},
	)

	recoveryActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulwark",
			Name:      "recovery_actions_total",
			Help:      "Recovery actions issued, partitioned by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	recoveryModeActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bulwark",
			Name:      "recovery_mode_active",
			Help:      "1 while the process is in recovery mode, else 0.",
		},
	)

	breakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulwark",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions, partitioned by breaker and target state.",
		},
		[]string{"name", "to"},
	)

	breakerRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulwark",
			Name:      "breaker_rejections_total",
			Help:      "Calls rejected by an open circuit breaker.",
		},
		[]string{"name"},
	)

	auditEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulwark",
			Name:      "audit_entries_total",
			Help:      "Audit trail entries recorded, partitioned by category.",
		},
		[]string{"category"},
	)

	auditVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulwark",
			Name:      "audit_verifications_total",
			Help:      "Audit chain verification passes, partitioned by result.",
		},
		[]string{"result"},
	)

	alertTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulwark",
			Name:      "alert_transitions_total",
			Help:      "Monitor alert edge transitions, partitioned by direction.",
		},
		[]string{"state"},
	)

	operationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bulwark",
			Name:      "operation_duration_seconds",
			Help:      "Latency of guarded operations in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Register attaches every collector to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		errorsRecordedTotal,
		recoveryActionsTotal,
		recoveryModeActive,
		breakerTransitionsTotal,
		breakerRejectionsTotal,
		auditEntriesTotal,
		auditVerificationsTotal,
		alertTransitionsTotal,
		operationDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ErrorRecorded counts one classified error.
func ErrorRecorded(category, severity string) {
	errorsRecordedTotal.WithLabelValues(category, severity).Inc()
}

// RecoveryAction counts one issued recovery action.
func RecoveryAction(kind, outcome string) {
	recoveryActionsTotal.WithLabelValues(kind, outcome).Inc()
}

// SetRecoveryMode publishes the recovery-mode flag.
func SetRecoveryMode(active bool) {
	if active {
		recoveryModeActive.Set(1)
		return
	}
	recoveryModeActive.Set(0)
}

// BreakerTransition counts one circuit breaker state change.
func BreakerTransition(name, to string) {
	breakerTransitionsTotal.WithLabelValues(name, to).Inc()
}

// BreakerRejection counts one call rejected by an open breaker.
func BreakerRejection(name string) {
	breakerRejectionsTotal.WithLabelValues(name).Inc()
}

// AuditEntryRecorded counts one appended audit entry.
func AuditEntryRecorded(category string) {
	auditEntriesTotal.WithLabelValues(category).Inc()
}

// AuditVerification counts one chain verification pass.
func AuditVerification(valid bool) {
	result := "valid"
	if !valid {
		result = "invalid"
	}
	auditVerificationsTotal.WithLabelValues(result).Inc()
}

// AlertTriggered counts one alert firing edge.
func AlertTriggered() {
	alertTransitionsTotal.WithLabelValues("triggered").Inc()
}

// AlertResolved counts one alert clearing edge.
func AlertResolved() {
	alertTransitionsTotal.WithLabelValues("resolved").Inc()
}

// ObserveOperation records the latency of one guarded operation.
func ObserveOperation(operation string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	operationDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}
