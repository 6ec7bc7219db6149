package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))

	// Re-registering the same collectors is tolerated
	require.NoError(t, Register(reg))
}

func TestErrorRecorded(t *testing.T) {
	counter := errorsRecordedTotal.WithLabelValues("api", "high")
	before := testutil.ToFloat64(counter)

	ErrorRecorded("api", "high")
	ErrorRecorded("api", "high")

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestRecoveryAction(t *testing.T) {
	executed := recoveryActionsTotal.WithLabelValues("retry", OutcomeExecuted)
	failed := recoveryActionsTotal.WithLabelValues("retry", OutcomeFailed)
	beforeExecuted := testutil.ToFloat64(executed)
	beforeFailed := testutil.ToFloat64(failed)

	RecoveryAction("retry", OutcomeExecuted)
	RecoveryAction("retry", OutcomeFailed)

	assert.Equal(t, beforeExecuted+1, testutil.ToFloat64(executed))
	assert.Equal(t, beforeFailed+1, testutil.ToFloat64(failed))
}

func TestSetRecoveryMode(t *testing.T) {
	SetRecoveryMode(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(recoveryModeActive))

	SetRecoveryMode(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(recoveryModeActive))
}

func TestBreakerCounters(t *testing.T) {
	transition := breakerTransitionsTotal.WithLabelValues("payments", "open")
	rejection := breakerRejectionsTotal.WithLabelValues("payments")
	beforeTransition := testutil.ToFloat64(transition)
	beforeRejection := testutil.ToFloat64(rejection)

	BreakerTransition("payments", "open")
	BreakerRejection("payments")

	assert.Equal(t, beforeTransition+1, testutil.ToFloat64(transition))
	assert.Equal(t, beforeRejection+1, testutil.ToFloat64(rejection))
}

func TestAuditCounters(t *testing.T) {
	entries := auditEntriesTotal.WithLabelValues("financial")
	valid := auditVerificationsTotal.WithLabelValues("valid")
	invalid := auditVerificationsTotal.WithLabelValues("invalid")
	beforeEntries := testutil.ToFloat64(entries)
	beforeValid := testutil.ToFloat64(valid)
	beforeInvalid := testutil.ToFloat64(invalid)

	AuditEntryRecorded("financial")
	AuditVerification(true)
	AuditVerification(false)

	assert.Equal(t, beforeEntries+1, testutil.ToFloat64(entries))
	assert.Equal(t, beforeValid+1, testutil.ToFloat64(valid))
	assert.Equal(t, beforeInvalid+1, testutil.ToFloat64(invalid))
}

func TestAlertTransitions(t *testing.T) {
	triggered := alertTransitionsTotal.WithLabelValues("triggered")
	resolved := alertTransitionsTotal.WithLabelValues("resolved")
	beforeTriggered := testutil.ToFloat64(triggered)
	beforeResolved := testutil.ToFloat64(resolved)

	AlertTriggered()
	AlertResolved()

	assert.Equal(t, beforeTriggered+1, testutil.ToFloat64(triggered))
	assert.Equal(t, beforeResolved+1, testutil.ToFloat64(resolved))
}

func TestObserveOperation(t *testing.T) {
	before := testutil.CollectAndCount(operationDurationSeconds)

	ObserveOperation("entity_sync", 40*time.Millisecond)
	ObserveOperation("entity_sync", -time.Second) // clamped, never panics

	assert.GreaterOrEqual(t, testutil.CollectAndCount(operationDurationSeconds), before)
}
