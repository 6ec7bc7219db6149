package biz

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"Bulwark/internal/conf"
	"Bulwark/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"google.golang.org/protobuf/types/known/durationpb"
)

// recordingBreakerListener captures state transitions for assertions.
type recordingBreakerListener struct {
	mu          sync.Mutex
	transitions []breakerTransition
}

type breakerTransition struct {
	Name string
	From string
	To   string
}

func (l *recordingBreakerListener) OnStateChange(name, from, to string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitions = append(l.transitions, breakerTransition{Name: name, From: from, To: to})
}

func (l *recordingBreakerListener) snapshot() []breakerTransition {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]breakerTransition, len(l.transitions))
	copy(out, l.transitions)
	return out
}

// Helper function to create a test BreakerManager.
// A zero callTimeout disables the call timeout race.
func newTestBreakerManager(threshold int32, callTimeout, resetTimeout time.Duration) *BreakerManager {
	logger := log.NewStdLogger(os.Stdout)
	return NewBreakerManager(&conf.Breaker{
		FailureThreshold: threshold,
		CallTimeout:      durationpb.New(callTimeout),
		ResetTimeout:     durationpb.New(resetTimeout),
	}, logger)
}

func failingOp(msg string) BreakerOperation {
	return func(ctx context.Context) (interface{}, error) {
		return nil, errors.New(msg)
	}
}

func succeedingOp(result interface{}) BreakerOperation {
	return func(ctx context.Context) (interface{}, error) {
		return result, nil
	}
}

// Test NewBreakerManager - nil config falls back to defaults
func TestNewBreakerManager_Defaults(t *testing.T) {
	m := NewBreakerManager(nil, log.NewStdLogger(os.Stdout))

	b := m.GetOrCreate("db-query")
	status := b.Status()
	assert.Equal(t, model.BreakerStateClosed, status.State)
	assert.Equal(t, 5, status.Threshold)
	assert.Equal(t, 0, status.ConsecutiveFailures)
	assert.Zero(t, status.TimeUntilReset)

	assert.Equal(t, 30*time.Second, b.callTimeout)
	assert.Equal(t, 60*time.Second, b.resetTimeout)
}

// Test NewBreakerManager - config overrides defaults
func TestNewBreakerManager_ConfigOverrides(t *testing.T) {
	m := newTestBreakerManager(3, 10*time.Second, 20*time.Second)

	b := m.GetOrCreate("api-call")
	assert.Equal(t, 3, b.threshold)
	assert.Equal(t, 10*time.Second, b.callTimeout)
	assert.Equal(t, 20*time.Second, b.resetTimeout)
}

// Test Execute - consecutive failures at the threshold open the breaker
func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	m := newTestBreakerManager(3, 0, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := m.Execute(ctx, "payments", failingOp("backend unavailable"))
		assert.Error(t, err)
		assert.False(t, IsCircuitOpen(err))
	}
	assert.Equal(t, model.BreakerStateOpen, m.State("payments"))

	// Open breaker rejects without invoking the operation
	var invoked int32
	out, err := m.Execute(ctx, "payments", func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&invoked, 1)
		return "should not run", nil
	})
	assert.Nil(t, out)
	assert.Error(t, err)
	assert.True(t, IsCircuitOpen(err))
	assert.Contains(t, err.Error(), "CIRCUIT_OPEN")
	assert.Equal(t, int32(0), atomic.LoadInt32(&invoked))

	status := m.GetOrCreate("payments").Status()
	assert.Equal(t, model.BreakerStateOpen, status.State)
	assert.Equal(t, 3, status.ConsecutiveFailures)
	assert.Equal(t, 3, status.Threshold)
	assert.Greater(t, status.TimeUntilReset, time.Duration(0))
	assert.LessOrEqual(t, status.TimeUntilReset, time.Minute)
}

// Test Execute - a success resets the consecutive failure count
func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	m := newTestBreakerManager(3, 0, time.Minute)
	ctx := context.Background()

	_, _ = m.Execute(ctx, "search", failingOp("timeout"))
	_, _ = m.Execute(ctx, "search", failingOp("timeout"))
	assert.Equal(t, 2, m.GetOrCreate("search").Status().ConsecutiveFailures)
	assert.Equal(t, model.BreakerStateClosed, m.State("search"))

	out, err := m.Execute(ctx, "search", succeedingOp("ok"))
	assert.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 0, m.GetOrCreate("search").Status().ConsecutiveFailures)

	// Two more failures still stay below the threshold
	_, _ = m.Execute(ctx, "search", failingOp("timeout"))
	_, _ = m.Execute(ctx, "search", failingOp("timeout"))
	assert.Equal(t, model.BreakerStateClosed, m.State("search"))
}

// Test Execute - rejected calls do not move the failure count
func TestCircuitBreaker_RejectionsDoNotCount(t *testing.T) {
	m := newTestBreakerManager(2, 0, time.Minute)
	ctx := context.Background()

	_, _ = m.Execute(ctx, "inventory", failingOp("down"))
	_, _ = m.Execute(ctx, "inventory", failingOp("down"))
	assert.Equal(t, model.BreakerStateOpen, m.State("inventory"))

	for i := 0; i < 3; i++ {
		_, err := m.Execute(ctx, "inventory", succeedingOp("unreachable"))
		assert.True(t, IsCircuitOpen(err))
	}
	assert.Equal(t, 2, m.GetOrCreate("inventory").Status().ConsecutiveFailures)
}

// Test half-open - the reset timeout admits one trial and a success closes
func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	m := newTestBreakerManager(1, 0, 100*time.Millisecond)
	ctx := context.Background()

	_, err := m.Execute(ctx, "reports", failingOp("boom"))
	assert.Error(t, err)
	assert.Equal(t, model.BreakerStateOpen, m.State("reports"))

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, model.BreakerStateHalfOpen, m.State("reports"))

	out, err := m.Execute(ctx, "reports", succeedingOp(42))
	assert.NoError(t, err)
	assert.Equal(t, 42, out)

	status := m.GetOrCreate("reports").Status()
	assert.Equal(t, model.BreakerStateClosed, status.State)
	assert.Equal(t, 0, status.ConsecutiveFailures)
	assert.Zero(t, status.TimeUntilReset)
}

// Test half-open - a failed trial reopens for a fresh reset timeout
func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	m := newTestBreakerManager(1, 0, 100*time.Millisecond)
	ctx := context.Background()

	_, _ = m.Execute(ctx, "billing", failingOp("boom"))
	assert.Equal(t, model.BreakerStateOpen, m.State("billing"))

	time.Sleep(250 * time.Millisecond)
	_, err := m.Execute(ctx, "billing", failingOp("still failing"))
	assert.Error(t, err)
	assert.False(t, IsCircuitOpen(err))
	assert.Equal(t, model.BreakerStateOpen, m.State("billing"))
	assert.Greater(t, m.GetOrCreate("billing").Status().TimeUntilReset, time.Duration(0))

	// The next window closes it on a successful trial
	time.Sleep(250 * time.Millisecond)
	_, err = m.Execute(ctx, "billing", succeedingOp("recovered"))
	assert.NoError(t, err)
	assert.Equal(t, model.BreakerStateClosed, m.State("billing"))
}

// Test call timeout - a hung operation fails fast and counts as a failure
func TestCircuitBreaker_CallTimeout(t *testing.T) {
	m := newTestBreakerManager(3, 50*time.Millisecond, time.Minute)
	ctx := context.Background()

	started := time.Now()
	out, err := m.Execute(ctx, "slow-api", func(ctx context.Context) (interface{}, error) {
		time.Sleep(300 * time.Millisecond) // ignores cancellation
		return "late success", nil
	})
	elapsed := time.Since(started)

	assert.Nil(t, out)
	assert.Error(t, err)
	assert.True(t, IsOperationTimeout(err))
	assert.Contains(t, err.Error(), "OPERATION_TIMEOUT")
	assert.Less(t, elapsed, 250*time.Millisecond)
	assert.Equal(t, 1, m.GetOrCreate("slow-api").Status().ConsecutiveFailures)

	// The late settlement is discarded: the failure count does not change
	// once the abandoned operation finally returns.
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 1, m.GetOrCreate("slow-api").Status().ConsecutiveFailures)
	assert.Equal(t, model.BreakerStateClosed, m.State("slow-api"))

	out, err = m.Execute(ctx, "slow-api", succeedingOp("fast"))
	assert.NoError(t, err)
	assert.Equal(t, "fast", out)
	assert.Equal(t, 0, m.GetOrCreate("slow-api").Status().ConsecutiveFailures)
}

// Test call timeout - an operation honoring cancellation still reports the timeout
func TestCircuitBreaker_CallTimeoutCancelAware(t *testing.T) {
	m := newTestBreakerManager(3, 50*time.Millisecond, time.Minute)

	_, err := m.Execute(context.Background(), "coop-api", func(ctx context.Context) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	assert.Error(t, err)
	assert.True(t, IsOperationTimeout(err))
}

// Test parent cancellation - surfaced as the context error, not a timeout
func TestCircuitBreaker_ParentContextCancellation(t *testing.T) {
	m := newTestBreakerManager(3, time.Minute, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := m.Execute(ctx, "upstream", func(ctx context.Context) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsOperationTimeout(err))
}

// Test panic recovery - a panicking operation settles as a failure
func TestCircuitBreaker_PanicBecomesFailure(t *testing.T) {
	m := newTestBreakerManager(3, 50*time.Millisecond, time.Minute)

	_, err := m.Execute(context.Background(), "flaky", func(ctx context.Context) (interface{}, error) {
		panic("nil map write")
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, 1, m.GetOrCreate("flaky").Status().ConsecutiveFailures)
}

// Test Reset - force-closes a tripped breaker
func TestBreakerManager_Reset(t *testing.T) {
	m := newTestBreakerManager(1, 0, time.Minute)
	ctx := context.Background()

	_, _ = m.Execute(ctx, "ledger", failingOp("boom"))
	assert.Equal(t, model.BreakerStateOpen, m.State("ledger"))

	assert.True(t, m.Reset("ledger"))
	status := m.GetOrCreate("ledger").Status()
	assert.Equal(t, model.BreakerStateClosed, status.State)
	assert.Equal(t, 0, status.ConsecutiveFailures)
	assert.Zero(t, status.TimeUntilReset)

	// Calls flow again without waiting out the reset timeout
	out, err := m.Execute(ctx, "ledger", succeedingOp("back"))
	assert.NoError(t, err)
	assert.Equal(t, "back", out)

	assert.False(t, m.Reset("never-created"))
}

// Test ResetAll - closes every breaker and reports the count
func TestBreakerManager_ResetAll(t *testing.T) {
	m := newTestBreakerManager(1, 0, time.Minute)
	ctx := context.Background()

	_, _ = m.Execute(ctx, "a", failingOp("boom"))
	_, _ = m.Execute(ctx, "b", failingOp("boom"))
	_, _ = m.Execute(ctx, "c", succeedingOp("fine"))
	assert.Equal(t, model.BreakerStateOpen, m.State("a"))
	assert.Equal(t, model.BreakerStateOpen, m.State("b"))

	assert.Equal(t, 3, m.ResetAll())
	for _, name := range []string{"a", "b", "c"} {
		assert.Equal(t, model.BreakerStateClosed, m.State(name))
	}

	assert.Equal(t, 0, NewBreakerManager(nil, log.NewStdLogger(os.Stdout)).ResetAll())
}

// Test State - an unknown name reads as closed without creating a breaker
func TestBreakerManager_StateUnknownName(t *testing.T) {
	m := newTestBreakerManager(1, 0, time.Minute)

	assert.Equal(t, model.BreakerStateClosed, m.State("ghost"))
	assert.Empty(t, m.Status())
}

// Test Status - snapshots every breaker
func TestBreakerManager_StatusSnapshot(t *testing.T) {
	m := newTestBreakerManager(1, 0, time.Minute)
	ctx := context.Background()

	_, _ = m.Execute(ctx, "healthy", succeedingOp("ok"))
	_, _ = m.Execute(ctx, "broken", failingOp("boom"))

	statuses := m.Status()
	assert.Len(t, statuses, 2)
	assert.Equal(t, model.BreakerStateClosed, statuses["healthy"].State)
	assert.Equal(t, 0, statuses["healthy"].ConsecutiveFailures)
	assert.Equal(t, model.BreakerStateOpen, statuses["broken"].State)
	assert.Equal(t, 1, statuses["broken"].ConsecutiveFailures)
	assert.Greater(t, statuses["broken"].TimeUntilReset, time.Duration(0))
}

// Test listeners - notified for every transition including manual resets
func TestBreakerManager_StateChangeListener(t *testing.T) {
	m := newTestBreakerManager(1, 0, 100*time.Millisecond)
	listener := &recordingBreakerListener{}
	m.RegisterStateChangeListener(listener)
	m.RegisterStateChangeListener(nil) // ignored
	ctx := context.Background()

	_, _ = m.Execute(ctx, "orders", failingOp("boom"))
	time.Sleep(250 * time.Millisecond)
	_, _ = m.Execute(ctx, "orders", succeedingOp("ok"))

	transitions := listener.snapshot()
	assert.Equal(t, []breakerTransition{
		{Name: "orders", From: model.BreakerStateClosed, To: model.BreakerStateOpen},
		{Name: "orders", From: model.BreakerStateOpen, To: model.BreakerStateHalfOpen},
		{Name: "orders", From: model.BreakerStateHalfOpen, To: model.BreakerStateClosed},
	}, transitions)

	// A manual reset of a tripped breaker also notifies
	_, _ = m.Execute(ctx, "orders", failingOp("boom"))
	m.Reset("orders")

	transitions = listener.snapshot()
	assert.Len(t, transitions, 5)
	assert.Equal(t, breakerTransition{
		Name: "orders", From: model.BreakerStateOpen, To: model.BreakerStateClosed,
	}, transitions[4])
}

// Test GetOrCreate - one breaker instance per name
func TestBreakerManager_GetOrCreate(t *testing.T) {
	m := newTestBreakerManager(5, 0, time.Minute)

	first := m.GetOrCreate("db")
	second := m.GetOrCreate("db")
	other := m.GetOrCreate("api")

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
}

// Test concurrent use - parallel calls against shared breakers stay consistent
func TestBreakerManager_ConcurrentExecute(t *testing.T) {
	// Threshold above the total failure count so no schedule can trip it
	m := newTestBreakerManager(1000, 0, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	var successes int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if n%2 == 0 {
					if _, err := m.Execute(ctx, "shared", succeedingOp("ok")); err == nil {
						atomic.AddInt32(&successes, 1)
					}
				} else {
					_, _ = m.Execute(ctx, "shared", failingOp("boom"))
				}
				_ = m.State("shared")
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(100), atomic.LoadInt32(&successes))
	assert.Equal(t, model.BreakerStateClosed, m.State("shared"))
	assert.Len(t, m.Status(), 1)
}
