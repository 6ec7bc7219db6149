package biz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Bulwark/internal/conf"
	"Bulwark/internal/metrics"
	"Bulwark/internal/model"
	pkglog "Bulwark/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/sony/gobreaker"
)

// Breaker defaults applied when the config leaves a field unset.
const (
	defaultFailureThreshold = 5
	defaultCallTimeout      = 30 * time.Second
	defaultResetTimeout     = 60 * time.Second
)

// Error reasons carried on breaker errors.
const (
	reasonCircuitOpen      = "CIRCUIT_OPEN"
	reasonOperationTimeout = "OPERATION_TIMEOUT"
)

// BreakerOperation is a unit of work guarded by a circuit breaker.
type BreakerOperation func(ctx context.Context) (interface{}, error)

// BreakerStateListener receives breaker state transitions.
// Callbacks run synchronously on the transitioning call path and must not
// call back into the breaker that emitted them.
type BreakerStateListener interface {
	OnStateChange(name, from, to string)
}

// newCircuitOpenError builds the rejection returned while a breaker is open.
func newCircuitOpenError(name string) error {
	return errors.New(
		503,
		reasonCircuitOpen,
		fmt.Sprintf("circuit breaker for %s is open: call rejected", name),
	)
}

// newOperationTimeoutError builds the failure returned when the wrapped
// operation does not settle within the call timeout.
func newOperationTimeoutError(name string, timeout time.Duration) error {
	return errors.New(
		504,
		reasonOperationTimeout,
		fmt.Sprintf("operation %s timed out after %s", name, timeout),
	)
}

// IsCircuitOpen reports whether err is a breaker rejection.
func IsCircuitOpen(err error) bool {
	return errors.Reason(err) == reasonCircuitOpen
}

// IsOperationTimeout reports whether err is a breaker call timeout.
func IsOperationTimeout(err error) bool {
	return errors.Reason(err) == reasonOperationTimeout
}

// CircuitBreaker guards one logical operation. State lives in the wrapped
// sony/gobreaker instance; the wrapper adds the call timeout race and the
// consecutive-failure bookkeeping reported by Status.
type CircuitBreaker struct {
	name         string
	threshold    int
	callTimeout  time.Duration
	resetTimeout time.Duration
	gb           *gobreaker.CircuitBreaker

	mu       sync.Mutex
	failures int
	openedAt time.Time
}

// settlement carries the wrapped operation's outcome across the timeout race.
type settlement struct {
	out interface{}
	err error
}

// Execute runs op through the breaker. While open it rejects immediately
// with a circuit-open error and op is never invoked. A call that does not
// settle within the call timeout counts as a failure; if the abandoned
// operation settles later, that outcome is discarded.
func (b *CircuitBreaker) Execute(ctx context.Context, op BreakerOperation) (interface{}, error) {
	out, err := b.gb.Execute(func() (interface{}, error) {
		return b.run(ctx, op)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			metrics.BreakerRejection(b.name)
			return nil, newCircuitOpenError(b.name)
		}
		b.recordFailure()
		return nil, err
	}

	b.recordSuccess()
	return out, nil
}

// run races op against the call timeout. The op receives a context that is
// canceled once the race is decided, so an abandoned operation can stop
// early; a late settlement lands in a buffered channel nobody reads.
func (b *CircuitBreaker) run(ctx context.Context, op BreakerOperation) (interface{}, error) {
	if b.callTimeout <= 0 {
		return op(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	settle := make(chan settlement, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				settle <- settlement{err: fmt.Errorf("operation %s panicked: %v", b.name, r)}
			}
		}()
		out, err := op(callCtx)
		settle <- settlement{out: out, err: err}
	}()

	select {
	case s := <-settle:
		if s.err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			// The timer decided the race even though the canceled
			// operation settled first in the select.
			return nil, newOperationTimeoutError(b.name, b.callTimeout)
		}
		return s.out, s.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			// Parent canceled, not our timer
			return nil, err
		}
		return nil, newOperationTimeoutError(b.name, b.callTimeout)
	}
}

// State returns the breaker state. Reading the state applies the pending
// open to half-open transition once the reset timeout has elapsed.
func (b *CircuitBreaker) State() string {
	return breakerStateString(b.gb.State())
}

// IsOpen reports whether calls are currently rejected.
func (b *CircuitBreaker) IsOpen() bool {
	return b.gb.State() == gobreaker.StateOpen
}

// Status returns a read-only snapshot for recovery status reporting.
func (b *CircuitBreaker) Status() model.BreakerStatus {
	state := b.State()

	b.mu.Lock()
	defer b.mu.Unlock()

	status := model.BreakerStatus{
		State:               state,
		ConsecutiveFailures: b.failures,
		Threshold:           b.threshold,
	}
	if state == model.BreakerStateOpen && !b.openedAt.IsZero() {
		if remaining := time.Until(b.openedAt.Add(b.resetTimeout)); remaining > 0 {
			status.TimeUntilReset = remaining
		}
	}
	return status
}

func (b *CircuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
}

func (b *CircuitBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

// applyTransition updates the wrapper bookkeeping for a state change.
func (b *CircuitBreaker) applyTransition(to string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch to {
	case model.BreakerStateOpen:
		b.openedAt = time.Now()
	case model.BreakerStateClosed:
		b.failures = 0
		b.openedAt = time.Time{}
	}
}

// BreakerManager owns every circuit breaker in the process, keyed by the
// operation name they guard. Breakers are created lazily with the
// configured defaults.
type BreakerManager struct {
	threshold    int
	callTimeout  time.Duration
	resetTimeout time.Duration
	logger       *pkglog.LogHelper

	mu        sync.RWMutex
	breakers  map[string]*CircuitBreaker
	listeners []BreakerStateListener
}

// NewBreakerManager creates the manager with defaults from config.
func NewBreakerManager(c *conf.Breaker, logger log.Logger) *BreakerManager {
	threshold := defaultFailureThreshold
	callTimeout := defaultCallTimeout
	resetTimeout := defaultResetTimeout

	if c != nil {
		if c.FailureThreshold > 0 {
			threshold = int(c.FailureThreshold)
		}
		if c.CallTimeout != nil {
			callTimeout = c.CallTimeout.AsDuration()
		}
		if c.ResetTimeout != nil {
			resetTimeout = c.ResetTimeout.AsDuration()
		}
	}

	return &BreakerManager{
		threshold:    threshold,
		callTimeout:  callTimeout,
		resetTimeout: resetTimeout,
		logger:       pkglog.NewLogHelper(logger),
		breakers:     make(map[string]*CircuitBreaker),
	}
}

// GetOrCreate returns the breaker guarding name, creating it on first use.
func (m *BreakerManager) GetOrCreate(name string) *CircuitBreaker {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()
	if exists {
		return breaker
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if breaker, exists = m.breakers[name]; exists {
		return breaker
	}

	breaker = m.newBreakerLocked(name)
	m.breakers[name] = breaker

	m.logger.Breaker("Circuit breaker created",
		"name", name,
		"threshold", m.threshold,
		"call_timeout", m.callTimeout.String(),
		"reset_timeout", m.resetTimeout.String())

	return breaker
}

// newBreakerLocked builds a wrapper plus its gobreaker core. Caller holds m.mu.
func (m *BreakerManager) newBreakerLocked(name string) *CircuitBreaker {
	b := &CircuitBreaker{
		name:         name,
		threshold:    m.threshold,
		callTimeout:  m.callTimeout,
		resetTimeout: m.resetTimeout,
	}

	threshold := uint32(m.threshold) // #nosec G115 -- threshold comes from a positive int32
	b.gb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // one trial call in half-open
		Timeout:     m.resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			m.handleStateChange(name, from, to)
		},
	})

	return b
}

// Execute runs op through the breaker guarding name, creating the breaker
// on first use.
func (m *BreakerManager) Execute(ctx context.Context, name string, op BreakerOperation) (interface{}, error) {
	return m.GetOrCreate(name).Execute(ctx, op)
}

// State returns the state of the named breaker, or closed for a breaker
// that was never created (a fresh breaker starts closed).
func (m *BreakerManager) State(name string) string {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()
	if !exists {
		return model.BreakerStateClosed
	}
	return breaker.State()
}

// Status snapshots every breaker for recovery status reporting.
func (m *BreakerManager) Status() map[string]model.BreakerStatus {
	m.mu.RLock()
	snapshot := make([]*CircuitBreaker, 0, len(m.breakers))
	for _, b := range m.breakers {
		snapshot = append(snapshot, b)
	}
	m.mu.RUnlock()

	statuses := make(map[string]model.BreakerStatus, len(snapshot))
	for _, b := range snapshot {
		statuses[b.name] = b.Status()
	}
	return statuses
}

// Reset forces the named breaker back to closed with zero counters.
// Returns false when no breaker with that name exists.
func (m *BreakerManager) Reset(name string) bool {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()
	if !exists {
		return false
	}

	// Read the state before taking the write lock: the core may be
	// mid-transition and calling into it must not nest inside m.mu.
	prev := breaker.State()

	m.mu.Lock()
	m.breakers[name] = m.newBreakerLocked(name)
	m.mu.Unlock()

	m.logger.Breaker("Circuit breaker reset", "name", name, "previous_state", prev)

	// Recreating the core skips gobreaker's own transition hook
	if prev != model.BreakerStateClosed {
		metrics.BreakerTransition(name, model.BreakerStateClosed)
		m.notifyListeners(name, prev, model.BreakerStateClosed)
	}

	return true
}

// ResetAll force-closes every breaker and returns how many were reset.
func (m *BreakerManager) ResetAll() int {
	m.mu.RLock()
	names := make([]string, 0, len(m.breakers))
	for name := range m.breakers {
		names = append(names, name)
	}
	m.mu.RUnlock()

	count := 0
	for _, name := range names {
		if m.Reset(name) {
			count++
		}
	}

	if count > 0 {
		m.logger.Breaker("All circuit breakers reset", "count", count)
	}
	return count
}

// RegisterStateChangeListener registers a listener for state transitions.
// Listeners run synchronously on the transitioning call path and must not
// call back into the manager or the transitioning breaker.
func (m *BreakerManager) RegisterStateChangeListener(l BreakerStateListener) {
	if l == nil {
		m.logger.Warnw("msg", "ignoring nil breaker state listener")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// handleStateChange runs inside the gobreaker transition and must not call
// back into the core. It updates wrapper bookkeeping, logs, and fans out to
// listeners.
func (m *BreakerManager) handleStateChange(name string, from, to gobreaker.State) {
	fromState := breakerStateString(from)
	toState := breakerStateString(to)
	metrics.BreakerTransition(name, toState)

	m.mu.RLock()
	breaker := m.breakers[name]
	m.mu.RUnlock()
	if breaker != nil {
		breaker.applyTransition(toState)
	}

	switch to {
	case gobreaker.StateOpen:
		m.logger.Breaker("Circuit breaker opened",
			"name", name,
			"from", fromState,
			"threshold", m.threshold,
			"reset_timeout", m.resetTimeout.String())
	case gobreaker.StateHalfOpen:
		m.logger.Breaker("Circuit breaker half-open, probing",
			"name", name,
			"from", fromState)
	case gobreaker.StateClosed:
		m.logger.Breaker("Circuit breaker closed",
			"name", name,
			"from", fromState)
	}

	m.notifyListeners(name, fromState, toState)
}

// notifyListeners fans a transition out to every registered listener.
func (m *BreakerManager) notifyListeners(name, from, to string) {
	m.mu.RLock()
	listeners := make([]BreakerStateListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, l := range listeners {
		l.OnStateChange(name, from, to)
	}
}

// breakerStateString maps gobreaker states onto the reported state names.
func breakerStateString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return model.BreakerStateOpen
	case gobreaker.StateHalfOpen:
		return model.BreakerStateHalfOpen
	default:
		return model.BreakerStateClosed
	}
}
