package model

import (
	"fmt"
	"time"
)

// Recovery action kinds
const (
	ActionKindRetry        = "retry"
	ActionKindFallback     = "fallback"
	ActionKindConservative = "conservative"
	ActionKindReset        = "reset"
	ActionKindAbort        = "abort"
)

// RecoveryAction is the closed set of actions the orchestrator can issue.
// Each variant carries only the fields its kind needs; consumers decode with
// an exhaustive type switch, never by probing an open parameter map.
type RecoveryAction interface {
	Kind() string
	Describe() string
	isRecoveryAction()
}

// RetryAction asks the host to retry the failed operation.
type RetryAction struct {
	MaxAttempts int
	Delay       time.Duration
}

func (RetryAction) Kind() string      { return ActionKindRetry }
func (RetryAction) isRecoveryAction() {}
func (a RetryAction) Describe() string {
	return fmt.Sprintf("retry up to %d times with %s delay", a.MaxAttempts, a.Delay)
}

// FallbackAction switches the affected subsystem to a degraded mode.
type FallbackAction struct {
	Mode string
}

func (FallbackAction) Kind() string      { return ActionKindFallback }
func (FallbackAction) isRecoveryAction() {}
func (a FallbackAction) Describe() string {
	return fmt.Sprintf("fall back to %s mode", a.Mode)
}

// ConservativeAction cuts spend: entities below MinPerformanceRatio are
// deactivated and remaining active budgets are scaled by BudgetScale.
type ConservativeAction struct {
	MinPerformanceRatio float64
	BudgetScale         float64
}

func (ConservativeAction) Kind() string      { return ActionKindConservative }
func (ConservativeAction) isRecoveryAction() {}
func (a ConservativeAction) Describe() string {
	return fmt.Sprintf("deactivate entities below ratio %.2f and scale budgets by %.2f", a.MinPerformanceRatio, a.BudgetScale)
}

// ResetAction clears transient failure state.
type ResetAction struct {
	ClearBreakers bool
	KeepHistory   bool
}

func (ResetAction) Kind() string      { return ActionKindReset }
func (ResetAction) isRecoveryAction() {}
func (a ResetAction) Describe() string {
	return fmt.Sprintf("reset failure state (breakers=%t, keepHistory=%t)", a.ClearBreakers, a.KeepHistory)
}

// AbortAction requests an emergency stop. The orchestrator records and
// reports it; halting is the host's decision.
type AbortAction struct {
	Reason string
}

func (AbortAction) Kind() string      { return ActionKindAbort }
func (AbortAction) isRecoveryAction() {}
func (a AbortAction) Describe() string {
	return fmt.Sprintf("emergency stop: %s", a.Reason)
}
