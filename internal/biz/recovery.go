package biz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Bulwark/internal/conf"
	"Bulwark/internal/data"
	"Bulwark/internal/metrics"
	"Bulwark/internal/model"
	pkglog "Bulwark/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// Orchestrator defaults applied when the config leaves a field unset.
const (
	defaultHistoryCapacity = 200
	defaultRecentWindow    = 5 * time.Minute
	defaultDwellMinimum    = 5 * time.Minute

	// exitRecentErrorFloor: recovery mode lifts only while fewer recent
	// errors than this remain in the window.
	exitRecentErrorFloor = 3
)

// RecoveryUseCase is the error-recovery orchestrator. It records and
// classifies failures, assesses their severity against host health, drives
// the process-wide recovery mode, and issues recovery actions against the
// managed-entity store. It owns every named circuit breaker through the
// BreakerManager and audits state transitions.
type RecoveryUseCase struct {
	policy   *RecoveryPolicy
	store    EntityStore
	breakers *BreakerManager
	audit    *AuditUseCase
	logger   *pkglog.LogHelper

	historyCapacity int
	recentWindow    time.Duration
	dwellMinimum    time.Duration

	mu               sync.Mutex
	history          []model.ErrorEvent
	recoveryMode     bool
	recoverySince    time.Time
	blockLowPriority bool

	now func() time.Time
}

// NewRecoveryUseCase creates the orchestrator and registers it for circuit
// breaker transition auditing.
func NewRecoveryUseCase(c *conf.Recovery, policy *RecoveryPolicy, store EntityStore, breakers *BreakerManager, audit *AuditUseCase, logger log.Logger) *RecoveryUseCase {
	capacity := defaultHistoryCapacity
	window := defaultRecentWindow
	dwell := defaultDwellMinimum

	if c != nil {
		if c.HistoryCapacity > 0 {
			capacity = int(c.HistoryCapacity)
		}
		if c.RecentWindow != nil {
			window = c.RecentWindow.AsDuration()
		}
		if c.DwellMinimum != nil {
			dwell = c.DwellMinimum.AsDuration()
		}
	}

	uc := &RecoveryUseCase{
		policy:          policy,
		store:           store,
		breakers:        breakers,
		audit:           audit,
		logger:          pkglog.NewLogHelper(logger),
		historyCapacity: capacity,
		recentWindow:    window,
		dwellMinimum:    dwell,
		now:             time.Now,
	}

	breakers.RegisterStateChangeListener(uc)
	metrics.SetRecoveryMode(false)
	return uc
}

// RecoverFromError records and classifies one failure, assesses severity,
// conditionally enters recovery mode, and executes the policy's actions.
// It never fails: individual actions that error are logged and skipped, and
// only the actions that executed cleanly are returned. The host reacts to
// what comes back, an abort action in particular.
func (uc *RecoveryUseCase) RecoverFromError(ctx context.Context, cause error, errCtx *model.ErrorContext, host *model.HostState) []model.RecoveryAction {
	message := ""
	if cause != nil {
		message = cause.Error()
	}

	fallback := ""
	operation := ""
	day := 0
	var extra map[string]interface{}
	if errCtx != nil {
		fallback = errCtx.Category
		operation = errCtx.Operation
		day = errCtx.Day
		extra = errCtx.Data
	}
	if day == 0 && host != nil {
		day = host.Day
	}

	category := uc.policy.Classify(message, fallback)

	uc.mu.Lock()
	now := uc.now()
	recentTotal, recentSame := uc.recentCountsLocked(now, category)
	recentTotal++ // include the error being recorded
	recentSame++
	severity := uc.policy.Assess(message, host, recentTotal, recentSame)

	uc.history = append(uc.history, model.ErrorEvent{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Operation: operation,
		Day:       day,
		Timestamp: now,
		Context:   extra,
	})
	if len(uc.history) > uc.historyCapacity {
		uc.history = uc.history[len(uc.history)-uc.historyCapacity:]
	}

	entered := false
	if !uc.recoveryMode && uc.policy.ShouldEnterRecovery(severity, recentTotal) {
		uc.recoveryMode = true
		uc.recoverySince = now
		uc.blockLowPriority = true
		entered = true
	}
	uc.mu.Unlock()

	metrics.ErrorRecorded(category, severity)
	uc.logger.Recovery("Error recorded",
		"category", category,
		"severity", severity,
		"operation", operation,
		"recent_errors", recentTotal,
		"message", message)

	actions := uc.policy.ActionsFor(category, severity, host)
	if entered {
		actions = uc.enterRecoveryMode(ctx, category, severity, recentTotal, actions)
	}

	return uc.executeActions(ctx, actions)
}

// enterRecoveryMode runs the one-time entry bookkeeping and prepends the
// entry side effects to the action list: conservative cuts plus a full
// reset of breakers and the older half of error history. Low-priority
// entity creation is blocked by flag until exit.
func (uc *RecoveryUseCase) enterRecoveryMode(ctx context.Context, category, severity string, recentTotal int, actions []model.RecoveryAction) []model.RecoveryAction {
	metrics.SetRecoveryMode(true)
	uc.logger.Recovery("Recovery mode entered",
		"trigger_category", category,
		"trigger_severity", severity,
		"recent_errors", recentTotal)

	if _, err := uc.audit.RecordSystemEvent(ctx, model.AuditActionRecoveryEntered, "", map[string]interface{}{
		"triggerCategory": category,
		"triggerSeverity": severity,
		"recentErrors":    recentTotal,
	}); err != nil {
		uc.logger.Warnw("msg", "failed to audit recovery mode entry", "error", err)
	}

	entryActions := []model.RecoveryAction{
		model.ConservativeAction{
			MinPerformanceRatio: uc.policy.PerformanceFloor,
			BudgetScale:         uc.policy.BudgetScale,
		},
		model.ResetAction{ClearBreakers: true, KeepHistory: false},
	}
	return dedupeActionsByKind(append(entryActions, actions...))
}

// ExitRecoveryMode lifts recovery mode once the minimum dwell time has
// elapsed and health has held: few recent errors, financial health not
// critical, positive net worth. Returns false, without side effects, when
// any condition fails or recovery mode is not active.
func (uc *RecoveryUseCase) ExitRecoveryMode(ctx context.Context, host *model.HostState) bool {
	uc.mu.Lock()
	if !uc.recoveryMode {
		uc.mu.Unlock()
		return false
	}

	now := uc.now()
	dwelled := now.Sub(uc.recoverySince)
	if dwelled < uc.dwellMinimum {
		uc.mu.Unlock()
		uc.logger.Recovery("Recovery mode exit refused, dwell time not met",
			"dwelled", dwelled.String(),
			"minimum", uc.dwellMinimum.String())
		return false
	}

	recentTotal, _ := uc.recentCountsLocked(now, "")
	if recentTotal >= exitRecentErrorFloor {
		uc.mu.Unlock()
		uc.logger.Recovery("Recovery mode exit refused, errors still accumulating",
			"recent_errors", recentTotal)
		return false
	}
	if host != nil {
		if host.Bankrupt || host.NetWorth <= 0 || host.FinancialHealth == model.HealthTierCritical {
			uc.mu.Unlock()
			uc.logger.Recovery("Recovery mode exit refused, host health not recovered",
				"financial_health", host.FinancialHealth,
				"net_worth", host.NetWorth)
			return false
		}
	}

	uc.recoveryMode = false
	uc.blockLowPriority = false
	uc.recoverySince = time.Time{}
	uc.mu.Unlock()

	uc.breakers.ResetAll()
	metrics.SetRecoveryMode(false)

	if _, err := uc.audit.RecordSystemEvent(ctx, model.AuditActionRecoveryExited, "", map[string]interface{}{
		"dwelled": dwelled.String(),
	}); err != nil {
		uc.logger.Warnw("msg", "failed to audit recovery mode exit", "error", err)
	}

	uc.logger.Success("Recovery mode exited", "dwelled", dwelled.String())
	return true
}

// ExecuteWithCircuitBreaker runs op behind the named circuit breaker,
// creating the breaker on first use.
func (uc *RecoveryUseCase) ExecuteWithCircuitBreaker(ctx context.Context, operationName string, op BreakerOperation) (interface{}, error) {
	started := uc.now()
	out, err := uc.breakers.Execute(ctx, operationName, op)
	elapsed := uc.now().Sub(started)
	metrics.ObserveOperation(operationName, elapsed)

	if err == nil {
		uc.logger.OperationCompleted(ctx, operationName, elapsed.Milliseconds())
	}
	return out, err
}

// GetRecoveryStatus snapshots the orchestrator: recovery mode, error
// counts, every breaker, and the entity store's health tier.
func (uc *RecoveryUseCase) GetRecoveryStatus(ctx context.Context) *model.RecoveryStatus {
	uc.mu.Lock()
	now := uc.now()
	recentTotal, _ := uc.recentCountsLocked(now, "")
	status := &model.RecoveryStatus{
		RecoveryMode:     uc.recoveryMode,
		BlockLowPriority: uc.blockLowPriority,
		ErrorCount:       len(uc.history),
		RecentErrors:     recentTotal,
	}
	if uc.recoveryMode {
		since := uc.recoverySince
		status.RecoveryModeSince = &since
	}
	uc.mu.Unlock()

	status.CircuitBreakers = uc.breakers.Status()

	tier, err := uc.store.HealthTier(ctx)
	if err != nil {
		uc.logger.Debugw("msg", "store health unavailable for status", "error", err)
	} else {
		status.StoreHealth = tier
	}
	return status
}

// GetErrorStats summarizes the error history.
func (uc *RecoveryUseCase) GetErrorStats() *model.ErrorStats {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	stats := &model.ErrorStats{
		Total:      len(uc.history),
		ByCategory: make(map[string]int),
		BySeverity: make(map[string]int),
	}

	now := uc.now()
	for i := range uc.history {
		event := &uc.history[i]
		stats.ByCategory[event.Category]++
		stats.BySeverity[event.Severity]++
		if now.Sub(event.Timestamp) <= uc.recentWindow {
			stats.Recent++
		}
	}
	if len(uc.history) > 0 {
		oldest := uc.history[0].Timestamp
		newest := uc.history[len(uc.history)-1].Timestamp
		stats.Oldest = &oldest
		stats.Newest = &newest
	}
	return stats
}

// ClearErrorHistory drops every recorded error. Recovery mode and its
// dwell clock are untouched.
func (uc *RecoveryUseCase) ClearErrorHistory() {
	uc.mu.Lock()
	cleared := len(uc.history)
	uc.history = nil
	uc.mu.Unlock()

	uc.logger.Recovery("Error history cleared", "dropped", cleared)
}

// AllowEntityCreation reports whether an entity of the given priority may
// be created right now. Low-priority creation is blocked in recovery mode.
func (uc *RecoveryUseCase) AllowEntityCreation(priority data.EntityPriority) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return !(uc.blockLowPriority && priority == data.PriorityLow)
}

// OnStateChange audits circuit breaker transitions. Runs on the breaker's
// transition path, so it must never call back into the breaker set.
func (uc *RecoveryUseCase) OnStateChange(name, from, to string) {
	var action string
	switch to {
	case model.BreakerStateOpen:
		action = model.AuditActionCircuitOpened
	case model.BreakerStateClosed:
		action = model.AuditActionCircuitClosed
	default:
		return
	}

	if _, err := uc.audit.RecordSystemEvent(context.Background(), action, "", map[string]interface{}{
		"breaker": name,
		"from":    from,
		"to":      to,
	}); err != nil {
		uc.logger.Warnw("msg", "failed to audit breaker transition",
			"breaker", name,
			"error", err)
	}
}

// recentCountsLocked counts history entries inside the trailing window:
// the total, and those matching category when it is non-empty. Caller
// holds uc.mu.
func (uc *RecoveryUseCase) recentCountsLocked(now time.Time, category string) (int, int) {
	total := 0
	same := 0
	for i := range uc.history {
		if now.Sub(uc.history[i].Timestamp) > uc.recentWindow {
			continue
		}
		total++
		if category != "" && uc.history[i].Category == category {
			same++
		}
	}
	return total, same
}

// executeActions runs each action in order, best-effort: a failing action
// is logged and skipped, the rest proceed. Returns the actions that
// executed without error.
func (uc *RecoveryUseCase) executeActions(ctx context.Context, actions []model.RecoveryAction) []model.RecoveryAction {
	executed := make([]model.RecoveryAction, 0, len(actions))
	for _, action := range actions {
		if err := uc.executeAction(ctx, action); err != nil {
			metrics.RecoveryAction(action.Kind(), metrics.OutcomeFailed)
			uc.logger.Recovery("Recovery action failed, skipping",
				"kind", action.Kind(),
				"error", err)
			continue
		}
		metrics.RecoveryAction(action.Kind(), metrics.OutcomeExecuted)
		executed = append(executed, action)
	}
	return executed
}

// executeAction applies one recovery action.
func (uc *RecoveryUseCase) executeAction(ctx context.Context, action model.RecoveryAction) error {
	switch a := action.(type) {
	case model.RetryAction:
		// Advisory: the host re-runs the failed operation itself.
		uc.logger.Recovery("Advising retry", "max_attempts", a.MaxAttempts, "delay", a.Delay.String())
		return nil

	case model.FallbackAction:
		uc.logger.Recovery("Advising fallback", "mode", a.Mode)
		return nil

	case model.ConservativeAction:
		return uc.applyConservative(ctx, a)

	case model.ResetAction:
		if a.ClearBreakers {
			uc.breakers.ResetAll()
		}
		if !a.KeepHistory {
			uc.trimHistory()
		}
		uc.logger.Recovery("Failure state reset",
			"breakers_cleared", a.ClearBreakers,
			"history_kept", a.KeepHistory)
		return nil

	case model.AbortAction:
		if _, err := uc.audit.RecordSystemEvent(ctx, model.AuditActionEmergencyStop, a.Reason, nil); err != nil {
			return fmt.Errorf("record emergency stop: %w", err)
		}
		uc.logger.Errorw("msg", "emergency stop requested", "reason", a.Reason)
		return nil

	default:
		return fmt.Errorf("unknown recovery action kind %q", action.Kind())
	}
}

// applyConservative cuts spend: entities below the performance floor are
// deactivated, the rest have their budgets scaled down. Per-entity failures
// are logged and skipped so one bad row cannot block the cut.
func (uc *RecoveryUseCase) applyConservative(ctx context.Context, a model.ConservativeAction) error {
	entities, err := uc.store.ListActiveEntities(ctx)
	if err != nil {
		return fmt.Errorf("list active entities: %w", err)
	}

	deactivated := 0
	scaled := 0
	for _, entity := range entities {
		if entity.PerformanceRatio() < a.MinPerformanceRatio {
			if err := uc.store.SetEntityStatus(ctx, entity.ID, data.EntityInactive); err != nil {
				uc.logger.Warnw("msg", "failed to deactivate entity",
					"entity_id", entity.ID,
					"error", err)
				continue
			}
			deactivated++
			if _, err := uc.audit.RecordEntityAction(ctx, model.AuditActionEntityDeactivated, entity.ID,
				map[string]interface{}{"status": string(entity.Status)},
				map[string]interface{}{"status": string(data.EntityInactive)},
			); err != nil {
				uc.logger.Warnw("msg", "failed to audit entity deactivation",
					"entity_id", entity.ID,
					"error", err)
			}
			continue
		}

		oldBudget, newBudget, err := uc.store.ScaleEntityBudget(ctx, entity.ID, a.BudgetScale, 0)
		if err != nil {
			uc.logger.Warnw("msg", "failed to scale entity budget",
				"entity_id", entity.ID,
				"error", err)
			continue
		}
		scaled++
		if _, err := uc.audit.RecordEntityAction(ctx, model.AuditActionBudgetScaled, entity.ID,
			map[string]interface{}{"budget": oldBudget},
			map[string]interface{}{"budget": newBudget},
		); err != nil {
			uc.logger.Warnw("msg", "failed to audit budget scaling",
				"entity_id", entity.ID,
				"error", err)
		}
	}

	uc.logger.Recovery("Conservative cuts applied",
		"deactivated", deactivated,
		"scaled", scaled,
		"floor", a.MinPerformanceRatio,
		"scale", a.BudgetScale)
	return nil
}

// trimHistory keeps the most recent half of the history capacity.
func (uc *RecoveryUseCase) trimHistory() {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	keep := uc.historyCapacity / 2
	if len(uc.history) > keep {
		uc.history = uc.history[len(uc.history)-keep:]
	}
}
