package biz

import (
	"fmt"
	"strings"
	"time"

	"Bulwark/internal/conf"
	"Bulwark/internal/model"
)

// Policy defaults applied when the config leaves a field unset.
const (
	defaultEscalationCount  = 3
	defaultExcessiveErrors  = 10
	defaultPerformanceFloor = 0.5
	defaultBudgetScale      = 0.5
	defaultLowBudgetFloor   = 100.0
)

// KeywordRule maps message keywords to one error category.
type KeywordRule struct {
	Category string
	Keywords []string
}

// RecoveryPolicy is the decision table of the recovery orchestrator:
// keyword classification, severity assessment, and the actions issued per
// category and severity. The keyword lists are heuristic; operators tune
// them by swapping in an adjusted policy rather than editing code.
type RecoveryPolicy struct {
	// KeywordRules are evaluated in order; the first matching category wins.
	KeywordRules []KeywordRule
	// CategoryActions maps each category to its baseline actions.
	CategoryActions map[string][]model.RecoveryAction

	// EscalationCount: more than this many same-category errors inside the
	// recent window raises the assessed severity one tier.
	EscalationCount int
	// ExcessiveErrors: at least this many recent errors reads as high
	// severity and qualifies for recovery mode.
	ExcessiveErrors int

	// PerformanceFloor and BudgetScale parameterize conservative cuts.
	PerformanceFloor float64
	BudgetScale      float64
	// LowBudgetFloor: available budget below this adds a conservative cut
	// regardless of severity.
	LowBudgetFloor float64
}

// DefaultRecoveryPolicy builds the stock policy table, taking thresholds
// from config where set.
func DefaultRecoveryPolicy(c *conf.Recovery) *RecoveryPolicy {
	escalation := defaultEscalationCount
	excessive := defaultExcessiveErrors
	floor := defaultPerformanceFloor
	scale := defaultBudgetScale
	lowBudget := defaultLowBudgetFloor

	if c != nil {
		if c.EscalationCount > 0 {
			escalation = int(c.EscalationCount)
		}
		if c.ExcessiveErrors > 0 {
			excessive = int(c.ExcessiveErrors)
		}
		if c.PerformanceFloor > 0 {
			floor = c.PerformanceFloor
		}
		if c.BudgetScale > 0 {
			scale = c.BudgetScale
		}
		if c.LowBudgetFloor > 0 {
			lowBudget = c.LowBudgetFloor
		}
	}

	conservative := model.ConservativeAction{
		MinPerformanceRatio: floor,
		BudgetScale:         scale,
	}

	return &RecoveryPolicy{
		KeywordRules: []KeywordRule{
			{Category: model.ErrorCategoryAPI, Keywords: []string{
				"api", "rate limit", "timeout", "timed out", "network", "connection", "http", "circuit",
			}},
			{Category: model.ErrorCategoryFinancial, Keywords: []string{
				"bankrupt", "budget", "insufficient", "financ", "overspend", "payment",
			}},
			{Category: model.ErrorCategoryEntity, Keywords: []string{
				"entity", "product", "inventory",
			}},
			{Category: model.ErrorCategoryCampaign, Keywords: []string{
				"campaign", "creative", "audience",
			}},
			{Category: model.ErrorCategoryMemory, Keywords: []string{
				"memory", "heap", "allocation", "oom",
			}},
		},
		CategoryActions: map[string][]model.RecoveryAction{
			model.ErrorCategoryAPI: {
				model.RetryAction{MaxAttempts: 3, Delay: 5 * time.Second},
				model.FallbackAction{Mode: "cached"},
			},
			model.ErrorCategoryFinancial: {
				conservative,
			},
			model.ErrorCategoryEntity: {
				model.RetryAction{MaxAttempts: 2, Delay: 2 * time.Second},
			},
			model.ErrorCategoryCampaign: {
				model.FallbackAction{Mode: "manual"},
			},
			model.ErrorCategoryMemory: {
				model.ResetAction{ClearBreakers: false, KeepHistory: false},
			},
			model.ErrorCategorySystem: {
				model.RetryAction{MaxAttempts: 1, Delay: 10 * time.Second},
			},
		},
		EscalationCount:  escalation,
		ExcessiveErrors:  excessive,
		PerformanceFloor: floor,
		BudgetScale:      scale,
		LowBudgetFloor:   lowBudget,
	}
}

// Classify assigns an error category by keyword match against the message,
// falling back to the caller-supplied category, else "system". Total: any
// input maps to a category.
func (p *RecoveryPolicy) Classify(message, fallback string) string {
	msg := strings.ToLower(message)
	for _, rule := range p.KeywordRules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(msg, keyword) {
				return rule.Category
			}
		}
	}
	if fallback != "" {
		return fallback
	}
	return model.ErrorCategorySystem
}

// Assess computes the severity of one error from the message, the host
// health snapshot, and the recent error counts. Total: a nil host reads as
// healthy.
func (p *RecoveryPolicy) Assess(message string, host *model.HostState, recentTotal, recentSameCategory int) string {
	severity := model.SeverityLow
	switch {
	case strings.Contains(strings.ToLower(message), "bankrupt"),
		host != nil && (host.Bankrupt || host.NetWorth < 0):
		severity = model.SeverityCritical
	case recentTotal >= p.ExcessiveErrors,
		host != nil && host.FinancialHealth == model.HealthTierCritical:
		severity = model.SeverityHigh
	case host != nil && host.FinancialHealth == model.HealthTierWarning:
		severity = model.SeverityMedium
	}

	if recentSameCategory > p.EscalationCount {
		severity = escalateSeverity(severity)
	}
	return severity
}

// ShouldEnterRecovery reports whether this error qualifies the process for
// recovery mode.
func (p *RecoveryPolicy) ShouldEnterRecovery(severity string, recentTotal int) bool {
	return severity == model.SeverityCritical || recentTotal >= p.ExcessiveErrors
}

// ActionsFor assembles the recovery actions for one classified error:
// the category's baseline actions, severity-specific additions, and the
// low-budget safeguard. At most one action per kind survives per cycle;
// the first listed wins.
func (p *RecoveryPolicy) ActionsFor(category, severity string, host *model.HostState) []model.RecoveryAction {
	actions := make([]model.RecoveryAction, 0, 4)
	actions = append(actions, p.CategoryActions[category]...)

	conservative := model.ConservativeAction{
		MinPerformanceRatio: p.PerformanceFloor,
		BudgetScale:         p.BudgetScale,
	}

	switch severity {
	case model.SeverityCritical:
		actions = append(actions, conservative)
		actions = append(actions, model.AbortAction{
			Reason: fmt.Sprintf("critical %s failure", category),
		})
	case model.SeverityHigh:
		actions = append(actions, conservative)
	}

	if host != nil && host.AvailableBudget < p.LowBudgetFloor {
		actions = append(actions, conservative)
	}

	return dedupeActionsByKind(actions)
}

// dedupeActionsByKind keeps the first action of each kind, preserving order.
// Running the same cut twice in one cycle would compound it.
func dedupeActionsByKind(actions []model.RecoveryAction) []model.RecoveryAction {
	seen := make(map[string]bool, len(actions))
	out := actions[:0]
	for _, action := range actions {
		if seen[action.Kind()] {
			continue
		}
		seen[action.Kind()] = true
		out = append(out, action)
	}
	return out
}

// escalateSeverity raises a severity one tier, saturating at critical.
func escalateSeverity(severity string) string {
	switch severity {
	case model.SeverityLow:
		return model.SeverityMedium
	case model.SeverityMedium:
		return model.SeverityHigh
	default:
		return model.SeverityCritical
	}
}
