package model

import "time"

// Financial health tiers reported by the host and the entity store.
const (
	HealthTierHealthy  = "healthy"
	HealthTierWarning  = "warning"
	HealthTierCritical = "critical"
	HealthTierBankrupt = "bankrupt"
)

// Circuit breaker states
const (
	BreakerStateClosed   = "closed"
	BreakerStateOpen     = "open"
	BreakerStateHalfOpen = "half_open"
)

// Entity priorities
const (
	EntityPriorityLow    = "low"
	EntityPriorityNormal = "normal"
	EntityPriorityHigh   = "high"
)

// Entity statuses
const (
	EntityStatusActive   = "active"
	EntityStatusPaused   = "paused"
	EntityStatusInactive = "inactive"
)

// HostState is the host-supplied health snapshot evaluated during recovery.
// It is read, never stored.
type HostState struct {
	Day             int     `json:"day"`
	NetWorth        float64 `json:"netWorth"`
	Bankrupt        bool    `json:"bankrupt"`
	FinancialHealth string  `json:"financialHealth"`
	AvailableBudget float64 `json:"availableBudget"`
}

// BreakerStatus is a read-only snapshot of one circuit breaker.
// TimeUntilReset is zero unless the breaker is open.
type BreakerStatus struct {
	State               string        `json:"state"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	Threshold           int           `json:"threshold"`
	TimeUntilReset      time.Duration `json:"timeUntilReset,omitempty"`
}
