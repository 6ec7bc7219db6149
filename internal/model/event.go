package model

import "time"

// Error categories assigned by the recovery orchestrator's classifier.
const (
	ErrorCategoryAPI       = "api"
	ErrorCategoryFinancial = "financial"
	ErrorCategoryEntity    = "entity"
	ErrorCategoryCampaign  = "campaign"
	ErrorCategoryMemory    = "memory"
	ErrorCategorySystem    = "system"
)

// Error severities, ordered low to critical.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// ErrorEvent represents one recorded failure. Immutable after recording;
// events live in a bounded history where the oldest is evicted past capacity.
type ErrorEvent struct {
	Category  string                 `json:"category"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message"`
	Operation string                 `json:"operation,omitempty"`
	Day       int                    `json:"day,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// ErrorContext carries caller-supplied hints about where an error occurred.
// Category is only a fallback: keyword classification of the message wins.
type ErrorContext struct {
	Operation string
	Category  string
	Day       int
	Data      map[string]interface{}
}

// ErrorStats summarizes the error history.
type ErrorStats struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"byCategory"`
	BySeverity map[string]int `json:"bySeverity"`
	Recent     int            `json:"recent"`
	Oldest     *time.Time     `json:"oldest,omitempty"`
	Newest     *time.Time     `json:"newest,omitempty"`
}

// RecoveryStatus is a point-in-time snapshot of the orchestrator.
type RecoveryStatus struct {
	RecoveryMode      bool                     `json:"recoveryMode"`
	RecoveryModeSince *time.Time               `json:"recoveryModeSince,omitempty"`
	BlockLowPriority  bool                     `json:"blockLowPriority"`
	ErrorCount        int                      `json:"errorCount"`
	RecentErrors      int                      `json:"recentErrors"`
	CircuitBreakers   map[string]BreakerStatus `json:"circuitBreakers"`
	StoreHealth       string                   `json:"storeHealth,omitempty"`
}
