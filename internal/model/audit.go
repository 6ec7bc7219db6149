package model

import "time"

// Audit entry categories
const (
	AuditCategoryFinancial = "financial"
	AuditCategoryDecision  = "decision"
	AuditCategoryEntity    = "entity"
	AuditCategorySystem    = "system"
)

// Well-known audit action names
const (
	AuditActionTransactionIncome  = "transaction_income"
	AuditActionTransactionExpense = "transaction_expense"
	AuditActionCircuitOpened      = "circuit_opened"
	AuditActionCircuitClosed      = "circuit_closed"
	AuditActionRecoveryEntered    = "recovery_mode_entered"
	AuditActionRecoveryExited     = "recovery_mode_exited"
	AuditActionRecoveryAction     = "recovery_action_executed"
	AuditActionEmergencyStop      = "emergency_stop_requested"
	AuditActionEntityPaused       = "entity_paused"
	AuditActionEntityDeactivated  = "entity_deactivated"
	AuditActionBudgetScaled       = "budget_scaled"
)

// AuditEntry is one hash-chained record in the trail. Hash covers the
// canonical JSON encoding of every field except Hash itself, including
// PreviousHash, so entries form a tamper-evident chain per segment.
type AuditEntry struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	Action       string                 `json:"action"`
	Category     string                 `json:"category"`
	Actor        string                 `json:"actor"`
	Details      map[string]interface{} `json:"details,omitempty"`
	PriorState   map[string]interface{} `json:"priorState,omitempty"`
	NewState     map[string]interface{} `json:"newState,omitempty"`
	Hash         string                 `json:"hash"`
	PreviousHash string                 `json:"previousHash"`
}

// AuditCriteria filters a trail search. All set predicates are conjunctive.
type AuditCriteria struct {
	Start          *time.Time `json:"start,omitempty"`
	End            *time.Time `json:"end,omitempty"`
	Category       string     `json:"category,omitempty"`
	ActionContains string     `json:"actionContains,omitempty"`
	Actor          string     `json:"actor,omitempty"`
	TextContains   string     `json:"textContains,omitempty"`
}

// IntegrityError localizes one chain violation found during verification.
type IntegrityError struct {
	EntryID string `json:"entryId"`
	Index   int    `json:"index"`
	Reason  string `json:"reason"`
}

// IntegrityReport is the result of walking the chain.
type IntegrityReport struct {
	Valid          bool             `json:"valid"`
	Errors         []IntegrityError `json:"errors"`
	EntriesChecked int              `json:"entriesChecked"`
}

// AuditReport aggregates a date range of the trail.
type AuditReport struct {
	Start        time.Time      `json:"start"`
	End          time.Time      `json:"end"`
	TotalEntries int            `json:"totalEntries"`
	ByCategory   map[string]int `json:"byCategory"`
	ByAction     map[string]int `json:"byAction"`
	Revenue      float64        `json:"revenue"`
	Expenses     float64        `json:"expenses"`
	Net          float64        `json:"net"`
}

// AuditExport is the serialized snapshot produced by ExportTrail.
type AuditExport struct {
	ExportDate   time.Time      `json:"exportDate"`
	Criteria     *AuditCriteria `json:"criteria,omitempty"`
	EntriesCount int            `json:"entriesCount"`
	Entries      []*AuditEntry  `json:"entries"`
}
