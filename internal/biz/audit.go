package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"Bulwark/internal/metrics"
	"Bulwark/internal/model"
	"Bulwark/pkg/crypto"
	pkglog "Bulwark/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// Transaction kinds accepted by RecordTransaction.
const (
	TransactionIncome  = "income"
	TransactionExpense = "expense"
)

// Integrity error reasons reported by VerifyIntegrity.
const (
	integrityHashMismatch = "hash mismatch"
	integrityChainBroken  = "chain broken"
)

// chainPayload is the canonical hash input: every entry field except the
// hash itself, in fixed declaration order. Changing this layout invalidates
// every previously written digest.
type chainPayload struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	Action       string                 `json:"action"`
	Category     string                 `json:"category"`
	Actor        string                 `json:"actor"`
	Details      map[string]interface{} `json:"details,omitempty"`
	PriorState   map[string]interface{} `json:"priorState,omitempty"`
	NewState     map[string]interface{} `json:"newState,omitempty"`
	PreviousHash string                 `json:"previousHash"`
}

// entryDigest computes the chain digest of one entry.
func entryDigest(entry *model.AuditEntry) (string, error) {
	return crypto.ChainDigest(chainPayload{
		ID:           entry.ID,
		Timestamp:    entry.Timestamp,
		Action:       entry.Action,
		Category:     entry.Category,
		Actor:        entry.Actor,
		Details:      entry.Details,
		PriorState:   entry.PriorState,
		NewState:     entry.NewState,
		PreviousHash: entry.PreviousHash,
	})
}

// AuditUseCase maintains the tamper-evident audit trail: every recorded
// event is hash-chained to its predecessor and appended to a monthly
// segment. Appends serialize under one mutex so the chain never forks;
// reads run against already-written entries without it.
type AuditUseCase struct {
	repo   AuditSegmentRepo
	logger *pkglog.LogHelper

	mu           sync.Mutex
	previousHash string
	seq          uint64

	now func() time.Time
}

// NewAuditUseCase creates the audit trail, seeding the hash chain from the
// newest persisted entry so the chain survives process restarts. A segment
// tail that cannot be decoded is a startup error: silently restarting the
// chain would hide tampering.
func NewAuditUseCase(repo AuditSegmentRepo, logger log.Logger) (*AuditUseCase, error) {
	uc := &AuditUseCase{
		repo:   repo,
		logger: pkglog.NewLogHelper(logger),
		now:    time.Now,
	}

	last, err := repo.LastEntry(context.Background())
	if err != nil {
		return nil, fmt.Errorf("seed audit chain: %w", err)
	}
	if last != nil {
		uc.previousHash = last.Hash
		uc.seq = parseAuditSeq(last.ID)
		uc.logger.Audit("Audit chain seeded from persisted trail",
			"last_id", last.ID,
			"last_timestamp", last.Timestamp.Format(time.RFC3339))
	} else {
		uc.logger.Audit("Audit trail starting empty")
	}

	return uc, nil
}

// parseAuditSeq extracts the trailing sequence number of an entry ID.
// IDs look like AUD-<unixnano>-<seq>; anything else restarts at zero.
func parseAuditSeq(id string) uint64 {
	idx := strings.LastIndex(id, "-")
	if idx < 0 || idx == len(id)-1 {
		return 0
	}
	seq, err := strconv.ParseUint(id[idx+1:], 10, 64)
	if err != nil {
		return 0
	}
	return seq
}

// RecordTransaction appends a financial entry. Kind is "income" or
// "expense"; other kinds are recorded verbatim but excluded from report
// totals.
func (uc *AuditUseCase) RecordTransaction(ctx context.Context, kind string, amount float64, description string) (*model.AuditEntry, error) {
	return uc.append(ctx, "transaction_"+kind, model.AuditCategoryFinancial, map[string]interface{}{
		"amount":      amount,
		"description": description,
	}, nil, nil)
}

// RecordDecision appends a decision entry. Action names the decision taken;
// reasoning preserves why.
func (uc *AuditUseCase) RecordDecision(ctx context.Context, action, reasoning string, details map[string]interface{}) (*model.AuditEntry, error) {
	merged := make(map[string]interface{}, len(details)+1)
	for k, v := range details {
		merged[k] = v
	}
	merged["reasoning"] = reasoning
	return uc.append(ctx, action, model.AuditCategoryDecision, merged, nil, nil)
}

// RecordEntityAction appends an entity-lifecycle entry with before and
// after snapshots.
func (uc *AuditUseCase) RecordEntityAction(ctx context.Context, action string, entityID int64, prior, next map[string]interface{}) (*model.AuditEntry, error) {
	return uc.append(ctx, action, model.AuditCategoryEntity, map[string]interface{}{
		"entityId": entityID,
	}, prior, next)
}

// RecordSystemEvent appends a system entry.
func (uc *AuditUseCase) RecordSystemEvent(ctx context.Context, action, message string, details map[string]interface{}) (*model.AuditEntry, error) {
	merged := make(map[string]interface{}, len(details)+1)
	for k, v := range details {
		merged[k] = v
	}
	if message != "" {
		merged["message"] = message
	}
	return uc.append(ctx, action, model.AuditCategorySystem, merged, nil, nil)
}

// append is the single write path: builds the entry, hashes it against the
// chain head, persists it, then advances the head. A failed persist leaves
// the head untouched so the next append re-links to what is actually on
// disk.
func (uc *AuditUseCase) append(ctx context.Context, action, category string, details, prior, next map[string]interface{}) (*model.AuditEntry, error) {
	actor := pkglog.GetActor(ctx)
	if actor == "" {
		actor = "system"
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	uc.seq++
	now := uc.now().UTC()
	entry := &model.AuditEntry{
		ID:           fmt.Sprintf("AUD-%d-%d", now.UnixNano(), uc.seq),
		Timestamp:    now,
		Action:       action,
		Category:     category,
		Actor:        actor,
		Details:      details,
		PriorState:   prior,
		NewState:     next,
		PreviousHash: uc.previousHash,
	}

	hash, err := entryDigest(entry)
	if err != nil {
		return nil, fmt.Errorf("hash audit entry %s: %w", entry.ID, err)
	}
	entry.Hash = hash

	if err := uc.repo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("persist audit entry %s: %w", entry.ID, err)
	}
	uc.previousHash = hash

	metrics.AuditEntryRecorded(category)
	uc.logger.Audit("Audit entry recorded",
		"id", entry.ID,
		"action", action,
		"category", category,
		"actor", actor)
	return entry, nil
}

// Search returns every entry matching all set criteria, in chain order.
// A nil criteria returns the full trail.
func (uc *AuditUseCase) Search(ctx context.Context, criteria *model.AuditCriteria) ([]*model.AuditEntry, error) {
	matches := make([]*model.AuditEntry, 0)
	err := uc.repo.Scan(ctx, func(entry *model.AuditEntry) error {
		if matchesCriteria(entry, criteria) {
			matches = append(matches, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search audit trail: %w", err)
	}
	return matches, nil
}

// matchesCriteria applies every set predicate conjunctively.
func matchesCriteria(entry *model.AuditEntry, criteria *model.AuditCriteria) bool {
	if criteria == nil {
		return true
	}
	if criteria.Start != nil && entry.Timestamp.Before(*criteria.Start) {
		return false
	}
	if criteria.End != nil && entry.Timestamp.After(*criteria.End) {
		return false
	}
	if criteria.Category != "" && entry.Category != criteria.Category {
		return false
	}
	if criteria.ActionContains != "" && !strings.Contains(entry.Action, criteria.ActionContains) {
		return false
	}
	if criteria.Actor != "" && entry.Actor != criteria.Actor {
		return false
	}
	if criteria.TextContains != "" {
		encoded, err := json.Marshal(entry)
		if err != nil {
			return false
		}
		if !strings.Contains(strings.ToLower(string(encoded)), strings.ToLower(criteria.TextContains)) {
			return false
		}
	}
	return true
}

// VerifyIntegrity walks the chain and reports every entry whose recomputed
// digest disagrees with its stored hash, or whose previousHash disagrees
// with its predecessor's stored hash. A date range narrows which entries
// are checked and counted; linkage still walks the full trail. At most one
// error is reported per entry, digest mismatches first.
func (uc *AuditUseCase) VerifyIntegrity(ctx context.Context, start, end *time.Time) (*model.IntegrityReport, error) {
	report := &model.IntegrityReport{
		Valid:  true,
		Errors: []model.IntegrityError{},
	}

	prevHash := ""
	index := 0
	err := uc.repo.Scan(ctx, func(entry *model.AuditEntry) error {
		defer func() {
			prevHash = entry.Hash
			index++
		}()

		if start != nil && entry.Timestamp.Before(*start) {
			return nil
		}
		if end != nil && entry.Timestamp.After(*end) {
			return nil
		}
		report.EntriesChecked++

		digest, err := entryDigest(entry)
		if err != nil {
			return fmt.Errorf("recompute digest for %s: %w", entry.ID, err)
		}
		if !crypto.DigestEqual(digest, entry.Hash) {
			report.Errors = append(report.Errors, model.IntegrityError{
				EntryID: entry.ID,
				Index:   index,
				Reason:  integrityHashMismatch,
			})
			return nil
		}
		if entry.PreviousHash != prevHash {
			report.Errors = append(report.Errors, model.IntegrityError{
				EntryID: entry.ID,
				Index:   index,
				Reason:  integrityChainBroken,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify audit trail: %w", err)
	}

	report.Valid = len(report.Errors) == 0
	metrics.AuditVerification(report.Valid)
	if !report.Valid {
		uc.logger.Integrity("Audit trail integrity check failed",
			"entries_checked", report.EntriesChecked,
			"errors", len(report.Errors),
			"first_entry", report.Errors[0].EntryID,
			"first_reason", report.Errors[0].Reason)
	} else {
		uc.logger.Audit("Audit trail integrity verified",
			"entries_checked", report.EntriesChecked)
	}
	return report, nil
}

// GenerateReport aggregates the trail between start and end inclusive:
// entry counts by category and action, plus financial totals.
func (uc *AuditUseCase) GenerateReport(ctx context.Context, start, end time.Time) (*model.AuditReport, error) {
	report := &model.AuditReport{
		Start:      start,
		End:        end,
		ByCategory: make(map[string]int),
		ByAction:   make(map[string]int),
	}

	err := uc.repo.Scan(ctx, func(entry *model.AuditEntry) error {
		if entry.Timestamp.Before(start) || entry.Timestamp.After(end) {
			return nil
		}
		report.TotalEntries++
		report.ByCategory[entry.Category]++
		report.ByAction[entry.Action]++

		if entry.Category == model.AuditCategoryFinancial {
			amount, ok := entry.Details["amount"].(float64)
			if !ok {
				return nil
			}
			switch entry.Action {
			case model.AuditActionTransactionIncome:
				report.Revenue += amount
			case model.AuditActionTransactionExpense:
				report.Expenses += amount
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generate audit report: %w", err)
	}

	report.Net = report.Revenue - report.Expenses
	return report, nil
}

// ExportTrail serializes the entries matching criteria into a JSON
// snapshot document.
func (uc *AuditUseCase) ExportTrail(ctx context.Context, criteria *model.AuditCriteria) ([]byte, error) {
	entries, err := uc.Search(ctx, criteria)
	if err != nil {
		return nil, err
	}

	export := &model.AuditExport{
		ExportDate:   uc.now().UTC(),
		Criteria:     criteria,
		EntriesCount: len(entries),
		Entries:      entries,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialize audit export: %w", err)
	}

	uc.logger.Audit("Audit trail exported", "entries", len(entries))
	return data, nil
}
