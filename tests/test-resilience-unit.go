// Package main provides a manual integration walk of the resilience core.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"Bulwark/internal/biz"
	"Bulwark/internal/conf"
	"Bulwark/internal/data"
	"Bulwark/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"google.golang.org/protobuf/types/known/durationpb"
)

// Manual integration test for the resilience core.
// It exercises the audit trail, circuit breakers, recovery orchestrator and
// monitor against a real filesystem, with an in-memory entity store standing
// in for MySQL.

// memEntityStore is a map-backed stand-in for the MySQL entity repo.
type memEntityStore struct {
	mu       sync.Mutex
	entities map[int64]*data.Entity
}

func newMemEntityStore(entities ...*data.Entity) *memEntityStore {
	s := &memEntityStore{entities: make(map[int64]*data.Entity)}
	for _, e := range entities {
		s.entities[e.ID] = e
	}
	return s
}

func (s *memEntityStore) CreateEntity(_ context.Context, e *data.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = e
	return nil
}

func (s *memEntityStore) GetEntity(_ context.Context, id int64) (*data.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("entity %d not found", id)
	}
	return e, nil
}

func (s *memEntityStore) ListActiveEntities(_ context.Context) ([]*data.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*data.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		if e.Status == data.EntityActive {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memEntityStore) SetEntityStatus(_ context.Context, id int64, status data.EntityStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return fmt.Errorf("entity %d not found", id)
	}
	e.Status = status
	return nil
}

func (s *memEntityStore) ScaleEntityBudget(_ context.Context, id int64, factor, floor float64) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return 0, 0, fmt.Errorf("entity %d not found", id)
	}
	old := e.Budget
	scaled := old * factor
	if scaled < floor {
		scaled = floor
	}
	e.Budget = scaled
	return old, scaled, nil
}

func (s *memEntityStore) AvailableBudget(_ context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0.0
	for _, e := range s.entities {
		if e.Status == data.EntityActive {
			total += e.Budget - e.Spent
		}
	}
	return total, nil
}

func (s *memEntityStore) HealthTier(_ context.Context) (string, error) {
	return model.HealthTierHealthy, nil
}

// consoleNotifier counts alert notifications and echoes them to stdout.
type consoleNotifier struct {
	mu        sync.Mutex
	triggered int
	resolved  int
}

func (n *consoleNotifier) OnAlertTriggered(alert *model.Alert, value float64) {
	n.mu.Lock()
	n.triggered++
	n.mu.Unlock()
	fmt.Printf("  >> alert triggered: %s (value %.1f)\n", alert.Name, value)
}

func (n *consoleNotifier) OnAlertResolved(alert *model.Alert) {
	n.mu.Lock()
	n.resolved++
	n.mu.Unlock()
	fmt.Printf("  >> alert resolved: %s\n", alert.Name)
}

func main() {
	logger := log.NewStdLogger(os.Stdout)
	ctx := context.Background()

	fmt.Println("==========================================")
	fmt.Println("Bulwark Resilience Core Integration Test")
	fmt.Println("==========================================")
	fmt.Println()

	// Audit Trail
	fmt.Println("Step 1: Audit Trail (hash chain)")
	fmt.Println("------------------------------------------")

	auditDir, err := os.MkdirTemp("", "bulwark-audit-*")
	if err != nil {
		fmt.Printf("✗ Failed to create audit dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(auditDir)

	repo, repoCleanup, err := data.NewSegmentRepo(&conf.Audit{Dir: auditDir}, logger)
	if err != nil {
		fmt.Printf("✗ Failed to open segment repo: %v\n", err)
		os.Exit(1)
	}
	defer repoCleanup()

	audit, err := biz.NewAuditUseCase(repo, logger)
	if err != nil {
		fmt.Printf("✗ Failed to create audit use case: %v\n", err)
		os.Exit(1)
	}

	auditPassed := 0

	if _, err := audit.RecordTransaction(ctx, "income", 250.5, "sponsor payment"); err == nil {
		fmt.Println("  Entry 1 (income 250.5): ✓ RECORDED")
		auditPassed++
	} else {
		fmt.Printf("  Entry 1: ✗ FAIL - %v\n", err)
	}
	if _, err := audit.RecordTransaction(ctx, "expense", 75.0, "ad spend"); err == nil {
		fmt.Println("  Entry 2 (expense 75.0): ✓ RECORDED")
		auditPassed++
	} else {
		fmt.Printf("  Entry 2: ✗ FAIL - %v\n", err)
	}
	if _, err := audit.RecordDecision(ctx, "pause_campaign", "seasonal demand dropped", nil); err == nil {
		fmt.Println("  Entry 3 (decision): ✓ RECORDED")
		auditPassed++
	} else {
		fmt.Printf("  Entry 3: ✗ FAIL - %v\n", err)
	}

	report, err := audit.VerifyIntegrity(ctx, nil, nil)
	if err == nil && report.Valid && report.EntriesChecked == 3 {
		fmt.Println("  Verification (clean): ✓ VALID, 3 entries checked")
		auditPassed++
	} else {
		fmt.Printf("  Verification (clean): ✗ FAIL - %+v err=%v\n", report, err)
	}

	// Tamper with the segment file on disk and verify again.
	segments, _ := filepath.Glob(filepath.Join(auditDir, "audit-*.jsonl"))
	if len(segments) == 1 {
		raw, readErr := os.ReadFile(segments[0])
		if readErr == nil {
			tampered := strings.Replace(string(raw), `"actor":"system"`, `"actor":"mallory"`, 1)
			if writeErr := os.WriteFile(segments[0], []byte(tampered), 0o600); writeErr == nil {
				report, err = audit.VerifyIntegrity(ctx, nil, nil)
				if err == nil && !report.Valid && len(report.Errors) == 1 &&
					strings.Contains(report.Errors[0].Reason, "hash mismatch") {
					fmt.Println("  Verification (tampered): ✓ DETECTED hash mismatch")
					auditPassed++
				} else {
					fmt.Printf("  Verification (tampered): ✗ FAIL - %+v err=%v\n", report, err)
				}
			}
		}
	}

	if auditPassed == 5 {
		fmt.Println()
		fmt.Println("✓ Audit trail works correctly!")
	} else {
		fmt.Println()
		fmt.Printf("✗ Audit trail test failed: %d/5 passed\n", auditPassed)
	}
	fmt.Println()

	// Circuit Breaker
	fmt.Println("Step 2: Circuit Breaker")
	fmt.Println("------------------------------------------")
	fmt.Println("Failure threshold: 3, reset timeout: 2s")
	fmt.Println()

	breakers := biz.NewBreakerManager(&conf.Breaker{
		FailureThreshold: 3,
		CallTimeout:      durationpb.New(5 * time.Second),
		ResetTimeout:     durationpb.New(2 * time.Second),
	}, logger)

	breakerPassed := 0
	invocations := 0
	failing := func(context.Context) (interface{}, error) {
		invocations++
		return nil, errors.New("upstream unavailable")
	}
	succeeding := func(context.Context) (interface{}, error) {
		invocations++
		return "ok", nil
	}

	for i := 1; i <= 3; i++ {
		if _, err := breakers.Execute(ctx, "ads-api", failing); err != nil {
			fmt.Printf("  Call %d: ✓ FAILED (expected)\n", i)
			breakerPassed++
		} else {
			fmt.Printf("  Call %d: ✗ FAIL - succeeded (expected failure)\n", i)
		}
	}

	if breakers.State("ads-api") == model.BreakerStateOpen {
		fmt.Println("  Breaker state: ✓ OPEN after 3 failures")
		breakerPassed++
	} else {
		fmt.Printf("  Breaker state: ✗ FAIL - %s (expected open)\n", breakers.State("ads-api"))
	}

	before := invocations
	if _, err := breakers.Execute(ctx, "ads-api", failing); biz.IsCircuitOpen(err) && invocations == before {
		fmt.Println("  Call 4: ✓ REJECTED without invoking operation")
		breakerPassed++
	} else {
		fmt.Printf("  Call 4: ✗ FAIL - err=%v invoked=%v\n", err, invocations != before)
	}

	fmt.Println()
	fmt.Println("  Waiting 2.5 seconds for reset window...")
	time.Sleep(2500 * time.Millisecond)

	if out, err := breakers.Execute(ctx, "ads-api", succeeding); err == nil && out == "ok" {
		fmt.Println("  Trial call: ✓ PASSED through half-open breaker")
		breakerPassed++
	} else {
		fmt.Printf("  Trial call: ✗ FAIL - %v\n", err)
	}

	if breakers.State("ads-api") == model.BreakerStateClosed {
		fmt.Println("  Breaker state: ✓ CLOSED after successful trial")
		breakerPassed++
	} else {
		fmt.Printf("  Breaker state: ✗ FAIL - %s (expected closed)\n", breakers.State("ads-api"))
	}

	if breakerPassed == 7 {
		fmt.Println()
		fmt.Println("✓ Circuit breaker works correctly!")
	} else {
		fmt.Println()
		fmt.Printf("✗ Circuit breaker test failed: %d/7 passed\n", breakerPassed)
	}
	fmt.Println()

	// Recovery Orchestrator
	fmt.Println("Step 3: Recovery Orchestrator")
	fmt.Println("------------------------------------------")

	store := newMemEntityStore(
		&data.Entity{ID: 1, Name: "learning-campaign", Status: data.EntityActive, Priority: data.PriorityLow, Budget: 800, Spent: 200, Revenue: 50},
		&data.Entity{ID: 2, Name: "flagship-campaign", Status: data.EntityActive, Priority: data.PriorityHigh, Budget: 1000, Spent: 100, Revenue: 150},
	)
	recovery := biz.NewRecoveryUseCase(nil, biz.DefaultRecoveryPolicy(nil), store, breakers, audit, logger)

	recoveryPassed := 0
	host := &model.HostState{Day: 12, NetWorth: 4000, FinancialHealth: model.HealthTierWarning, AvailableBudget: 1500}
	actions := recovery.RecoverFromError(ctx, errors.New("daily settlement failed: company is bankrupt"), nil, host)

	kinds := make(map[string]bool, len(actions))
	for _, a := range actions {
		kinds[a.Kind()] = true
	}
	if kinds["abort"] && kinds["conservative"] {
		fmt.Printf("  Bankrupt error: ✓ ABORT + CONSERVATIVE issued (%d actions)\n", len(actions))
		recoveryPassed++
	} else {
		fmt.Printf("  Bankrupt error: ✗ FAIL - kinds %v\n", kinds)
	}

	if recovery.GetRecoveryStatus(ctx).RecoveryMode {
		fmt.Println("  Recovery mode: ✓ ENTERED")
		recoveryPassed++
	} else {
		fmt.Println("  Recovery mode: ✗ FAIL - not entered")
	}

	underperformer, err := store.GetEntity(ctx, 1)
	if err == nil && underperformer.Status == data.EntityInactive {
		fmt.Println("  Underperformer (ratio 0.25): ✓ DEACTIVATED")
		recoveryPassed++
	} else {
		fmt.Printf("  Underperformer: ✗ FAIL - %+v err=%v\n", underperformer, err)
	}

	performer, err := store.GetEntity(ctx, 2)
	if err == nil && performer.Budget == 500 {
		fmt.Println("  Performer budget: ✓ SCALED 1000 -> 500")
		recoveryPassed++
	} else {
		fmt.Printf("  Performer budget: ✗ FAIL - %+v err=%v\n", performer, err)
	}

	if !recovery.AllowEntityCreation(data.PriorityLow) && recovery.AllowEntityCreation(data.PriorityHigh) {
		fmt.Println("  Entity creation: ✓ LOW blocked, HIGH allowed")
		recoveryPassed++
	} else {
		fmt.Println("  Entity creation: ✗ FAIL - priority gating wrong")
	}

	healthy := &model.HostState{Day: 13, NetWorth: 5000, FinancialHealth: model.HealthTierHealthy, AvailableBudget: 2000}
	if !recovery.ExitRecoveryMode(ctx, healthy) {
		fmt.Println("  Early exit: ✓ BLOCKED before minimum dwell")
		recoveryPassed++
	} else {
		fmt.Println("  Early exit: ✗ FAIL - allowed before dwell")
	}

	if recoveryPassed == 6 {
		fmt.Println()
		fmt.Println("✓ Recovery orchestrator works correctly!")
	} else {
		fmt.Println()
		fmt.Printf("✗ Recovery test failed: %d/6 passed\n", recoveryPassed)
	}
	fmt.Println()

	// Monitor
	fmt.Println("Step 4: Metrics Monitor and Alerts")
	fmt.Println("------------------------------------------")

	notifier := &consoleNotifier{}
	monitor := biz.NewMonitorUseCase(nil, notifier, logger)
	monitor.RegisterMetric("daily_revenue", "gauge", "usd")
	monitor.RegisterAlert("revenue-above-target", "daily_revenue", "above", 100, "info")

	monitorPassed := 0

	monitor.Record("daily_revenue", 50, nil)
	monitor.EvaluateAlerts()
	if notifier.triggered == 0 {
		fmt.Println("  Record 50: ✓ no trigger")
		monitorPassed++
	} else {
		fmt.Println("  Record 50: ✗ FAIL - triggered early")
	}

	monitor.Record("daily_revenue", 150, nil)
	monitor.EvaluateAlerts()
	monitor.EvaluateAlerts() // redundant pass must not re-fire
	if notifier.triggered == 1 {
		fmt.Println("  Record 150: ✓ exactly one trigger")
		monitorPassed++
	} else {
		fmt.Printf("  Record 150: ✗ FAIL - %d triggers\n", notifier.triggered)
	}

	monitor.Record("daily_revenue", 50, nil)
	monitor.EvaluateAlerts()
	if notifier.resolved == 1 && notifier.triggered == 1 {
		fmt.Println("  Record 50: ✓ exactly one resolve")
		monitorPassed++
	} else {
		fmt.Printf("  Record 50: ✗ FAIL - triggered=%d resolved=%d\n", notifier.triggered, notifier.resolved)
	}

	summary := monitor.Summary("daily_revenue", time.Hour)
	if summary.Min == 50 && summary.Max == 150 && summary.Count == 3 && summary.Current == 50 {
		fmt.Printf("  Summary: ✓ min=%.0f max=%.0f avg=%.1f count=%d\n", summary.Min, summary.Max, summary.Avg, summary.Count)
		monitorPassed++
	} else {
		fmt.Printf("  Summary: ✗ FAIL - %+v\n", summary)
	}

	if monitorPassed == 4 {
		fmt.Println()
		fmt.Println("✓ Monitor works correctly!")
	} else {
		fmt.Println()
		fmt.Printf("✗ Monitor test failed: %d/4 passed\n", monitorPassed)
	}
	fmt.Println()

	// Summary
	fmt.Println("==========================================")
	fmt.Println("Test Summary")
	fmt.Println("==========================================")

	totalTests := 5 + 7 + 6 + 4
	totalPassed := auditPassed + breakerPassed + recoveryPassed + monitorPassed

	fmt.Printf("Total Tests: %d\n", totalTests)
	fmt.Printf("Tests Passed: %d\n", totalPassed)
	fmt.Printf("Tests Failed: %d\n", totalTests-totalPassed)
	fmt.Println()

	if totalPassed == totalTests {
		fmt.Println("✓ All resilience core tests completed successfully!")
		os.Exit(0)
	}
	fmt.Println("✗ Some tests failed. Please review the output above.")
	os.Exit(1)
}
