package biz

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"Bulwark/internal/conf"
	"Bulwark/internal/data"
	"Bulwark/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

// MockEntityStore is a mock implementation of EntityStore.
type MockEntityStore struct {
	mock.Mock
}

func (m *MockEntityStore) CreateEntity(ctx context.Context, entity *data.Entity) error {
	args := m.Called(ctx, entity)
	return args.Error(0)
}

func (m *MockEntityStore) GetEntity(ctx context.Context, id int64) (*data.Entity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*data.Entity), args.Error(1)
}

func (m *MockEntityStore) ListActiveEntities(ctx context.Context) ([]*data.Entity, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*data.Entity), args.Error(1)
}

func (m *MockEntityStore) SetEntityStatus(ctx context.Context, id int64, status data.EntityStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockEntityStore) ScaleEntityBudget(ctx context.Context, id int64, factor, floor float64) (float64, float64, error) {
	args := m.Called(ctx, id, factor, floor)
	return args.Get(0).(float64), args.Get(1).(float64), args.Error(2)
}

func (m *MockEntityStore) AvailableBudget(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockEntityStore) HealthTier(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// Helper to create an orchestrator over a mock store and a real audit trail.
func newTestRecovery(t *testing.T, rc *conf.Recovery) (*RecoveryUseCase, *MockEntityStore, *AuditUseCase) {
	t.Helper()
	logger := log.NewStdLogger(os.Stdout)

	repo, cleanup, err := data.NewSegmentRepo(&conf.Audit{Dir: t.TempDir()}, logger)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	audit, err := NewAuditUseCase(repo, logger)
	require.NoError(t, err)

	store := new(MockEntityStore)
	breakers := NewBreakerManager(&conf.Breaker{FailureThreshold: 2}, logger)
	uc := NewRecoveryUseCase(rc, DefaultRecoveryPolicy(nil), store, breakers, audit, logger)
	return uc, store, audit
}

func healthyHost() *model.HostState {
	return &model.HostState{
		Day:             10,
		NetWorth:        5000,
		FinancialHealth: model.HealthTierHealthy,
		AvailableBudget: 2000,
	}
}

func actionKinds(actions []model.RecoveryAction) []string {
	kinds := make([]string, 0, len(actions))
	for _, a := range actions {
		kinds = append(kinds, a.Kind())
	}
	return kinds
}

func TestNewRecoveryUseCase_Defaults(t *testing.T) {
	uc, store, _ := newTestRecovery(t, nil)
	store.On("HealthTier", mock.Anything).Return(model.HealthTierHealthy, nil)

	assert.Equal(t, 200, uc.historyCapacity)
	assert.Equal(t, 5*time.Minute, uc.recentWindow)
	assert.Equal(t, 5*time.Minute, uc.dwellMinimum)

	status := uc.GetRecoveryStatus(context.Background())
	assert.False(t, status.RecoveryMode)
	assert.Nil(t, status.RecoveryModeSince)
	assert.Zero(t, status.ErrorCount)
}

func TestNewRecoveryUseCase_ConfigOverrides(t *testing.T) {
	uc, _, _ := newTestRecovery(t, &conf.Recovery{
		HistoryCapacity: 50,
		RecentWindow:    durationpb.New(time.Minute),
		DwellMinimum:    durationpb.New(2 * time.Minute),
	})

	assert.Equal(t, 50, uc.historyCapacity)
	assert.Equal(t, time.Minute, uc.recentWindow)
	assert.Equal(t, 2*time.Minute, uc.dwellMinimum)
}

func TestRecoveryUseCase_RecoverFromError_APIFailure(t *testing.T) {
	uc, _, _ := newTestRecovery(t, nil)

	executed := uc.RecoverFromError(context.Background(),
		errors.New("connection refused by ads endpoint"), nil, healthyHost())

	assert.Equal(t, []string{model.ActionKindRetry, model.ActionKindFallback}, actionKinds(executed))

	stats := uc.GetErrorStats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByCategory[model.ErrorCategoryAPI])
	assert.Equal(t, 1, stats.BySeverity[model.SeverityLow])
}

func TestRecoveryUseCase_RecoverFromError_NilCause(t *testing.T) {
	uc, _, _ := newTestRecovery(t, nil)

	executed := uc.RecoverFromError(context.Background(), nil, nil, nil)

	assert.Equal(t, []string{model.ActionKindRetry}, actionKinds(executed))
	assert.Equal(t, 1, uc.GetErrorStats().ByCategory[model.ErrorCategorySystem])
}

func TestRecoveryUseCase_RecoverFromError_FallbackCategory(t *testing.T) {
	uc, _, _ := newTestRecovery(t, nil)

	executed := uc.RecoverFromError(context.Background(),
		errors.New("unrecognized failure"),
		&model.ErrorContext{Operation: "sync_creatives", Category: model.ErrorCategoryCampaign, Day: 12},
		healthyHost())

	require.Len(t, executed, 1)
	fallback, ok := executed[0].(model.FallbackAction)
	require.True(t, ok)
	assert.Equal(t, "manual", fallback.Mode)
	assert.Equal(t, 1, uc.GetErrorStats().ByCategory[model.ErrorCategoryCampaign])
}

// Test RecoverFromError - a bankruptcy message always produces an abort
func TestRecoveryUseCase_BankruptMessageAborts(t *testing.T) {
	uc, store, _ := newTestRecovery(t, nil)
	store.On("ListActiveEntities", mock.Anything).Return([]*data.Entity{}, nil)

	executed := uc.RecoverFromError(context.Background(),
		errors.New("daily settlement failed: bankrupt"), nil, healthyHost())

	kinds := actionKinds(executed)
	assert.Contains(t, kinds, model.ActionKindAbort)
	assert.Contains(t, kinds, model.ActionKindConservative)
	assert.Equal(t, 1, uc.GetErrorStats().BySeverity[model.SeverityCritical])
}

func TestRecoveryUseCase_NegativeNetWorthAborts(t *testing.T) {
	uc, store, _ := newTestRecovery(t, nil)
	store.On("ListActiveEntities", mock.Anything).Return([]*data.Entity{}, nil)

	host := &model.HostState{NetWorth: -50, FinancialHealth: model.HealthTierWarning}
	executed := uc.RecoverFromError(context.Background(),
		errors.New("unexpected failure"), nil, host)

	assert.Contains(t, actionKinds(executed), model.ActionKindAbort)
}

// Test RecoverFromError - the tenth error in the window flips recovery mode
func TestRecoveryUseCase_ExcessiveErrorsEnterRecoveryMode(t *testing.T) {
	uc, store, _ := newTestRecovery(t, nil)
	store.On("ListActiveEntities", mock.Anything).Return([]*data.Entity{}, nil)
	store.On("HealthTier", mock.Anything).Return(model.HealthTierHealthy, nil)

	for i := 0; i < 9; i++ {
		uc.RecoverFromError(context.Background(), errors.New("request timeout calling ads api"), nil, nil)
	}
	assert.False(t, uc.GetRecoveryStatus(context.Background()).RecoveryMode)

	executed := uc.RecoverFromError(context.Background(), errors.New("request timeout calling ads api"), nil, nil)

	status := uc.GetRecoveryStatus(context.Background())
	assert.True(t, status.RecoveryMode)
	require.NotNil(t, status.RecoveryModeSince)
	assert.True(t, status.BlockLowPriority)

	kinds := actionKinds(executed)
	assert.Contains(t, kinds, model.ActionKindConservative)
	assert.Contains(t, kinds, model.ActionKindReset)
}

func TestRecoveryUseCase_EntryBlocksLowPriorityCreation(t *testing.T) {
	uc, store, _ := newTestRecovery(t, nil)
	store.On("ListActiveEntities", mock.Anything).Return([]*data.Entity{}, nil)

	assert.True(t, uc.AllowEntityCreation(data.PriorityLow))
	assert.True(t, uc.AllowEntityCreation(data.PriorityNormal))

	uc.RecoverFromError(context.Background(), errors.New("bankrupt"), nil, nil)

	assert.False(t, uc.AllowEntityCreation(data.PriorityLow))
	assert.True(t, uc.AllowEntityCreation(data.PriorityNormal))
	assert.True(t, uc.AllowEntityCreation(data.PriorityHigh))
}

// Test ExitRecoveryMode - refused before the dwell minimum, even with a
// cleared error history
func TestRecoveryUseCase_ExitRecoveryMode_DwellGate(t *testing.T) {
	uc, store, _ := newTestRecovery(t, nil)
	store.On("ListActiveEntities", mock.Anything).Return([]*data.Entity{}, nil)
	store.On("HealthTier", mock.Anything).Return(model.HealthTierHealthy, nil)

	clock := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	uc.now = func() time.Time { return clock }

	uc.RecoverFromError(context.Background(), errors.New("bankrupt"), nil, nil)
	require.True(t, uc.GetRecoveryStatus(context.Background()).RecoveryMode)

	uc.ClearErrorHistory()
	clock = clock.Add(time.Minute)
	assert.False(t, uc.ExitRecoveryMode(context.Background(), healthyHost()))
	assert.True(t, uc.GetRecoveryStatus(context.Background()).RecoveryMode)

	clock = clock.Add(5 * time.Minute)
	assert.True(t, uc.ExitRecoveryMode(context.Background(), healthyHost()))
	status := uc.GetRecoveryStatus(context.Background())
	assert.False(t, status.RecoveryMode)
	assert.False(t, status.BlockLowPriority)
	assert.True(t, uc.AllowEntityCreation(data.PriorityLow))

	// Not in recovery mode anymore
	assert.False(t, uc.ExitRecoveryMode(context.Background(), healthyHost()))
}

func TestRecoveryUseCase_ExitRecoveryMode_RecentErrorsRefuse(t *testing.T) {
	uc, store, _ := newTestRecovery(t, nil)
	store.On("ListActiveEntities", mock.Anything).Return([]*data.Entity{}, nil)

	clock := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	uc.now = func() time.Time { return clock }

	uc.RecoverFromError(context.Background(), errors.New("bankrupt"), nil, nil)
	clock = clock.Add(10 * time.Minute)

	// Three fresh errors keep recovery mode pinned
	for i := 0; i < 3; i++ {
		uc.RecoverFromError(context.Background(), errors.New("network flapping"), nil, healthyHost())
	}
	assert.False(t, uc.ExitRecoveryMode(context.Background(), healthyHost()))

	// Once they age out of the window the exit goes through
	clock = clock.Add(6 * time.Minute)
	assert.True(t, uc.ExitRecoveryMode(context.Background(), healthyHost()))
}

func TestRecoveryUseCase_ExitRecoveryMode_HostHealthRefuses(t *testing.T) {
	uc, store, _ := newTestRecovery(t, nil)
	store.On("ListActiveEntities", mock.Anything).Return([]*data.Entity{}, nil)

	clock := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	uc.now = func() time.Time { return clock }

	uc.RecoverFromError(context.Background(), errors.New("bankrupt"), nil, nil)
	uc.ClearErrorHistory()
	clock = clock.Add(10 * time.Minute)

	assert.False(t, uc.ExitRecoveryMode(context.Background(), &model.HostState{Bankrupt: true, NetWorth: 100}))
	assert.False(t, uc.ExitRecoveryMode(context.Background(), &model.HostState{NetWorth: -10, FinancialHealth: model.HealthTierWarning}))
	assert.False(t, uc.ExitRecoveryMode(context.Background(), &model.HostState{NetWorth: 100, FinancialHealth: model.HealthTierCritical}))
	assert.True(t, uc.ExitRecoveryMode(context.Background(), healthyHost()))
}

func TestRecoveryUseCase_ExitRecoveryMode_ResetsBreakers(t *testing.T) {
	uc, store, audit := newTestRecovery(t, nil)
	store.On("ListActiveEntities", mock.Anything).Return([]*data.Entity{}, nil)

	clock := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	uc.now = func() time.Time { return clock }

	uc.RecoverFromError(context.Background(), errors.New("bankrupt"), nil, nil)
	uc.ClearErrorHistory()

	// Trip a breaker while recovery mode is active
	for i := 0; i < 2; i++ {
		_, err := uc.ExecuteWithCircuitBreaker(context.Background(), "ads-sync", failingOp("ads api down"))
		require.Error(t, err)
	}
	require.Equal(t, model.BreakerStateOpen, uc.breakers.State("ads-sync"))

	clock = clock.Add(10 * time.Minute)
	require.True(t, uc.ExitRecoveryMode(context.Background(), healthyHost()))
	assert.Equal(t, model.BreakerStateClosed, uc.breakers.State("ads-sync"))

	exited, err := audit.Search(context.Background(), &model.AuditCriteria{
		ActionContains: model.AuditActionRecoveryExited,
	})
	require.NoError(t, err)
	assert.Len(t, exited, 1)
}

// Test applyConservative - underperformers deactivated, the rest scaled down
func TestRecoveryUseCase_ConservativeCuts(t *testing.T) {
	uc, store, audit := newTestRecovery(t, nil)
	ctx := context.Background()

	underperformer := &data.Entity{ID: 1, Name: "laggard", Status: data.EntityActive, Budget: 800, Spent: 200, Revenue: 50}
	performer := &data.Entity{ID: 2, Name: "workhorse", Status: data.EntityActive, Budget: 1000, Spent: 100, Revenue: 150}

	store.On("ListActiveEntities", mock.Anything).Return([]*data.Entity{underperformer, performer}, nil)
	store.On("SetEntityStatus", mock.Anything, int64(1), data.EntityInactive).Return(nil)
	store.On("ScaleEntityBudget", mock.Anything, int64(2), 0.5, 0.0).Return(1000.0, 500.0, nil)

	executed := uc.RecoverFromError(ctx, errors.New("insufficient budget for campaign"), nil, healthyHost())

	assert.Equal(t, []string{model.ActionKindConservative}, actionKinds(executed))
	store.AssertExpectations(t)

	entries, err := audit.Search(ctx, &model.AuditCriteria{Category: model.AuditCategoryEntity})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.AuditActionEntityDeactivated, entries[0].Action)
	assert.Equal(t, model.AuditActionBudgetScaled, entries[1].Action)
	assert.Equal(t, 1000.0, entries[1].PriorState["budget"])
	assert.Equal(t, 500.0, entries[1].NewState["budget"])
}

func TestRecoveryUseCase_ConservativePartialFailure(t *testing.T) {
	uc, store, audit := newTestRecovery(t, nil)
	ctx := context.Background()

	stuck := &data.Entity{ID: 1, Status: data.EntityActive, Spent: 200, Revenue: 10}
	healthy := &data.Entity{ID: 2, Status: data.EntityActive, Spent: 100, Revenue: 200}

	store.On("ListActiveEntities", mock.Anything).Return([]*data.Entity{stuck, healthy}, nil)
	store.On("SetEntityStatus", mock.Anything, int64(1), data.EntityInactive).Return(errors.New("row locked"))
	store.On("ScaleEntityBudget", mock.Anything, int64(2), 0.5, 0.0).Return(400.0, 200.0, nil)

	executed := uc.RecoverFromError(ctx, errors.New("insufficient budget"), nil, healthyHost())

	// One bad row does not fail the whole cut
	assert.Contains(t, actionKinds(executed), model.ActionKindConservative)

	entries, err := audit.Search(ctx, &model.AuditCriteria{Category: model.AuditCategoryEntity})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.AuditActionBudgetScaled, entries[0].Action)
}

// Test executeActions - a failing action is skipped, the rest still run
func TestRecoveryUseCase_ActionFailuresSkipped(t *testing.T) {
	uc, store, _ := newTestRecovery(t, nil)
	store.On("ListActiveEntities", mock.Anything).Return(nil, errors.New("store down"))

	executed := uc.RecoverFromError(context.Background(), errors.New("bankrupt"), nil, nil)

	kinds := actionKinds(executed)
	assert.NotContains(t, kinds, model.ActionKindConservative)
	assert.Contains(t, kinds, model.ActionKindReset)
	assert.Contains(t, kinds, model.ActionKindAbort)
}

func TestRecoveryUseCase_SeverityEscalatesOnRepeats(t *testing.T) {
	uc, _, _ := newTestRecovery(t, nil)

	for i := 0; i < 4; i++ {
		uc.RecoverFromError(context.Background(), errors.New("api timeout"), nil, healthyHost())
	}

	stats := uc.GetErrorStats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 4, stats.ByCategory[model.ErrorCategoryAPI])
	assert.Equal(t, 3, stats.BySeverity[model.SeverityLow])
	assert.Equal(t, 1, stats.BySeverity[model.SeverityMedium])
}

func TestRecoveryUseCase_GetErrorStats(t *testing.T) {
	uc, _, _ := newTestRecovery(t, nil)

	clock := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	uc.now = func() time.Time { return clock }

	uc.RecoverFromError(context.Background(), errors.New("connection reset"), nil, healthyHost())
	clock = clock.Add(10 * time.Minute)
	uc.RecoverFromError(context.Background(), errors.New("inventory sync failed"), nil, healthyHost())

	stats := uc.GetErrorStats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByCategory[model.ErrorCategoryAPI])
	assert.Equal(t, 1, stats.ByCategory[model.ErrorCategoryEntity])
	assert.Equal(t, 1, stats.Recent)
	require.NotNil(t, stats.Oldest)
	require.NotNil(t, stats.Newest)
	assert.True(t, stats.Newest.After(*stats.Oldest))
}

func TestRecoveryUseCase_HistoryCapacity(t *testing.T) {
	uc, _, _ := newTestRecovery(t, &conf.Recovery{HistoryCapacity: 5})

	for i := 0; i < 8; i++ {
		uc.RecoverFromError(context.Background(), errors.New("api timeout"), nil, healthyHost())
	}

	assert.Equal(t, 5, uc.GetErrorStats().Total)
}

func TestRecoveryUseCase_ClearErrorHistory(t *testing.T) {
	uc, _, _ := newTestRecovery(t, nil)

	uc.RecoverFromError(context.Background(), errors.New("api timeout"), nil, healthyHost())
	require.Equal(t, 1, uc.GetErrorStats().Total)

	uc.ClearErrorHistory()
	stats := uc.GetErrorStats()
	assert.Zero(t, stats.Total)
	assert.Nil(t, stats.Oldest)
}

func TestRecoveryUseCase_ExecuteWithCircuitBreaker(t *testing.T) {
	uc, _, _ := newTestRecovery(t, nil)
	ctx := context.Background()

	out, err := uc.ExecuteWithCircuitBreaker(ctx, "billing", succeedingOp("ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	for i := 0; i < 2; i++ {
		_, err = uc.ExecuteWithCircuitBreaker(ctx, "billing", failingOp("billing down"))
		require.Error(t, err)
	}

	_, err = uc.ExecuteWithCircuitBreaker(ctx, "billing", succeedingOp("ok"))
	require.Error(t, err)
	assert.True(t, IsCircuitOpen(err))
}

// Test OnStateChange - breaker transitions land in the audit trail
func TestRecoveryUseCase_BreakerTransitionsAudited(t *testing.T) {
	uc, _, audit := newTestRecovery(t, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := uc.ExecuteWithCircuitBreaker(ctx, "ads-sync", failingOp("ads api down"))
		require.Error(t, err)
	}
	require.Equal(t, model.BreakerStateOpen, uc.breakers.State("ads-sync"))

	opened, err := audit.Search(ctx, &model.AuditCriteria{ActionContains: model.AuditActionCircuitOpened})
	require.NoError(t, err)
	require.Len(t, opened, 1)
	assert.Equal(t, "ads-sync", opened[0].Details["breaker"])

	uc.breakers.Reset("ads-sync")

	closed, err := audit.Search(ctx, &model.AuditCriteria{ActionContains: model.AuditActionCircuitClosed})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "ads-sync", closed[0].Details["breaker"])
}

func TestRecoveryUseCase_GetRecoveryStatus(t *testing.T) {
	uc, store, _ := newTestRecovery(t, nil)
	ctx := context.Background()
	store.On("HealthTier", mock.Anything).Return(model.HealthTierWarning, nil)

	_, err := uc.ExecuteWithCircuitBreaker(ctx, "billing", succeedingOp("ok"))
	require.NoError(t, err)
	uc.RecoverFromError(ctx, errors.New("api timeout"), nil, healthyHost())

	status := uc.GetRecoveryStatus(ctx)
	assert.False(t, status.RecoveryMode)
	assert.Equal(t, 1, status.ErrorCount)
	assert.Equal(t, 1, status.RecentErrors)
	assert.Equal(t, model.HealthTierWarning, status.StoreHealth)
	require.Contains(t, status.CircuitBreakers, "billing")
	assert.Equal(t, model.BreakerStateClosed, status.CircuitBreakers["billing"].State)
}

func TestRecoveryUseCase_GetRecoveryStatus_StoreUnavailable(t *testing.T) {
	uc, store, _ := newTestRecovery(t, nil)
	store.On("HealthTier", mock.Anything).Return("", data.ErrStoreUnavailable)

	status := uc.GetRecoveryStatus(context.Background())
	assert.Empty(t, status.StoreHealth)
}
