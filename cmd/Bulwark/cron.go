package main

import (
	"context"
	"fmt"
	"time"

	"Bulwark/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// Maintenance schedule: alert evaluation every 30 seconds, retention pruning
// every 5 minutes, recovery status report hourly and a full audit chain
// verification nightly at 02:30.
const (
	alertEvaluationSpec   = "*/30 * * * * *"
	retentionPruneSpec    = "0 */5 * * * *"
	statusReportSpec      = "0 0 * * * *"
	chainVerificationSpec = "0 30 2 * * *"
)

// MaintenanceJobs owns the background schedule that drives alert evaluation,
// metric retention pruning and the nightly audit chain verification. Jobs do
// not run until Start is called.
type MaintenanceJobs struct {
	cron   *cron.Cron
	logger *log.Helper
}

// NewMaintenanceJobs registers every maintenance job on a seconds-resolution
// cron schedule.
func NewMaintenanceJobs(recovery *biz.RecoveryUseCase, audit *biz.AuditUseCase, monitor *biz.MonitorUseCase, logger log.Logger) (*MaintenanceJobs, error) {
	helper := log.NewHelper(logger)
	c := cron.New(cron.WithSeconds())

	if _, err := c.AddFunc(alertEvaluationSpec, monitor.EvaluateAlerts); err != nil {
		return nil, fmt.Errorf("register alert evaluation job: %w", err)
	}

	if _, err := c.AddFunc(retentionPruneSpec, func() {
		monitor.PruneRetention()
	}); err != nil {
		return nil, fmt.Errorf("register retention prune job: %w", err)
	}

	if _, err := c.AddFunc(statusReportSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		status := recovery.GetRecoveryStatus(ctx)
		helper.Infow(
			"msg", "recovery status report",
			"recovery_mode", status.RecoveryMode,
			"recent_errors", status.RecentErrors,
			"error_count", status.ErrorCount,
			"breakers", len(status.CircuitBreakers),
			"store_health", status.StoreHealth,
		)
	}); err != nil {
		return nil, fmt.Errorf("register status report job: %w", err)
	}

	if _, err := c.AddFunc(chainVerificationSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		report, err := audit.VerifyIntegrity(ctx, nil, nil)
		if err != nil {
			helper.Errorw("msg", "nightly audit chain verification failed", "error", err)
			return
		}
		if !report.Valid {
			helper.Errorw(
				"msg", "nightly audit chain verification found violations",
				"entries_checked", report.EntriesChecked,
				"violations", len(report.Errors),
			)
			return
		}
		helper.Infow(
			"msg", "nightly audit chain verified",
			"entries_checked", report.EntriesChecked,
		)
	}); err != nil {
		return nil, fmt.Errorf("register chain verification job: %w", err)
	}

	return &MaintenanceJobs{cron: c, logger: helper}, nil
}

// Start begins the schedule.
func (j *MaintenanceJobs) Start() {
	j.cron.Start()
	j.logger.Infow(
		"msg", "maintenance schedule started",
		"alert_evaluation", alertEvaluationSpec,
		"retention_prune", retentionPruneSpec,
		"status_report", statusReportSpec,
		"chain_verification", chainVerificationSpec,
	)
}

// Stop halts the schedule and waits for running jobs to finish or the
// context to expire.
func (j *MaintenanceJobs) Stop(ctx context.Context) {
	stopped := j.cron.Stop()
	select {
	case <-stopped.Done():
		j.logger.Infow("msg", "maintenance schedule stopped")
	case <-ctx.Done():
		j.logger.Warnw("msg", "maintenance schedule stop timed out")
	}
}
