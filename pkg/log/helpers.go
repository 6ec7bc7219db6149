package log

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// LogHelper extends the Kratos log.Helper with category methods. Each method
// appends a "type" field, which drives the EmojiConsoleEncoder mapping and
// gives downstream sinks a stable category key per message.
type LogHelper struct {
	*log.Helper
}

// NewLogHelper creates the enriched log helper
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{
		Helper: log.NewHelper(logger),
	}
}

// Startup logs service startup progress (emoji: 🚀)
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "startup")
	h.Infow(allKvs...)
}

// Success logs a completed operation (emoji: ✅)
func (h *LogHelper) Success(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "success")
	h.Infow(allKvs...)
}

// Breaker logs circuit breaker transitions and rejections (emoji: 🔌)
func (h *LogHelper) Breaker(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "breaker")
	h.Warnw(allKvs...)
}

// Recovery logs error-recovery activity (emoji: 🚑)
func (h *LogHelper) Recovery(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "recovery")
	h.Warnw(allKvs...)
}

// Audit logs audit trail activity (emoji: 📋)
func (h *LogHelper) Audit(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "audit")
	h.Infow(allKvs...)
}

// Integrity logs hash chain verification failures (emoji: 🔏).
// Error level: a broken chain is one of the two page-a-human conditions.
func (h *LogHelper) Integrity(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "integrity")
	h.Errorw(allKvs...)
}

// Alert logs a triggered monitor alert (emoji: 🚨).
// Error level: alert triggers are the other page-a-human condition.
func (h *LogHelper) Alert(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "alert")
	h.Errorw(allKvs...)
}

// Metric logs metric registration and recording detail (emoji: 📊)
func (h *LogHelper) Metric(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "metric")
	h.Debugw(allKvs...)
}

// Scheduler logs periodic job activity (emoji: 🎯)
func (h *LogHelper) Scheduler(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "scheduler")
	h.Infow(allKvs...)
}

// Database logs entity store operations (emoji: 💾)
func (h *LogHelper) Database(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "database")
	h.Debugw(allKvs...)
}

// Redis logs cache backend operations (emoji: 📦)
func (h *LogHelper) Redis(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "redis")
	h.Debugw(allKvs...)
}

// Entity logs managed entity mutations (emoji: 🏷️)
func (h *LogHelper) Entity(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "entity")
	h.Infow(allKvs...)
}

// Security logs security-relevant events (emoji: 🔒)
func (h *LogHelper) Security(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "security")
	h.Warnw(allKvs...)
}

// Performance logs timing observations (emoji: ⏱️)
func (h *LogHelper) Performance(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "performance")
	h.Infow(allKvs...)
}

// ========== Context-aware methods ==========
// These extract trace values (operation ID, actor) from the Context.

// OperationCompleted logs a finished unit of work with its duration.
func (h *LogHelper) OperationCompleted(ctx context.Context, operation string, durationMs int64, kvs ...interface{}) {
	opCtx := GetOperationContext(ctx)

	msg := fmt.Sprintf("[%s] %s completed in %s", opCtx.OperationID, operation, formatDuration(durationMs))

	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"operation_id", opCtx.OperationID,
		"operation", operation,
		"actor", opCtx.Actor,
		"duration_ms", durationMs,
		"type", "success",
	)
	h.Infow(allKvs...)
}

// SlowOperation warns about a unit of work exceeding its threshold (emoji: 🐌).
func (h *LogHelper) SlowOperation(ctx context.Context, operation string, durationMs, thresholdMs int64, kvs ...interface{}) {
	opCtx := GetOperationContext(ctx)

	msg := fmt.Sprintf("[%s] Slow operation detected | %s | %s (threshold: %s)",
		opCtx.OperationID, operation, formatDuration(durationMs), formatDuration(thresholdMs))

	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"operation_id", opCtx.OperationID,
		"operation", operation,
		"duration_ms", durationMs,
		"threshold_ms", thresholdMs,
		"type", "slow_operation",
	)
	h.Warnw(allKvs...)
}

// ErrorCount warns about accumulating errors of one category (emoji: ⚠️).
func (h *LogHelper) ErrorCount(ctx context.Context, category string, count int, kvs ...interface{}) {
	opCtx := GetOperationContext(ctx)

	msg := fmt.Sprintf("[%s] Error count - Category: %s, Count: %d", opCtx.OperationID, category, count)

	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"operation_id", opCtx.OperationID,
		"category", category,
		"count", count,
		"type", "error_count",
	)
	h.Warnw(allKvs...)
}

// CacheStats logs cache effectiveness counters (emoji: 🧹)
func (h *LogHelper) CacheStats(cacheName string, size, maxSize, hits, misses, evictions int64, kvs ...interface{}) {
	var hitRate float64
	total := hits + misses
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	msg := fmt.Sprintf("Cache stats - %s | Size: %d/%d, Hit Rate: %.2f%%, Evictions: %d",
		cacheName, size, maxSize, hitRate, evictions)

	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"cache_name", cacheName,
		"size", size,
		"max_size", maxSize,
		"hits", hits,
		"misses", misses,
		"evictions", evictions,
		"hit_rate", fmt.Sprintf("%.2f%%", hitRate),
		"total_requests", total,
		"type", "cache_stats",
	)
	h.Infow(allKvs...)
}
