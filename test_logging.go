//go:build ignore
// +build ignore

package main

import (
	"context"

	"Bulwark/internal/conf"
	pkglog "Bulwark/pkg/log"
)

func main() {
	// 创建日志配置
	logConf := &conf.Log{
		Level:  "debug",
		Format: "console", // 使用 console 格式以启用 Emoji Encoder
		Env:    "development",
	}

	// 创建 Zap logger
	zapLogger, err := pkglog.NewZapLogger(logConf)
	if err != nil {
		panic(err)
	}

	// 创建 Kratos adapter
	kratosLogger := pkglog.NewKratosAdapter(zapLogger)

	// 创建 LogHelper
	helper := pkglog.NewLogHelper(kratosLogger)

	ctx := context.Background()

	// 测试各种日志类型
	println("=== 测试日志输出格式 ===\n")

	helper.Startup("Bulwark service starting", "version", "1.0.0", "audit_dir", "./audit")
	helper.Breaker("Circuit breaker opened", "breaker", "ads-sync", "failures", 5)
	helper.Recovery("Recovery mode entered", "trigger", "excessive errors", "recent_errors", 12)
	helper.Audit("Audit entry recorded", "entry_id", "AUD-20250610100000-1", "action", "transaction_income")
	helper.Integrity("Chain verification completed", "entries_checked", 1500, "valid", true)
	helper.Alert("Alert triggered", "alert", "revenue-spike", "value", 150.0, "threshold", 100.0)
	helper.Metric("Metric recorded", "metric", "daily_revenue", "value", 1250.5)
	helper.Scheduler("Maintenance job executed", "job", "retention_prune", "dropped", 42)
	helper.Database("Query executed successfully", "table", "entities", "duration_ms", 5)
	helper.Redis("Cache hit", "key", "entity:123", "ttl", 300)
	helper.Entity("Entity deactivated", "entity_id", 42, "reason", "performance below floor")
	helper.Security("Tampered audit entry detected", "entry_id", "AUD-20250610100000-7", "index", 7)
	helper.Performance("Operation completed", "operation", "verify_integrity", "duration_ms", 250)
	helper.Success("Recovery cycle completed", "actions_executed", 3)

	// 测试便捷方法
	helper.OperationCompleted(ctx, "campaign_sync", 120)
	helper.SlowOperation(ctx, "entity_scan", 5200, 1000)
	helper.ErrorCount(ctx, "api", 4)
	helper.CacheStats("entity-cache", 512, 1024, 9800, 200, 15)

	println("\n=== 日志输出完成 ===")
}
