// Package biz contains business logic layer implementations.
// This layer holds the core business rules and domain models.
package biz

import (
	"Bulwark/internal/data"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	DefaultRecoveryPolicy,
	NewBreakerManager,
	NewAuditUseCase,
	NewRecoveryUseCase,
	NewMonitorUseCase,
	// Import data layer providers
	data.NewEntityRepo,
	data.NewSegmentRepo,
	data.NewLogAlertNotifier,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(EntityStore), new(*data.EntityRepo)),
	wire.Bind(new(AuditSegmentRepo), new(*data.SegmentRepo)),
	wire.Bind(new(AlertNotifier), new(*data.LogAlertNotifier)),
)
