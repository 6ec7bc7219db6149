package biz

import (
	"context"

	"Bulwark/internal/data"
)

// EntityStore defines the managed entity repository interface.
// Following Kratos v2 DDD architecture, interfaces are defined in biz layer.
// Implementation is in data layer (data.EntityRepo).
type EntityStore interface {
	CreateEntity(ctx context.Context, entity *data.Entity) error
	GetEntity(ctx context.Context, id int64) (*data.Entity, error)
	ListActiveEntities(ctx context.Context) ([]*data.Entity, error)
	SetEntityStatus(ctx context.Context, id int64, status data.EntityStatus) error
	// ScaleEntityBudget multiplies the entity budget by factor, never
	// dropping below floor unless the budget already was. Returns the
	// budget before and after.
	ScaleEntityBudget(ctx context.Context, id int64, factor, floor float64) (float64, float64, error)
	AvailableBudget(ctx context.Context) (float64, error)
	HealthTier(ctx context.Context) (string, error)
}
