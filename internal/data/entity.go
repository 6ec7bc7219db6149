package data

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"time"

	"Bulwark/internal/model"
	pkgerrors "Bulwark/pkg/errors"
	"Bulwark/pkg/metadata"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// EntityStatus represents the database ENUM type for status.
type EntityStatus string

// Entity status constants representing the current state of a managed entity.
const (
	EntityActive   EntityStatus = EntityStatus(model.EntityStatusActive)
	EntityPaused   EntityStatus = EntityStatus(model.EntityStatusPaused)
	EntityInactive EntityStatus = EntityStatus(model.EntityStatusInactive)
)

// EntityPriority represents the database ENUM type for priority.
type EntityPriority string

// Entity priority constants. Low-priority creation is blocked during
// recovery mode.
const (
	PriorityLow    EntityPriority = EntityPriority(model.EntityPriorityLow)
	PriorityNormal EntityPriority = EntityPriority(model.EntityPriorityNormal)
	PriorityHigh   EntityPriority = EntityPriority(model.EntityPriorityHigh)
)

// ErrStoreUnavailable is returned when the entity store has no database
// behind it (degraded startup).
var ErrStoreUnavailable = errors.New("entity store unavailable: database not configured")

// Entity is the GORM model for the managed_entities table.
// The struct carries JSON tags because entities pass through the JSON cache.
type Entity struct {
	ID        int64          `gorm:"primaryKey;column:id" json:"id"`
	Name      string         `gorm:"column:name;size:100;not null;uniqueIndex" json:"name"`
	Status    EntityStatus   `gorm:"column:status;type:enum('active','paused','inactive');default:'active';not null" json:"status"`
	Priority  EntityPriority `gorm:"column:priority;type:enum('low','normal','high');default:'normal';not null" json:"priority"`
	Budget    float64        `gorm:"column:budget;not null" json:"budget"`
	Spent     float64        `gorm:"column:spent;not null" json:"spent"`
	Revenue   float64        `gorm:"column:revenue;not null" json:"revenue"`
	Metadata  *string        `gorm:"column:metadata;type:json" json:"metadata,omitempty"` // JSON string (pointer for NULL support)
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the table name for GORM.
func (Entity) TableName() string {
	return "managed_entities"
}

// PerformanceRatio returns revenue per unit spent.
// Entities that spent nothing are treated as neutral (ratio 1).
func (e *Entity) PerformanceRatio() float64 {
	if e.Spent <= 0 {
		return 1.0
	}
	return e.Revenue / e.Spent
}

// RemainingBudget returns the unspent part of the budget.
func (e *Entity) RemainingBudget() float64 {
	return e.Budget - e.Spent
}

// Scan implements sql.Scanner interface for EntityStatus.
func (s *EntityStatus) Scan(value interface{}) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*s = EntityStatus(v)
	case string:
		*s = EntityStatus(v)
	default:
		return fmt.Errorf("cannot scan type %T into EntityStatus", value)
	}
	return nil
}

// Value implements driver.Valuer interface for EntityStatus.
func (s EntityStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements sql.Scanner interface for EntityPriority.
func (p *EntityPriority) Scan(value interface{}) error {
	if value == nil {
		*p = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*p = EntityPriority(v)
	case string:
		*p = EntityPriority(v)
	default:
		return fmt.Errorf("cannot scan type %T into EntityPriority", value)
	}
	return nil
}

// Value implements driver.Valuer interface for EntityPriority.
func (p EntityPriority) Value() (driver.Value, error) {
	return string(p), nil
}

// EntityRepo implements biz.EntityStore.
// Following Kratos v2 DDD architecture, the interface is defined in biz layer.
type EntityRepo struct {
	data   *Data
	db     *gorm.DB
	cache  CacheClient
	logger *log.Helper
}

// NewEntityRepo creates a new entity repository.
// With a nil database the repo still constructs; every operation then
// returns ErrStoreUnavailable so callers can degrade.
func NewEntityRepo(data *Data, db *gorm.DB, logger log.Logger) *EntityRepo {
	return &EntityRepo{
		data:   data,
		db:     db,
		cache:  data.GetCache(),
		logger: log.NewHelper(logger),
	}
}

// CreateEntity creates a new managed entity in the database.
// Returns classified store errors for better error handling in upper layers.
func (r *EntityRepo) CreateEntity(ctx context.Context, entity *Entity) error {
	if r.db == nil {
		return ErrStoreUnavailable
	}

	if entity.Status == "" {
		entity.Status = EntityActive
	}
	if entity.Priority == "" {
		entity.Priority = PriorityNormal
	}

	// Validate metadata JSON before it reaches the database
	if entity.Metadata != nil {
		meta, err := metadata.Parse(*entity.Metadata)
		if err != nil {
			return fmt.Errorf("invalid entity metadata: %w", err)
		}
		if err := meta.Validate(); err != nil {
			return fmt.Errorf("invalid entity metadata: %w", err)
		}
	}

	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		storeErr := pkgerrors.ClassifyStoreError(err)

		switch storeErr.Type {
		case pkgerrors.StoreErrorDuplicateKey:
			r.logger.Warnw("duplicate entity name",
				"name", entity.Name,
				"error", storeErr.Error())
		case pkgerrors.StoreErrorInvalidValue:
			r.logger.Errorw("invalid value in entity",
				"name", entity.Name,
				"error", storeErr.Error())
		case pkgerrors.StoreErrorConnection:
			r.logger.Errorw("database connection error",
				"error", storeErr.Error())
		default:
			r.logger.Errorw("failed to create entity",
				"name", entity.Name,
				"error", storeErr.Error())
		}

		return storeErr
	}

	r.invalidateListCache(ctx)

	r.logger.Infow("entity created", "id", entity.ID, "name", entity.Name, "priority", entity.Priority)
	return nil
}

// GetEntity retrieves an entity by ID with caching.
// Cache key: "entity:{id}", TTL: 5 minutes
func (r *EntityRepo) GetEntity(ctx context.Context, id int64) (*Entity, error) {
	if r.db == nil {
		return nil, ErrStoreUnavailable
	}

	cacheKey := fmt.Sprintf("%s:%d", CacheKeyEntity, id)

	// Try to get from cache first
	var cachedEntity Entity
	if err := r.cache.Get(ctx, cacheKey, &cachedEntity); err == nil {
		r.logger.Debugw("entity cache hit", "id", id)
		return &cachedEntity, nil
	}

	// Cache miss, query from database
	var entity Entity
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			r.logger.Errorf("failed to get entity: %v", err)
		}
		return nil, pkgerrors.ClassifyStoreError(err)
	}

	if err := r.cache.Set(ctx, cacheKey, &entity, TTLEntity); err != nil {
		r.logger.Warnw("failed to cache entity", "id", id, "error", err)
		// Cache failure doesn't affect the operation
	}

	r.logger.Debugw("entity fetched from database", "id", id)
	return &entity, nil
}

// ListActiveEntities retrieves all active entities with caching.
// Cache key: "entities:active", TTL: 1 minute
func (r *EntityRepo) ListActiveEntities(ctx context.Context) ([]*Entity, error) {
	if r.db == nil {
		return nil, ErrStoreUnavailable
	}

	cacheKey := BuildCacheKey(CacheKeyEntityList, string(EntityActive))

	var cached []*Entity
	if err := r.cache.Get(ctx, cacheKey, &cached); err == nil {
		r.logger.Debugw("active entity list cache hit", "count", len(cached))
		return cached, nil
	}

	var entities []*Entity
	if err := r.db.WithContext(ctx).
		Where("status = ?", EntityActive).
		Order("id ASC").
		Find(&entities).Error; err != nil {
		r.logger.Errorf("failed to list active entities: %v", err)
		return nil, pkgerrors.ClassifyStoreError(err)
	}

	if err := r.cache.Set(ctx, cacheKey, entities, TTLEntityList); err != nil {
		r.logger.Warnw("failed to cache active entity list", "error", err)
	}

	r.logger.Debugw("active entities listed", "count", len(entities))
	return entities, nil
}

// SetEntityStatus updates an entity status and clears its caches.
func (r *EntityRepo) SetEntityStatus(ctx context.Context, id int64, status EntityStatus) error {
	if r.db == nil {
		return ErrStoreUnavailable
	}

	result := r.db.WithContext(ctx).
		Model(&Entity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		r.logger.Errorf("failed to update entity status: %v", result.Error)
		return pkgerrors.ClassifyStoreError(result.Error)
	}

	if result.RowsAffected == 0 {
		return pkgerrors.ClassifyStoreError(gorm.ErrRecordNotFound)
	}

	r.invalidateEntityCaches(ctx, id)

	r.logger.Infow("entity status updated", "id", id, "status", status)
	return nil
}

// ScaleEntityBudget multiplies an entity budget by factor, never dropping
// below floor (or below the current budget when that is already under the
// floor). Returns the budget before and after scaling.
func (r *EntityRepo) ScaleEntityBudget(ctx context.Context, id int64, factor, floor float64) (float64, float64, error) {
	if r.db == nil {
		return 0, 0, ErrStoreUnavailable
	}

	var oldBudget, newBudget float64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entity Entity
		if err := tx.Where("id = ?", id).First(&entity).Error; err != nil {
			return err
		}

		oldBudget = entity.Budget
		newBudget = oldBudget * factor
		if lower := math.Min(oldBudget, floor); newBudget < lower {
			newBudget = lower
		}

		return tx.Model(&Entity{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"budget":     newBudget,
				"updated_at": time.Now(),
			}).Error
	})
	if err != nil {
		r.logger.Errorf("failed to scale entity budget: %v", err)
		return 0, 0, pkgerrors.ClassifyStoreError(err)
	}

	r.invalidateEntityCaches(ctx, id)

	r.logger.Infow("entity budget scaled",
		"id", id,
		"factor", factor,
		"old_budget", oldBudget,
		"new_budget", newBudget)
	return oldBudget, newBudget, nil
}

// AvailableBudget returns total budget minus spent across active entities.
func (r *EntityRepo) AvailableBudget(ctx context.Context) (float64, error) {
	if r.db == nil {
		return 0, ErrStoreUnavailable
	}

	var available float64
	row := r.db.WithContext(ctx).
		Model(&Entity{}).
		Where("status = ?", EntityActive).
		Select("COALESCE(SUM(budget - spent), 0)").
		Row()
	if err := row.Scan(&available); err != nil {
		r.logger.Errorf("failed to compute available budget: %v", err)
		return 0, pkgerrors.ClassifyStoreError(err)
	}

	return available, nil
}

// HealthTier grades the store by the share of budget still available:
// >=25% healthy, >=10% warning, >0 critical, otherwise bankrupt.
// A store with no active budget has nothing at risk and reports healthy.
func (r *EntityRepo) HealthTier(ctx context.Context) (string, error) {
	if r.db == nil {
		return "", ErrStoreUnavailable
	}

	var agg struct {
		Total float64
		Used  float64
	}
	if err := r.db.WithContext(ctx).
		Model(&Entity{}).
		Where("status = ?", EntityActive).
		Select("COALESCE(SUM(budget), 0) AS total, COALESCE(SUM(spent), 0) AS used").
		Scan(&agg).Error; err != nil {
		r.logger.Errorf("failed to compute health tier: %v", err)
		return "", pkgerrors.ClassifyStoreError(err)
	}

	if agg.Total <= 0 {
		return model.HealthTierHealthy, nil
	}

	available := agg.Total - agg.Used
	ratio := available / agg.Total

	switch {
	case ratio >= 0.25:
		return model.HealthTierHealthy, nil
	case ratio >= 0.10:
		return model.HealthTierWarning, nil
	case available > 0:
		return model.HealthTierCritical, nil
	default:
		return model.HealthTierBankrupt, nil
	}
}

// invalidateEntityCaches clears the single entity cache and the list cache.
func (r *EntityRepo) invalidateEntityCaches(ctx context.Context, id int64) {
	cacheKey := fmt.Sprintf("%s:%d", CacheKeyEntity, id)
	if err := r.cache.Delete(ctx, cacheKey); err != nil {
		r.logger.Warnw("failed to delete entity cache", "id", id, "error", err)
	}
	r.invalidateListCache(ctx)
}

// invalidateListCache clears the active entity list cache.
func (r *EntityRepo) invalidateListCache(ctx context.Context) {
	cacheKey := BuildCacheKey(CacheKeyEntityList, string(EntityActive))
	if err := r.cache.Delete(ctx, cacheKey); err != nil {
		r.logger.Warnw("failed to delete entity list cache", "error", err)
	}
}
