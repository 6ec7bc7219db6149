package biz

import (
	"context"

	"Bulwark/internal/model"
)

// AuditSegmentRepo defines the append-only audit segment store interface.
// Following Kratos v2 DDD architecture, interfaces are defined in biz layer.
// Implementation is in data layer (data.SegmentRepo).
type AuditSegmentRepo interface {
	// Append writes one entry to the segment for its timestamp's month.
	Append(ctx context.Context, entry *model.AuditEntry) error
	// LastEntry returns the newest persisted entry, or nil when no
	// segments exist yet.
	LastEntry(ctx context.Context) (*model.AuditEntry, error)
	// Scan streams every persisted entry in chain order.
	Scan(ctx context.Context, fn func(*model.AuditEntry) error) error
}
