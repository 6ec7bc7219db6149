package log

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// contextKey is the private key type used to store an OperationContext.
type contextKey string

const operationContextKey contextKey = "bulwark_operation_context"

// OperationContext carries per-call trace values across components. It is how
// audit entries get their actor attribution and how breaker and recovery logs
// correlate to one protected operation.
type OperationContext struct {
	OperationID string                 // short random ID, e.g. mgrn0zfqda
	Operation   string                 // logical operation name, e.g. entity_sync
	Actor       string                 // who initiated the operation
	StartTime   time.Time              // when the operation began
	Metadata    map[string]interface{} // extra trace values
}

var (
	randSource = rand.NewSource(time.Now().UnixNano())
	randMutex  sync.Mutex
	// base36 alphabet (lowercase letters + digits)
	base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// GenerateOperationID generates a 10 character random operation ID.
// Base36 keeps IDs short and cheap compared to UUIDs.
func GenerateOperationID() string {
	randMutex.Lock()
	defer randMutex.Unlock()

	b := make([]byte, 10)
	for i := range b {
		b[i] = base36Chars[randSource.Int63()%36]
	}
	return string(b)
}

// WithOperationContext injects an OperationContext into ctx. Callers at the
// edge of the host application do this once per unit of work so every
// component touched by it logs and audits under the same operation ID.
func WithOperationContext(ctx context.Context, operation, actor string) context.Context {
	opCtx := &OperationContext{
		OperationID: GenerateOperationID(),
		Operation:   operation,
		Actor:       actor,
		StartTime:   time.Now(),
		Metadata:    make(map[string]interface{}),
	}
	return context.WithValue(ctx, operationContextKey, opCtx)
}

// GetOperationContext extracts the OperationContext from ctx.
// Returns an empty default when none is present, so callers never nil-check.
func GetOperationContext(ctx context.Context) *OperationContext {
	if ctx == nil {
		return &OperationContext{
			OperationID: "unknown",
			Metadata:    make(map[string]interface{}),
		}
	}

	if opCtx, ok := ctx.Value(operationContextKey).(*OperationContext); ok {
		return opCtx
	}

	return &OperationContext{
		OperationID: "unknown",
		Metadata:    make(map[string]interface{}),
	}
}

// GetOperationID extracts the operation ID from ctx.
func GetOperationID(ctx context.Context) string {
	return GetOperationContext(ctx).OperationID
}

// GetActor extracts the initiating actor from ctx, or "" when unattributed.
func GetActor(ctx context.Context) string {
	return GetOperationContext(ctx).Actor
}

// SetMetadata attaches an extra trace value to the operation context.
func SetMetadata(ctx context.Context, key string, value interface{}) {
	opCtx := GetOperationContext(ctx)
	if opCtx.Metadata == nil {
		opCtx.Metadata = make(map[string]interface{})
	}
	opCtx.Metadata[key] = value
}

// GetMetadata reads an extra trace value from the operation context.
func GetMetadata(ctx context.Context, key string) (interface{}, bool) {
	opCtx := GetOperationContext(ctx)
	if opCtx.Metadata == nil {
		return nil, false
	}
	value, ok := opCtx.Metadata[key]
	return value, ok
}

// GetElapsedTime returns how long the operation has been running, in
// milliseconds. Zero when the context carries no start time.
func GetElapsedTime(ctx context.Context) int64 {
	opCtx := GetOperationContext(ctx)
	if opCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(opCtx.StartTime).Milliseconds()
}
