// Package errors provides storage error classification for the entity store.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// StoreErrorType represents the classified type of a storage error.
type StoreErrorType int

const (
	// StoreErrorUnknown represents an unclassified storage error.
	StoreErrorUnknown StoreErrorType = iota
	// StoreErrorNotFound represents a missing record.
	StoreErrorNotFound
	// StoreErrorDuplicateKey represents a unique constraint violation (MySQL 1062).
	StoreErrorDuplicateKey
	// StoreErrorConnection represents a lost or unreachable backend.
	StoreErrorConnection
	// StoreErrorDeadlock represents a lock wait deadlock (MySQL 1213).
	StoreErrorDeadlock
	// StoreErrorInvalidValue represents a rejected column value (MySQL 1048/1265/1366/1406).
	StoreErrorInvalidValue
	// StoreErrorAccessDenied represents an authentication/authorization failure (MySQL 1044/1045).
	StoreErrorAccessDenied
)

// StoreError wraps a storage error with its classification.
type StoreError struct {
	Type        StoreErrorType
	OriginalErr error
	Code        uint16 // backend error code when available (e.g. MySQL 1062)
	Message     string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s (code %d): %v", e.Message, e.Code, e.OriginalErr)
	}
	return fmt.Sprintf("%s: %v", e.Message, e.OriginalErr)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *StoreError) Unwrap() error {
	return e.OriginalErr
}

// Retryable reports whether the operation may succeed if repeated. Connection
// losses and deadlocks are transient; everything else is not.
func (e *StoreError) Retryable() bool {
	return e.Type == StoreErrorConnection || e.Type == StoreErrorDeadlock
}

// ClassifyStoreError classifies a storage error.
//
// It handles GORM errors and MySQL-specific codes:
//   - gorm.ErrRecordNotFound → StoreErrorNotFound
//   - MySQL 1062 (duplicate entry) → StoreErrorDuplicateKey
//   - MySQL 1213 (deadlock) → StoreErrorDeadlock
//   - MySQL 1044/1045 (access denied) → StoreErrorAccessDenied
//   - MySQL 1048/1265/1366/1406 (bad value) → StoreErrorInvalidValue
//   - connection failure patterns → StoreErrorConnection
func ClassifyStoreError(err error) *StoreError {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &StoreError{
			Type:        StoreErrorNotFound,
			OriginalErr: err,
			Message:     "entity not found",
		}
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return classifyMySQLError(mysqlErr)
	}

	if isConnectionError(err.Error()) {
		return &StoreError{
			Type:        StoreErrorConnection,
			OriginalErr: err,
			Message:     "store connection error",
		}
	}

	return &StoreError{
		Type:        StoreErrorUnknown,
		OriginalErr: err,
		Message:     "unknown store error",
	}
}

func classifyMySQLError(err *mysql.MySQLError) *StoreError {
	switch err.Number {
	case 1062: // ER_DUP_ENTRY
		return &StoreError{
			Type:        StoreErrorDuplicateKey,
			OriginalErr: err,
			Code:        err.Number,
			Message:     "duplicate key",
		}

	case 1213: // ER_LOCK_DEADLOCK
		return &StoreError{
			Type:        StoreErrorDeadlock,
			OriginalErr: err,
			Code:        err.Number,
			Message:     "deadlock detected",
		}

	case 1044, 1045: // ER_DBACCESS_DENIED_ERROR, ER_ACCESS_DENIED_ERROR
		return &StoreError{
			Type:        StoreErrorAccessDenied,
			OriginalErr: err,
			Code:        err.Number,
			Message:     "access denied",
		}

	case 1048, 1265, 1366, 1406: // null, truncated, wrong value, data too long
		return &StoreError{
			Type:        StoreErrorInvalidValue,
			OriginalErr: err,
			Code:        err.Number,
			Message:     "invalid column value",
		}

	default:
		return &StoreError{
			Type:        StoreErrorUnknown,
			OriginalErr: err,
			Code:        err.Number,
			Message:     "MySQL error",
		}
	}
}

// isConnectionError checks if the error message indicates a connection problem.
func isConnectionError(errMsg string) bool {
	connectionKeywords := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"invalid connection",
		"bad connection",
		"dial tcp",
	}

	lower := strings.ToLower(errMsg)
	for _, keyword := range connectionKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// IsNotFound checks if the error is a missing record error.
func IsNotFound(err error) bool {
	storeErr := ClassifyStoreError(err)
	return storeErr != nil && storeErr.Type == StoreErrorNotFound
}

// IsDuplicateKey checks if the error is a unique constraint violation.
func IsDuplicateKey(err error) bool {
	storeErr := ClassifyStoreError(err)
	return storeErr != nil && storeErr.Type == StoreErrorDuplicateKey
}

// IsConnectionError checks if the error is a backend connection failure.
func IsConnectionError(err error) bool {
	storeErr := ClassifyStoreError(err)
	return storeErr != nil && storeErr.Type == StoreErrorConnection
}

// IsRetryable checks if the failed operation may succeed when repeated.
func IsRetryable(err error) bool {
	storeErr := ClassifyStoreError(err)
	return storeErr != nil && storeErr.Retryable()
}
