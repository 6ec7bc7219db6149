package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyStoreError_Nil(t *testing.T) {
	assert.Nil(t, ClassifyStoreError(nil))
}

func TestClassifyStoreError_RecordNotFound(t *testing.T) {
	storeErr := ClassifyStoreError(gorm.ErrRecordNotFound)

	assert.NotNil(t, storeErr)
	assert.Equal(t, StoreErrorNotFound, storeErr.Type)
	assert.Equal(t, "entity not found", storeErr.Message)
	assert.True(t, errors.Is(storeErr, gorm.ErrRecordNotFound))
	assert.False(t, storeErr.Retryable())
}

func TestClassifyStoreError_WrappedNotFound(t *testing.T) {
	wrapped := fmt.Errorf("failed to load entity 42: %w", gorm.ErrRecordNotFound)
	storeErr := ClassifyStoreError(wrapped)

	assert.NotNil(t, storeErr)
	assert.Equal(t, StoreErrorNotFound, storeErr.Type)
	assert.True(t, IsNotFound(wrapped))
}

func TestClassifyStoreError_MySQLCodes(t *testing.T) {
	tests := []struct {
		name      string
		code      uint16
		expected  StoreErrorType
		retryable bool
	}{
		{
			name:      "duplicate entry (1062)",
			code:      1062,
			expected:  StoreErrorDuplicateKey,
			retryable: false,
		},
		{
			name:      "deadlock (1213)",
			code:      1213,
			expected:  StoreErrorDeadlock,
			retryable: true,
		},
		{
			name:      "db access denied (1044)",
			code:      1044,
			expected:  StoreErrorAccessDenied,
			retryable: false,
		},
		{
			name:      "access denied (1045)",
			code:      1045,
			expected:  StoreErrorAccessDenied,
			retryable: false,
		},
		{
			name:      "null column (1048)",
			code:      1048,
			expected:  StoreErrorInvalidValue,
			retryable: false,
		},
		{
			name:      "data too long (1406)",
			code:      1406,
			expected:  StoreErrorInvalidValue,
			retryable: false,
		},
		{
			name:      "unmapped code (1146)",
			code:      1146,
			expected:  StoreErrorUnknown,
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mysqlErr := &mysql.MySQLError{Number: tt.code, Message: "test"}

			storeErr := ClassifyStoreError(mysqlErr)

			assert.NotNil(t, storeErr)
			assert.Equal(t, tt.expected, storeErr.Type)
			assert.Equal(t, tt.code, storeErr.Code)
			assert.Equal(t, tt.retryable, storeErr.Retryable())
			assert.Contains(t, storeErr.Error(), fmt.Sprintf("code %d", tt.code))
		})
	}
}

func TestClassifyStoreError_ConnectionPatterns(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "refused", err: errors.New("dial tcp 127.0.0.1:3306: connect: connection refused")},
		{name: "reset", err: errors.New("read: Connection Reset by peer")},
		{name: "invalid connection", err: errors.New("invalid connection")},
		{name: "io timeout", err: errors.New("read tcp: i/o timeout")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storeErr := ClassifyStoreError(tt.err)

			assert.Equal(t, StoreErrorConnection, storeErr.Type)
			assert.True(t, storeErr.Retryable())
			assert.True(t, IsConnectionError(tt.err))
			assert.True(t, IsRetryable(tt.err))
		})
	}
}

func TestClassifyStoreError_Unknown(t *testing.T) {
	storeErr := ClassifyStoreError(errors.New("something odd happened"))

	assert.Equal(t, StoreErrorUnknown, storeErr.Type)
	assert.False(t, storeErr.Retryable())
	assert.False(t, IsNotFound(storeErr))
	assert.False(t, IsDuplicateKey(storeErr))
}

func TestIsDuplicateKey(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'ent-1' for key 'name'"}

	assert.True(t, IsDuplicateKey(dup))
	assert.False(t, IsDuplicateKey(gorm.ErrRecordNotFound))
	assert.False(t, IsDuplicateKey(nil))
}
