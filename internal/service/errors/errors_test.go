package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"service error", New(ErrNotFound, "order not found"), ErrNotFound},
		{"wrapped service error", fmt.Errorf("load: %w", New(ErrForbidden, "no")), ErrForbidden},
		{"insufficient stock", &InsufficientStockError{SKU: "P1", Requested: 2, Available: 1}, ErrConflict},
		{"invalid transition", &InvalidTransitionError{Entity: "order", From: "shipped", To: "cancelled"}, ErrConflict},
		{"lock timeout", ErrLockTimeout, ErrConflict},
		{"plain error", fmt.Errorf("boom"), ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetErrorCode(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrLockTimeout))
	assert.True(t, IsRetryable(fmt.Errorf("place order: %w", ErrLockTimeout)))
	assert.False(t, IsRetryable(New(ErrConflict, "duplicate active return")))
	assert.False(t, IsRetryable(&InsufficientStockError{SKU: "P1"}))
}

func TestInsufficientStockErrorMessage(t *testing.T) {
	err := &InsufficientStockError{SKU: "P7-V2", Requested: 3, Available: 1}
	assert.Contains(t, err.Error(), "P7-V2")
	assert.Contains(t, err.Error(), "requested 3")

	inactive := &InsufficientStockError{SKU: "P9", Inactive: true}
	assert.Contains(t, inactive.Error(), "not available")
}
