package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	svcerrors "ztuff-backend/internal/service/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHandleError_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   ErrorCode
	}{
		{"validation", svcerrors.New(svcerrors.ErrInvalidInput, "bad"), http.StatusBadRequest, ErrValidation},
		{"not found", svcerrors.New(svcerrors.ErrNotFound, "missing"), http.StatusNotFound, ErrResourceNotFound},
		{"forbidden", svcerrors.New(svcerrors.ErrForbidden, "no"), http.StatusForbidden, ErrForbidden},
		{"conflict", svcerrors.New(svcerrors.ErrConflict, "dup"), http.StatusConflict, ErrResourceConflict},
		{"gateway", svcerrors.Wrap(svcerrors.ErrThirdParty, "declined", fmt.Errorf("insufficient balance")), http.StatusBadGateway, ErrPaymentGateway},
		{"database", svcerrors.Wrap(svcerrors.ErrDatabase, "failed", fmt.Errorf("dial tcp")), http.StatusInternalServerError, ErrDatabase},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError, ErrInternal},
		{"transition", &svcerrors.InvalidTransitionError{Entity: "order", From: "shipped", To: "paid"}, http.StatusConflict, ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			HandleError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.Len(t, c.Errors, 1)
			if tt.status >= http.StatusInternalServerError {
				assert.Empty(t, resp.Error)
			}
		})
	}
}

func TestHandleError_StockDetails(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandleError(c, fmt.Errorf("place order: %w", &svcerrors.InsufficientStockError{SKU: "P5-V3", Requested: 2, Available: 1}))

	assert.Equal(t, http.StatusConflict, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ErrInsufficientStock, resp.Code)
	assert.Equal(t, "P5-V3", resp.Details["sku"])
	assert.Equal(t, float64(1), resp.Details["available"])
}

func TestHandleError_RetryableConflict(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandleError(c, svcerrors.ErrLockTimeout)

	assert.Equal(t, http.StatusConflict, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ErrInventoryBusy, resp.Code)
	assert.True(t, resp.Retryable)
}

func TestHandleSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandleSuccess(c, gin.H{"id": 1}, "ok")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":200,"message":"ok","data":{"id":1}}`, w.Body.String())
}
