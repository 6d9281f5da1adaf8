package middleware

import (
	stderrors "errors"
	"strconv"
	"sync"
	"ztuff-backend/internal/errors"
	"ztuff-backend/internal/observability"
	"ztuff-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ErrorMonitor struct {
	errorCounts map[errors.ErrorCode]int
	mu          sync.RWMutex
}

func NewErrorMonitor() *ErrorMonitor {
	return &ErrorMonitor{
		errorCounts: make(map[errors.ErrorCode]int),
	}
}

func (m *ErrorMonitor) RecordError(err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		return
	}
	m.mu.Lock()
	m.errorCounts[appErr.Code]++
	m.mu.Unlock()
	observability.HTTPErrors.WithLabelValues(strconv.Itoa(int(appErr.Code))).Inc()
}

func (m *ErrorMonitor) GetErrorCounts() map[errors.ErrorCode]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[errors.ErrorCode]int)
	for code, count := range m.errorCounts {
		counts[code] = count
	}
	return counts
}

func ErrorMonitorMiddleware(monitor *ErrorMonitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		for _, e := range c.Errors {
			monitor.RecordError(e.Err)
			var appErr *errors.AppError
			if !stderrors.As(e.Err, &appErr) {
				continue
			}
			fields := []zap.Field{
				zap.Int("error_code", int(appErr.Code)),
				zap.String("error_message", appErr.Message),
				zap.Error(appErr.Err),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			}
			// 4xx 属于调用方问题，只记 warn
			if errors.StatusOf(appErr.Code) >= 500 {
				util.Logger.Error("请求处理错误", fields...)
			} else {
				util.Logger.Warn("请求处理错误", fields...)
			}
		}
	}
}
