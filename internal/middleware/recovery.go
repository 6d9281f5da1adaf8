package middleware

import (
	"fmt"
	"runtime/debug"
	"ztuff-backend/internal/errors"
	"ztuff-backend/internal/observability"
	"ztuff-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RecoveryMiddleware 捕获 handler panic，按路由计数并返回统一的 500 响应
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			observability.HandlerPanics.WithLabelValues(route).Inc()

			fields := []zap.Field{
				zap.Any("panic", r),
				zap.String("method", c.Request.Method),
				zap.String("route", route),
				zap.String("stack", string(debug.Stack())),
			}
			if actor, ok := CurrentActor(c); ok {
				fields = append(fields, zap.Int64("user_id", actor.UserID), zap.String("role", string(actor.Role)))
			}
			util.Logger.Error("handler 发生 panic", fields...)

			span := trace.SpanFromContext(c.Request.Context())
			span.SetStatus(codes.Error, fmt.Sprint(r))

			errors.HandleError(c, errors.New(errors.ErrInternal, "系统内部错误"))
			c.Abort()
		}()
		c.Next()
	}
}
