package middleware

import (
	"context"
	"strings"
	"time"
	"ztuff-backend/internal/errors"
	"ztuff-backend/internal/model"
	"ztuff-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ActorKey gin 上下文中保存当前操作者的键
const ActorKey = "actor"

// AuthMiddleware 校验 Bearer 令牌，把操作者写入上下文
func AuthMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			errors.HandleError(c, errors.New(errors.ErrUnauthorized, "需要认证"))
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			errors.HandleError(c, errors.New(errors.ErrUnauthorized, "无效的认证格式"))
			c.Abort()
			return
		}

		actor, err := util.ValidateToken(parts[1])
		if err != nil {
			util.Logger.Debug("令牌校验失败", zap.Error(err))
			errors.HandleError(c, errors.Wrap(errors.ErrInvalidToken, "无效或过期的令牌", err))
			c.Abort()
			return
		}

		c.Set(ActorKey, actor)
		c.Next()

		if ctx.Err() == context.DeadlineExceeded && !c.Writer.Written() {
			errors.HandleError(c, errors.New(errors.ErrTimeout, "请求超时"))
		}
	}
}

// StaffMiddleware 确保只有员工可以访问某些路由，需在 AuthMiddleware 之后使用
func StaffMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			errors.HandleError(c, errors.New(errors.ErrUnauthorized, "需要认证"))
			c.Abort()
			return
		}
		if !actor.IsStaff() {
			util.Logger.Warn("非员工访问",
				zap.Int64("user_id", actor.UserID),
				zap.String("path", c.Request.URL.Path))
			errors.HandleError(c, errors.New(errors.ErrForbidden, "需要员工权限"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentActor 读取 AuthMiddleware 写入的操作者
func CurrentActor(c *gin.Context) (model.Actor, bool) {
	value, exists := c.Get(ActorKey)
	if !exists {
		return model.Actor{}, false
	}
	actor, ok := value.(model.Actor)
	return actor, ok
}
