package payment

import (
	"context"
	"io"
	"ztuff-backend/internal/errors"
	"ztuff-backend/internal/gateway"
	"ztuff-backend/internal/model"
	"ztuff-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SourceWebhook 支付通知来源标签
const SourceWebhook = "webhook"

// maxNotificationSize 网关通知体积上限
const maxNotificationSize = 64 << 10

type PaymentServiceInterface interface {
	HandlePaymentNotification(ctx context.Context, source string, n model.PaymentNotification) (*model.Order, string, error)
}

type NotificationHandler struct {
	paymentService PaymentServiceInterface
	serverKey      string
}

func NewNotificationHandler(paymentService PaymentServiceInterface, serverKey string) *NotificationHandler {
	return &NotificationHandler{paymentService: paymentService, serverKey: serverKey}
}

// HandleNotification 接收网关异步通知，验签后按订单当前状态处理
func (h *NotificationHandler) HandleNotification(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationSize))
	if err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrBadRequest, "Failed to read notification", err))
		return
	}

	notification, err := gateway.DecodeNotification(raw)
	if err != nil {
		util.Logger.Warn("无法解析支付通知", zap.Error(err))
		errors.HandleError(c, errors.Wrap(errors.ErrBadRequest, "Invalid notification payload", err))
		return
	}

	if !notification.VerifySignature(h.serverKey) {
		util.Logger.Warn("支付通知签名无效",
			zap.String("order_number", notification.OrderID),
			zap.String("client_ip", c.ClientIP()))
		errors.HandleError(c, errors.New(errors.ErrInvalidSignature, "Invalid notification signature"))
		return
	}

	order, action, err := h.paymentService.HandlePaymentNotification(c.Request.Context(), SourceWebhook, notification.Normalize())
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	data := gin.H{"action": action}
	if order != nil {
		data["order_number"] = order.OrderNumber
		data["status"] = order.Status
	}
	errors.HandleSuccess(c, data, "Notification processed")
}
