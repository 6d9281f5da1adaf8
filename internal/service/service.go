package service

import (
	"context"
	"errors"
	"mime/multipart"
	"ztuff-backend/internal/gateway"
	"ztuff-backend/internal/lock"
	"ztuff-backend/internal/repository/interfaces"
	svcerrors "ztuff-backend/internal/service/errors"
	"ztuff-backend/internal/util"

	"go.uber.org/zap"
)

// 通知模板
const (
	TemplateOrderPlaced         = "order_placed"
	TemplateOrderStatusChanged  = "order_status_changed"
	TemplateReturnStatusChanged = "return_status_changed"
)

// Notifier 通知服务，尽力而为
type Notifier interface {
	Notify(ctx context.Context, userID int64, template string, data map[string]interface{}) error
}

// PaymentGateway 支付网关退款接口
type PaymentGateway interface {
	Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error)
}

// Locker 按 key 互斥，用于防止同一退货单并发结算
type Locker interface {
	Lock(ctx context.Context, key string) (lock.Unlock, error)
}

// FileStorage 质检凭证存储
type FileStorage interface {
	UploadFile(ctx context.Context, file *multipart.FileHeader, path string) (string, error)
}

// notify 通知失败只记录日志，不影响已提交的状态
func notify(ctx context.Context, notifier Notifier, userID int64, template string, data map[string]interface{}) {
	if notifier == nil {
		return
	}
	if err := notifier.Notify(ctx, userID, template, data); err != nil {
		util.Logger.Warn("发送通知失败",
			zap.Int64("user_id", userID),
			zap.String("template", template),
			zap.Error(err))
	}
}

// storeError 将仓储层错误转换为服务错误，已是服务错误的原样返回
func storeError(message string, err error) error {
	var stock *svcerrors.InsufficientStockError
	var transition *svcerrors.InvalidTransitionError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &stock), errors.As(err, &transition), svcerrors.IsServiceError(err):
		return err
	case errors.Is(err, interfaces.ErrLockTimeout):
		return &svcerrors.ServiceError{
			Code:      svcerrors.ErrConflict,
			Message:   svcerrors.ErrLockTimeout.Message,
			Err:       err,
			Retryable: true,
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return svcerrors.Wrap(svcerrors.ErrInternal, message, err)
	default:
		return svcerrors.Wrap(svcerrors.ErrDatabase, message, err)
	}
}
