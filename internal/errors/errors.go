package errors

import (
	stderrors "errors"
	"fmt"
	svcerrors "ztuff-backend/internal/service/errors"
)

// ErrorCode 定义错误码类型
type ErrorCode int

// 定义系统级错误码 (1000-1999)
const (
	ErrInternal ErrorCode = 1000 + iota
	ErrDatabase
	ErrTimeout
	ErrPaymentGateway
)

// 定义认证相关错误码 (2000-2999)
const (
	ErrUnauthorized ErrorCode = 2000 + iota
	ErrForbidden
	ErrInvalidToken
	ErrInvalidSignature
)

// 定义请求相关错误码 (3000-3999)
const (
	ErrBadRequest ErrorCode = 3000 + iota
	ErrValidation
	ErrResourceNotFound
	ErrResourceExists
	ErrResourceConflict
)

// 定义业务相关错误码 (4000-4999)
const (
	ErrInsufficientStock ErrorCode = 4000 + iota
	ErrInvalidTransition
	ErrInventoryBusy
)

// AppError 定义应用错误结构
type AppError struct {
	Code      ErrorCode
	Message   string
	Err       error
	Retryable bool
	Details   map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装已有错误
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

var serviceCodes = map[svcerrors.ErrorCode]ErrorCode{
	svcerrors.ErrDatabase:     ErrDatabase,
	svcerrors.ErrNotFound:     ErrResourceNotFound,
	svcerrors.ErrDuplicate:    ErrResourceExists,
	svcerrors.ErrInvalidInput: ErrValidation,
	svcerrors.ErrUnauthorized: ErrUnauthorized,
	svcerrors.ErrForbidden:    ErrForbidden,
	svcerrors.ErrConflict:     ErrResourceConflict,
	svcerrors.ErrInternal:     ErrInternal,
	svcerrors.ErrThirdParty:   ErrPaymentGateway,
}

// FromService 将服务层错误转换为应用错误
func FromService(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var stock *svcerrors.InsufficientStockError
	if stderrors.As(err, &stock) {
		return &AppError{
			Code:    ErrInsufficientStock,
			Message: stock.Error(),
			Details: map[string]interface{}{
				"sku":       stock.SKU,
				"requested": stock.Requested,
				"available": stock.Available,
				"inactive":  stock.Inactive,
			},
		}
	}

	var transition *svcerrors.InvalidTransitionError
	if stderrors.As(err, &transition) {
		return &AppError{
			Code:    ErrInvalidTransition,
			Message: transition.Error(),
			Details: map[string]interface{}{
				"entity": transition.Entity,
				"from":   transition.From,
				"to":     transition.To,
			},
		}
	}

	var se *svcerrors.ServiceError
	if stderrors.As(err, &se) {
		code, ok := serviceCodes[se.Code]
		if !ok {
			code = ErrInternal
		}
		if se.Code == svcerrors.ErrConflict && se.Retryable {
			code = ErrInventoryBusy
		}
		return &AppError{
			Code:      code,
			Message:   se.Message,
			Err:       se.Err,
			Retryable: se.Retryable,
		}
	}

	return Wrap(ErrInternal, "Internal Server Error", err)
}
