package errors

import (
	stderrors "errors"
	"fmt"
)

// ServiceError 定义服务层错误
type ServiceError struct {
	Code      ErrorCode
	Message   string
	Err       error
	Retryable bool
}

// ErrorCode 定义错误码类型
type ErrorCode int

const (
	// 数据库错误
	ErrDatabase ErrorCode = iota + 1000
	ErrNotFound
	ErrDuplicate

	// 业务逻辑错误
	ErrInvalidInput
	ErrUnauthorized
	ErrForbidden
	ErrConflict

	// 系统错误
	ErrInternal
	ErrThirdParty
)

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// New 创建新的服务错误
func New(code ErrorCode, message string) error {
	return &ServiceError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装已有错误
func Wrap(code ErrorCode, message string, err error) error {
	return &ServiceError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrLockTimeout 等待库存行锁超时或检测到死锁，调用方可以重试
var ErrLockTimeout = &ServiceError{
	Code:      ErrConflict,
	Message:   "inventory is busy, please retry",
	Retryable: true,
}

// InsufficientStockError 库存不足或 SKU 已下架
type InsufficientStockError struct {
	SKU       string
	Requested int
	Available int
	Inactive  bool
}

func (e *InsufficientStockError) Error() string {
	if e.Inactive {
		return fmt.Sprintf("sku %s is not available for sale", e.SKU)
	}
	return fmt.Sprintf("insufficient stock for sku %s: requested %d, available %d", e.SKU, e.Requested, e.Available)
}

// InvalidTransitionError 非法的状态流转
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot transition from %s to %s", e.Entity, e.From, e.To)
}

// IsServiceError 判断是否为服务错误
func IsServiceError(err error) bool {
	var se *ServiceError
	return stderrors.As(err, &se)
}

// IsRetryable 判断调用方是否可以重试
func IsRetryable(err error) bool {
	var se *ServiceError
	return stderrors.As(err, &se) && se.Retryable
}

// GetErrorCode 获取错误码
func GetErrorCode(err error) ErrorCode {
	var stock *InsufficientStockError
	var transition *InvalidTransitionError
	if stderrors.As(err, &stock) || stderrors.As(err, &transition) {
		return ErrConflict
	}
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ErrInternal
}
