package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Error     string                 `json:"error,omitempty"`
	Retryable bool                   `json:"retryable,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// SuccessResponse 定义成功响应结构
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// 错误码与HTTP状态码映射
var errorStatusMap = map[ErrorCode]int{
	// 系统错误 (1000-1999)
	ErrInternal:       http.StatusInternalServerError,
	ErrDatabase:       http.StatusInternalServerError,
	ErrTimeout:        http.StatusRequestTimeout,
	ErrPaymentGateway: http.StatusBadGateway,

	// 认证错误 (2000-2999)
	ErrUnauthorized:     http.StatusUnauthorized,
	ErrForbidden:        http.StatusForbidden,
	ErrInvalidToken:     http.StatusUnauthorized,
	ErrInvalidSignature: http.StatusUnauthorized,

	// 请求错误 (3000-3999)
	ErrBadRequest:       http.StatusBadRequest,
	ErrValidation:       http.StatusBadRequest,
	ErrResourceNotFound: http.StatusNotFound,
	ErrResourceExists:   http.StatusConflict,
	ErrResourceConflict: http.StatusConflict,

	// 业务错误 (4000-4999)
	ErrInsufficientStock: http.StatusConflict,
	ErrInvalidTransition: http.StatusConflict,
	ErrInventoryBusy:     http.StatusConflict,
}

// StatusOf 错误码对应的 HTTP 状态码
func StatusOf(code ErrorCode) int {
	if status, ok := errorStatusMap[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HandleError 统一处理错误响应，并记录到 gin 上下文供监控中间件统计
func HandleError(c *gin.Context, err error) {
	appErr := FromService(err)
	c.Error(appErr)

	resp := ErrorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Retryable: appErr.Retryable,
		Details:   appErr.Details,
	}
	// 内部错误不向调用方暴露细节
	status := StatusOf(appErr.Code)
	if appErr.Err != nil && status < http.StatusInternalServerError {
		resp.Error = appErr.Err.Error()
	}

	c.JSON(status, resp)
}

// HandleSuccess 统一处理成功响应
func HandleSuccess(c *gin.Context, data interface{}, message string) {
	resp := SuccessResponse{
		Code:    http.StatusOK,
		Message: message,
		Data:    data,
	}
	c.JSON(http.StatusOK, resp)
}
