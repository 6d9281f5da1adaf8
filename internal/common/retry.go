package common

import (
	"context"
	"database/sql"
	"errors"
	"time"
	"ztuff-backend/internal/repository/interfaces"
	svcerrors "ztuff-backend/internal/service/errors"
)

// RetryBaseDelay 第 i 次重试前等待 (i+1) * RetryBaseDelay
var RetryBaseDelay = time.Second

// IsTemporary 判断是否为临时性错误
func IsTemporary(err error) bool {
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	return false
}

// IsRetryable 判断是否可重试
func IsRetryable(err error) bool {
	return IsTemporary(err) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, interfaces.ErrLockTimeout) ||
		svcerrors.IsRetryable(err)
}

// WithRetry 通用重试机制，ctx 取消时立即返回
func WithRetry(ctx context.Context, operation func() error, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = operation(); err == nil {
			return nil
		}
		if !IsRetryable(err) || i == maxRetries-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(RetryBaseDelay * time.Duration(i+1)):
		}
	}
	return err
}
