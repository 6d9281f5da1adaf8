package util

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateUniqueFilename 生成唯一的文件名
func GenerateUniqueFilename(originalFilename string) string {
	ext := filepath.Ext(originalFilename)
	name := filepath.Base(originalFilename)
	name = name[:len(name)-len(ext)]

	timestamp := strconv.FormatInt(time.Now().UnixNano(), 10)
	return name + "_" + timestamp + ext
}

// NewOrderNumber 生成订单号
func NewOrderNumber(now time.Time) string {
	return "ORD-" + now.Format("20060102") + "-" + shortID()
}

// NewReturnNumber 生成退货单号
func NewReturnNumber(now time.Time) string {
	return "RMA-" + now.Format("20060102") + "-" + shortID()
}

// RefundKey 由退货单号派生，重试时保持不变
func RefundKey(returnNumber string) string {
	return "REF-" + returnNumber
}

func shortID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
