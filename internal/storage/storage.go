package storage

import (
	"context"
	"fmt"
	"mime/multipart"
	"path"
	"strings"
	"ztuff-backend/config"
)

// MaxEvidenceSize 单个质检凭证的大小上限
const MaxEvidenceSize = 10 << 20

var allowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

// FileStorage 质检凭证存储后端
type FileStorage interface {
	UploadFile(ctx context.Context, file *multipart.FileHeader, path string) (string, error)
}

// New 按配置选择存储后端
func New(ctx context.Context, cfg *config.Config) (FileStorage, error) {
	switch cfg.StorageDriver {
	case "s3":
		return NewS3Client(cfg.S3Region, cfg.S3Bucket)
	case "gcs":
		return NewGCSClient(ctx, cfg.GCSProjectID, cfg.GCSBucketName, cfg.GCSCredentialsFile)
	case "local", "":
		return NewLocalStorage(cfg.LocalStoragePath)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// checkFile 校验大小和扩展名，返回内容类型
func checkFile(file *multipart.FileHeader, key string) (string, error) {
	if file.Size > MaxEvidenceSize {
		return "", fmt.Errorf("file %s exceeds %d bytes", file.Filename, MaxEvidenceSize)
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid storage path %q", key)
	}
	contentType, ok := allowedExtensions[strings.ToLower(path.Ext(key))]
	if !ok {
		return "", fmt.Errorf("file type %s is not allowed", path.Ext(key))
	}
	return contentType, nil
}
