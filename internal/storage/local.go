package storage

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"ztuff-backend/internal/util"

	"go.uber.org/zap"
)

// LocalStorage 单机部署时把质检凭证写到本地目录，由 /uploads 静态路由提供访问
type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// UploadFile 先写临时文件再重命名，读者不会看到写了一半的凭证
func (s *LocalStorage) UploadFile(ctx context.Context, file *multipart.FileHeader, key string) (string, error) {
	if _, err := checkFile(file, key); err != nil {
		return "", err
	}

	target := filepath.Join(s.basePath, filepath.FromSlash(key))
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建目录失败: %w", err)
	}

	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("创建临时文件失败: %w", err)
	}
	written, copyErr := io.Copy(tmp, src)
	closeErr := tmp.Close()
	if err := firstErr(copyErr, closeErr, ctx.Err()); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("保存文件失败: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("保存文件失败: %w", err)
	}

	util.Logger.Info("凭证已保存到本地",
		zap.String("key", key),
		zap.Int64("bytes", written))
	return key, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
