package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	// ErrNotExist 对象不存在
	ErrNotExist = errors.New("object does not exist")
	// ErrPresignUnsupported 后端不支持预签名链接
	ErrPresignUnsupported = errors.New("presigned urls not supported")
)

// ObjectInfo 对象元信息
type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

// Store 固件制品对象存储抽象。
// OpenRange 的 length<0 表示从 offset 读到对象末尾。
type Store interface {
	// Stat 返回对象元信息
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	// Open 打开完整对象流
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// OpenRange 打开 [offset, offset+length) 范围流
	OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
	// PresignedURL 生成限时直连下载链接，不支持的后端返回 ErrPresignUnsupported
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// HealthCheck 探测后端可达性
	HealthCheck(ctx context.Context) error
}

// Config 后端构建参数
type Config struct {
	Backend   string // fs / minio
	Bucket    string
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	FSRoot    string
}

// New 按配置构建对象存储后端
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "fs":
		return NewFS(cfg.FSRoot), nil
	case "minio":
		return NewMinio(cfg)
	default:
		return nil, fmt.Errorf("unknown objstore backend %q", cfg.Backend)
	}
}
