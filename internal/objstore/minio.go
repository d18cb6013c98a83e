package objstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Minio S3兼容对象存储后端（MinIO / S3 / OSS）
type Minio struct {
	client *minio.Client
	bucket string
}

// NewMinio 创建S3兼容后端客户端
func NewMinio(cfg Config) (*Minio, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio backend requires endpoint")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio backend requires bucket")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Minio{client: client, bucket: cfg.Bucket}, nil
}

// Stat 返回对象元信息
func (s *Minio) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("stat %s: %w", key, ErrNotExist)
		}
		return nil, err
	}
	return &ObjectInfo{Key: key, Size: info.Size, ETag: info.ETag}, nil
}

// Open 打开完整对象流
func (s *Minio) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// OpenRange 打开 [offset, offset+length) 范围流，length<0 读到末尾
func (s *Minio) OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	end := int64(0) // SetRange(offset, 0) 表示读到对象末尾
	if length >= 0 {
		end = offset + length - 1
	}
	if err := opts.SetRange(offset, end); err != nil {
		return nil, fmt.Errorf("range [%d,%d] for %s: %w", offset, end, key, err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// PresignedURL 生成限时直连下载链接
func (s *Minio) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

// HealthCheck 探测桶可达性
func (s *Minio) HealthCheck(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket %s: %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}
