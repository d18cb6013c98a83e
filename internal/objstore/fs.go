package objstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FS 本地文件系统后端，key 映射为 root 下的相对路径。
// 适合单机部署与测试环境。
type FS struct {
	root string
}

// NewFS 创建文件系统后端
func NewFS(root string) *FS {
	if root == "" {
		root = "./data/firmware"
	}
	return &FS{root: root}
}

// resolve 把对象 key 映射到 root 下的路径，拒绝越出 root 的 key
func (s *FS) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("empty object key")
	}
	path := filepath.Join(s.root, clean)
	if !strings.HasPrefix(path, filepath.Clean(s.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("object key %q escapes store root", key)
	}
	return path, nil
}

// Stat 返回对象元信息
func (s *FS) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("stat %s: %w", key, ErrNotExist)
		}
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("stat %s: %w", key, ErrNotExist)
	}
	return &ObjectInfo{Key: key, Size: fi.Size()}, nil
}

// Open 打开完整对象流
func (s *FS) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("open %s: %w", key, ErrNotExist)
		}
		return nil, err
	}
	return f, nil
}

// OpenRange 打开 [offset, offset+length) 范围流，length<0 读到末尾
func (s *FS) OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("open %s: %w", key, ErrNotExist)
		}
		return nil, err
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek %s to %d: %w", key, offset, err)
	}
	if length < 0 {
		return f, nil
	}
	return &limitedFile{Reader: io.LimitReader(f, length), f: f}, nil
}

// PresignedURL 文件系统后端不支持预签名
func (s *FS) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", ErrPresignUnsupported
}

// HealthCheck 校验存储根目录可访问
func (s *FS) HealthCheck(ctx context.Context) error {
	fi, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("stat store root %s: %w", s.root, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("store root %s is not a directory", s.root)
	}
	return nil
}

// limitedFile 限长读取包装，Close 关闭底层文件
type limitedFile struct {
	io.Reader
	f *os.File
}

func (l *limitedFile) Close() error { return l.f.Close() }
