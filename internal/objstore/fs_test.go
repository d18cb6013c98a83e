package objstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupFSStore(t *testing.T) *FS {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "firmware"), 0o755))
	payload := []byte("0123456789abcdef")
	require.NoError(t, os.WriteFile(filepath.Join(root, "firmware", "fw-1.0.0.bin"), payload, 0o644))
	return NewFS(root)
}

func TestFS_Stat(t *testing.T) {
	s := setupFSStore(t)
	ctx := context.Background()

	info, err := s.Stat(ctx, "firmware/fw-1.0.0.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(16), info.Size, "对象大小应与写入内容一致")

	_, err = s.Stat(ctx, "firmware/missing.bin")
	assert.True(t, errors.Is(err, ErrNotExist), "缺失对象应返回 ErrNotExist")
}

func TestFS_Open(t *testing.T) {
	s := setupFSStore(t)
	ctx := context.Background()

	rc, err := s.Open(ctx, "firmware/fw-1.0.0.bin")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", string(data))
}

func TestFS_OpenRange(t *testing.T) {
	s := setupFSStore(t)
	ctx := context.Background()

	// 中段区间
	rc, err := s.OpenRange(ctx, "firmware/fw-1.0.0.bin", 4, 6)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "456789", string(data))

	// length<0 读到末尾
	rc, err = s.OpenRange(ctx, "firmware/fw-1.0.0.bin", 10, -1)
	require.NoError(t, err)
	data, err = io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))
}

func TestFS_KeyEscape(t *testing.T) {
	s := setupFSStore(t)
	ctx := context.Background()

	// 越界 key 被拒绝而不是读到 root 之外
	_, err := s.Stat(ctx, "../../../etc/passwd")
	assert.Error(t, err)
}

func TestFS_PresignUnsupported(t *testing.T) {
	s := setupFSStore(t)
	_, err := s.PresignedURL(context.Background(), "firmware/fw-1.0.0.bin", 0)
	assert.True(t, errors.Is(err, ErrPresignUnsupported))
}

func TestFS_HealthCheck(t *testing.T) {
	s := setupFSStore(t)
	assert.NoError(t, s.HealthCheck(context.Background()), "存在的根目录应通过健康检查")

	missing := NewFS(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, missing.HealthCheck(context.Background()), "缺失根目录应检查失败")
}
