package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"math_practice_backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localStorage(t *testing.T) (*StorageService, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{Type: "local", LocalPath: dir},
	}
	return NewStorageService(cfg), dir
}

func TestLocalStorage_UploadBytes(t *testing.T) {
	svc, dir := localStorage(t)

	url, err := svc.UploadBytes(context.Background(), "sessions/s1/images/a.jpg", []byte("fake-image"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/sessions/s1/images/a.jpg", url)

	data, err := os.ReadFile(filepath.Join(dir, "sessions", "s1", "images", "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("fake-image"), data)
}

func TestLocalStorage_UploadFileSamePathNoop(t *testing.T) {
	svc, dir := localStorage(t)

	// 处理流程先把文件写进本地工作目录，本地存储下两者是同一个文件
	work := filepath.Join(dir, "sessions", "s1", "images", "b.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(work), 0755))
	require.NoError(t, os.WriteFile(work, []byte("原图"), 0644))

	url, err := svc.UploadFile(context.Background(), "sessions/s1/images/b.jpg", work, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/sessions/s1/images/b.jpg", url)

	data, err := os.ReadFile(work)
	require.NoError(t, err)
	assert.Equal(t, []byte("原图"), data)
}

func TestLocalStorage_UploadFileCopies(t *testing.T) {
	svc, dir := localStorage(t)

	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "c.jpg")
	require.NoError(t, os.WriteFile(src, []byte("外部文件"), 0644))

	_, err := svc.UploadFile(context.Background(), "c.jpg", src, "image/jpeg")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "c.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("外部文件"), data)
}

func TestLocalStorage_Delete(t *testing.T) {
	svc, dir := localStorage(t)

	_, err := svc.UploadBytes(context.Background(), "d.jpg", []byte("x"), "image/jpeg")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "d.jpg"))
	_, err = os.Stat(filepath.Join(dir, "d.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestNewStorageService_UnknownTypeFallsBackToLocal(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Type: "ftp", LocalPath: t.TempDir()}}
	svc := NewStorageService(cfg)

	url, err := svc.UploadBytes(context.Background(), "e.jpg", []byte("x"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/e.jpg", url)
}
