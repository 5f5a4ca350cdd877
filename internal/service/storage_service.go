package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"frubric_backend/internal/config"
	"frubric_backend/internal/util"
	"frubric_backend/pkg/logger"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const backupContentType = "application/xml"

// ArchiveStore 备份文件存储
type ArchiveStore interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// cleanKey 拒绝跳出存储根目录的对象名
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+key)), "/")
	if key == "" || key == "." {
		return "", fmt.Errorf("%w: empty object key", util.ErrInvalidBackup)
	}
	return key, nil
}

// LocalArchiveStore 本地目录存储
type LocalArchiveStore struct {
	Root string
}

func (p *LocalArchiveStore) path(key string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(p.Root, filepath.FromSlash(key)), nil
}

func (p *LocalArchiveStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	dst, err := p.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return "", err
	}
	return "file://" + dst, nil
}

func (p *LocalArchiveStore) Get(ctx context.Context, key string) ([]byte, error) {
	src, err := p.path(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(src)
}

func (p *LocalArchiveStore) Delete(ctx context.Context, key string) error {
	dst, err := p.path(key)
	if err != nil {
		return err
	}
	return os.Remove(dst)
}

// MinioArchiveStore MinIO 存储
type MinioArchiveStore struct {
	Bucket string
	Client *minio.Client
}

func NewMinioArchiveStore(cfg *config.StorageConfig) (*MinioArchiveStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}
	return &MinioArchiveStore{Bucket: cfg.MinioBucket, Client: client}, nil
}

func (p *MinioArchiveStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	_, err = p.Client.PutObject(ctx, p.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: backupContentType,
	})
	if err != nil {
		return "", err
	}
	return "s3://" + p.Bucket + "/" + key, nil
}

func (p *MinioArchiveStore) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := p.Client.GetObject(ctx, p.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func (p *MinioArchiveStore) Delete(ctx context.Context, key string) error {
	return p.Client.RemoveObject(ctx, p.Bucket, key, minio.RemoveObjectOptions{})
}

// OSSArchiveStore 阿里云OSS存储
type OSSArchiveStore struct {
	Endpoint string
	Bucket   string
	Client   *oss.Client
}

func NewOSSArchiveStore(cfg *config.StorageConfig) (*OSSArchiveStore, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	return &OSSArchiveStore{Endpoint: cfg.OSSEndpoint, Bucket: cfg.OSSBucket, Client: client}, nil
}

func (p *OSSArchiveStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	bucket, err := p.Client.Bucket(p.Bucket)
	if err != nil {
		return "", err
	}
	if err := bucket.PutObject(key, bytes.NewReader(data), oss.ContentType(backupContentType)); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://%s.%s/%s", p.Bucket, p.Endpoint, key), nil
}

func (p *OSSArchiveStore) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	bucket, err := p.Client.Bucket(p.Bucket)
	if err != nil {
		return nil, err
	}
	body, err := bucket.GetObject(key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

func (p *OSSArchiveStore) Delete(ctx context.Context, key string) error {
	bucket, err := p.Client.Bucket(p.Bucket)
	if err != nil {
		return err
	}
	return bucket.DeleteObject(key)
}

// NewArchiveStore 按配置选择存储，远端初始化失败时退回本地目录
func NewArchiveStore(cfg *config.StorageConfig) ArchiveStore {
	switch cfg.Type {
	case util.StorageMinio:
		p, err := NewMinioArchiveStore(cfg)
		if err == nil {
			return p
		}
		logger.Log.Warn("MinIO archive store unavailable, using local", zap.Error(err))
	case util.StorageOSS:
		p, err := NewOSSArchiveStore(cfg)
		if err == nil {
			return p
		}
		logger.Log.Warn("OSS archive store unavailable, using local", zap.Error(err))
	}
	return &LocalArchiveStore{Root: cfg.LocalPath}
}
