// Package storage — доступ к S3-совместимому хранилищу (MinIO).
//
// Используется для чтения обучающих данных и, если tracking server
// хранит артефакты в S3, для загрузки артефактов run.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Ошибки хранилища.
var (
	// ErrObjectNotFound — bucket или объект не существует.
	ErrObjectNotFound = errors.New("object not found")

	// ErrAccessDenied — учётные данные не подходят.
	ErrAccessDenied = errors.New("storage access denied")
)

// Config — параметры подключения.
type Config struct {
	// Endpoint — host:port без схемы.
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool

	// Region — регион bucket. Если не задан, используется us-east-1:
	// MinIO его принимает, а клиент не делает лишний запрос GetBucketLocation.
	Region string
}

const defaultRegion = "us-east-1"

// Client — обёртка над minio.Client.
type Client struct {
	mc     *minio.Client
	logger *slog.Logger
}

// NewClient создаёт клиент. Соединение не устанавливается до первого запроса.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("new minio client: %w", err)
	}

	return &Client{mc: mc, logger: logger}, nil
}

// Fetch открывает объект на чтение.
//
// GetObject у minio ленивый, поэтому сразу делаем Stat: отсутствие
// объекта и ошибки сети проявляются здесь, а не при чтении CSV.
// Вызывающий обязан закрыть reader.
func (c *Client) Fetch(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := c.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapError(bucket, key, err)
	}

	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, mapError(bucket, key, err)
	}

	c.logger.Info("object opened",
		"bucket", bucket,
		"key", key,
		"size", info.Size,
		"etag", info.ETag,
	)

	return obj, nil
}

// Upload загружает локальный файл в bucket/key.
func (c *Client) Upload(ctx context.Context, bucket, key, path string) error {
	info, err := c.mc.FPutObject(ctx, bucket, key, path, minio.PutObjectOptions{
		ContentType: contentType(path),
	})
	if err != nil {
		return mapError(bucket, key, err)
	}

	c.logger.Debug("object uploaded",
		"bucket", bucket,
		"key", key,
		"size", info.Size,
	)
	return nil
}

// mapError переводит коды ошибок S3 в ошибки пакета.
func mapError(bucket, key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return fmt.Errorf("%w: %s/%s: %v", ErrAccessDenied, bucket, key, err)
	default:
		return fmt.Errorf("storage %s/%s: %w", bucket, key, err)
	}
}
