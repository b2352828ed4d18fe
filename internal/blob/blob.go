package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/shaiso/Conductor/internal/domain"
)

// DefaultInlineLimit — порог (в байтах), после которого тело dataclip
// выносится в object storage вместо JSONB-колонки.
const DefaultInlineLimit = 256 * 1024

// Store выносит крупные тела dataclips в S3-совместимое хранилище.
//
// Небольшие тела остаются inline в БД; тело крупнее порога заменяется
// ссылкой BlobRef, а сам JSON уезжает в bucket. Dataclip неизменяем,
// поэтому объект пишется ровно один раз.
type Store struct {
	client *minio.Client
	bucket string
	limit  int
	logger *slog.Logger
}

// Config — конфигурация Store.
type Config struct {
	// Endpoint — адрес S3-совместимого хранилища.
	Endpoint string

	// AccessKey, SecretKey — ключи доступа.
	AccessKey string
	SecretKey string

	// UseSSL — использовать TLS.
	UseSSL bool

	// Bucket — bucket для тел dataclips.
	Bucket string

	// InlineLimit — порог выноса в байтах. <= 0 — значение по умолчанию.
	InlineLimit int

	// Logger — логгер.
	Logger *slog.Logger
}

// New создаёт Store и убеждается, что bucket существует.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("blob endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("blob bucket is required")
	}
	limit := cfg.InlineLimit
	if limit <= 0 {
		limit = DefaultInlineLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("new minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket: %w", err)
		}
	}

	return &Store{client: client, bucket: cfg.Bucket, limit: limit, logger: logger}, nil
}

// Offload выносит тело dataclip в хранилище, если оно крупнее порога.
// Для небольших тел — no-op.
func (s *Store) Offload(ctx context.Context, clip *domain.Dataclip) error {
	if clip.Body == nil {
		return nil
	}
	body, err := json.Marshal(clip.Body)
	if err != nil {
		return fmt.Errorf("marshal dataclip body: %w", err)
	}
	if len(body) <= s.limit {
		return nil
	}

	key := objectKey(clip)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("put dataclip object: %w", err)
	}

	clip.Body = nil
	clip.BlobRef = key

	s.logger.Debug("dataclip body offloaded",
		"dataclip_id", clip.ID,
		"key", key,
		"size", len(body),
	)
	return nil
}

// Fetch возвращает тело dataclip, подтягивая вынесенное из хранилища.
func (s *Store) Fetch(ctx context.Context, clip *domain.Dataclip) (map[string]any, error) {
	if clip.Body != nil || clip.BlobRef == "" {
		return clip.Body, nil
	}

	obj, err := s.client.GetObject(ctx, s.bucket, clip.BlobRef, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get dataclip object: %w", err)
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read dataclip object: %w", err)
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("unmarshal dataclip body: %w", err)
	}
	return body, nil
}

// objectKey — ключ объекта для dataclip.
func objectKey(clip *domain.Dataclip) string {
	return "dataclips/" + clip.ID.String() + ".json"
}
