package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/store"
)

// DataclipRepo — репозиторий неизменяемых dataclips.
type DataclipRepo struct {
	pool *pgxpool.Pool
}

// NewDataclipRepo создаёт новый DataclipRepo.
func NewDataclipRepo(pool *pgxpool.Pool) *DataclipRepo {
	return &DataclipRepo{pool: pool}
}

// CreateDataclip сохраняет новый dataclip.
func (r *DataclipRepo) CreateDataclip(ctx context.Context, clip *domain.Dataclip) error {
	var bodyJSON []byte
	if clip.Body != nil {
		var err error
		bodyJSON, err = json.Marshal(clip.Body)
		if err != nil {
			return fmt.Errorf("marshal dataclip body: %w", err)
		}
	}

	query := `
		INSERT INTO dataclips (id, project_id, type, body, blob_ref, wiped_at, inserted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		clip.ID,
		clip.ProjectID,
		clip.Type,
		bodyJSON,
		nullString(clip.BlobRef),
		clip.WipedAt,
		clip.InsertedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dataclip: %w", err)
	}
	return nil
}

// GetDataclip возвращает dataclip по ID.
func (r *DataclipRepo) GetDataclip(ctx context.Context, id uuid.UUID) (*domain.Dataclip, error) {
	query := `
		SELECT id, project_id, type, body, blob_ref, wiped_at, inserted_at
		FROM dataclips
		WHERE id = $1
	`
	var clip domain.Dataclip
	var bodyJSON []byte
	var blobRef *string

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&clip.ID,
		&clip.ProjectID,
		&clip.Type,
		&bodyJSON,
		&blobRef,
		&clip.WipedAt,
		&clip.InsertedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan dataclip: %w", err)
	}

	if bodyJSON != nil {
		if err := json.Unmarshal(bodyJSON, &clip.Body); err != nil {
			return nil, fmt.Errorf("unmarshal dataclip body: %w", err)
		}
	}
	if blobRef != nil {
		clip.BlobRef = *blobRef
	}
	return &clip, nil
}
