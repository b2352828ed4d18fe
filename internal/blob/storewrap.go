package blob

import (
	"context"

	"github.com/google/uuid"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/store"
)

// WrapStore оборачивает persistence-слой прозрачным выносом крупных тел
// dataclips: CreateDataclip выносит тело перед записью, GetDataclip
// подтягивает вынесенное обратно. Остальные операции проходят насквозь.
func WrapStore(inner store.Store, blobs *Store) store.Store {
	return &wrappedStore{Store: inner, blobs: blobs}
}

type wrappedStore struct {
	store.Store
	blobs *Store
}

func (w *wrappedStore) CreateDataclip(ctx context.Context, clip *domain.Dataclip) error {
	if err := w.blobs.Offload(ctx, clip); err != nil {
		return err
	}
	return w.Store.CreateDataclip(ctx, clip)
}

func (w *wrappedStore) GetDataclip(ctx context.Context, id uuid.UUID) (*domain.Dataclip, error) {
	clip, err := w.Store.GetDataclip(ctx, id)
	if err != nil {
		return nil, err
	}
	if clip.BlobRef != "" && clip.Body == nil {
		body, err := w.blobs.Fetch(ctx, clip)
		if err != nil {
			return nil, err
		}
		clip.Body = body
	}
	return clip, nil
}
