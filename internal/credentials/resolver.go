package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/engine"
	"github.com/shaiso/Conductor/internal/store"
)

// Resolver разрешает эффективный credential для job.
//
// Два пути:
//   - прямая ссылка Job.CredentialID — credential возвращается как есть,
//     без обращения к данным триггера;
//   - Job.KeychainCredentialID — path-выражение keychain вычисляется над
//     телом корневого dataclip; совпавшее значение трактуется как
//     ExternalID credential'а проекта.
//
// Отсутствие совпадения и некорректный путь — не ошибки: job выполняется
// без секрета (nil). Разрешение чистое и воспроизводимое: одна и та же
// пара (job, body) всегда даёт одну и ту же ссылку на credential.
type Resolver struct {
	creds  store.CredentialStore
	logger *slog.Logger
}

// NewResolver создаёт Resolver.
func NewResolver(creds store.CredentialStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{creds: creds, logger: logger}
}

// Resolve возвращает credential для job или nil.
func (r *Resolver) Resolve(ctx context.Context, job *domain.Job, triggerBody map[string]any) (*domain.Credential, error) {
	switch {
	case job.CredentialID != nil:
		cred, err := r.creds.GetCredential(ctx, *job.CredentialID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("get credential: %w", err)
		}
		return cred, nil

	case job.KeychainCredentialID != nil:
		return r.resolveKeychain(ctx, job, *job.KeychainCredentialID, triggerBody)

	default:
		return nil, nil
	}
}

// resolveKeychain выполняет динамический выбор credential.
func (r *Resolver) resolveKeychain(ctx context.Context, job *domain.Job, keychainID uuid.UUID, triggerBody map[string]any) (*domain.Credential, error) {
	keychain, err := r.creds.GetKeychainCredential(ctx, keychainID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get keychain credential: %w", err)
	}

	externalID, ok := matchPath(keychain.Path, triggerBody)
	if !ok {
		r.logger.Debug("keychain path did not match",
			"job_id", job.ID,
			"keychain_id", keychain.ID,
		)
		return r.defaultCredential(ctx, keychain)
	}

	cred, err := r.creds.GetCredentialByExternalID(ctx, keychain.ProjectID, externalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return r.defaultCredential(ctx, keychain)
		}
		return nil, fmt.Errorf("get credential by external id: %w", err)
	}
	return cred, nil
}

// defaultCredential возвращает credential по умолчанию для keychain или nil.
func (r *Resolver) defaultCredential(ctx context.Context, keychain *domain.KeychainCredential) (*domain.Credential, error) {
	if keychain.DefaultCredentialID == nil {
		return nil, nil
	}
	cred, err := r.creds.GetCredential(ctx, *keychain.DefaultCredentialID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get default credential: %w", err)
	}
	return cred, nil
}

// matchPath вычисляет path-выражение и приводит результат к непустой строке.
// Некорректный путь или нестроковое значение — отсутствие совпадения.
func matchPath(path string, body map[string]any) (string, bool) {
	if path == "" || body == nil {
		return "", false
	}
	value, ok := engine.Lookup(body, path)
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
