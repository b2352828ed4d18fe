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

// CredentialRepo — репозиторий credentials и keychain credentials.
// Только чтение: управление секретами — вне ядра.
type CredentialRepo struct {
	pool *pgxpool.Pool
}

// NewCredentialRepo создаёт новый CredentialRepo.
func NewCredentialRepo(pool *pgxpool.Pool) *CredentialRepo {
	return &CredentialRepo{pool: pool}
}

// GetCredential возвращает credential по ID.
func (r *CredentialRepo) GetCredential(ctx context.Context, id uuid.UUID) (*domain.Credential, error) {
	query := `
		SELECT id, project_id, name, external_id, body, created_at
		FROM credentials
		WHERE id = $1
	`
	return scanCredential(r.pool.QueryRow(ctx, query, id))
}

// GetCredentialByExternalID возвращает credential проекта по внешнему ID.
func (r *CredentialRepo) GetCredentialByExternalID(ctx context.Context, projectID uuid.UUID, externalID string) (*domain.Credential, error) {
	query := `
		SELECT id, project_id, name, external_id, body, created_at
		FROM credentials
		WHERE project_id = $1 AND external_id = $2
	`
	return scanCredential(r.pool.QueryRow(ctx, query, projectID, externalID))
}

// GetKeychainCredential возвращает keychain credential по ID.
func (r *CredentialRepo) GetKeychainCredential(ctx context.Context, id uuid.UUID) (*domain.KeychainCredential, error) {
	query := `
		SELECT id, project_id, name, path, default_credential_id, created_at
		FROM keychain_credentials
		WHERE id = $1
	`
	var kc domain.KeychainCredential
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&kc.ID,
		&kc.ProjectID,
		&kc.Name,
		&kc.Path,
		&kc.DefaultCredentialID,
		&kc.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan keychain credential: %w", err)
	}
	return &kc, nil
}

// scanCredential сканирует строку в Credential.
func scanCredential(row pgx.Row) (*domain.Credential, error) {
	var cred domain.Credential
	var bodyJSON []byte
	var externalID *string

	err := row.Scan(
		&cred.ID,
		&cred.ProjectID,
		&cred.Name,
		&externalID,
		&bodyJSON,
		&cred.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan credential: %w", err)
	}

	if externalID != nil {
		cred.ExternalID = *externalID
	}
	if bodyJSON != nil {
		if err := json.Unmarshal(bodyJSON, &cred.Body); err != nil {
			return nil, fmt.Errorf("unmarshal credential body: %w", err)
		}
	}
	return &cred, nil
}
