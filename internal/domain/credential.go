package domain

import (
	"time"

	"github.com/google/uuid"
)

// Credential — именованный секрет, принадлежащий проекту.
//
// Body — произвольный набор полей (username, password, token, ...).
// Все строковые значения Body считаются секретами и вычищаются
// redactor'ом из логов run, которому credential был виден.
type Credential struct {
	// ID — уникальный идентификатор credential.
	ID uuid.UUID `json:"id"`

	// ProjectID — проект-владелец.
	ProjectID uuid.UUID `json:"project_id"`

	// Name — имя credential.
	Name string `json:"name"`

	// ExternalID — внешний идентификатор, по которому keychain
	// сопоставляет credential со значением из данных триггера.
	ExternalID string `json:"external_id,omitempty"`

	// Body — поля секрета.
	Body map[string]string `json:"body"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// SecretValues возвращает все строковые значения секрета для redaction.
func (c *Credential) SecretValues() []string {
	values := make([]string, 0, len(c.Body))
	for _, v := range c.Body {
		if v != "" {
			values = append(values, v)
		}
	}
	return values
}

// KeychainCredential — правило динамического выбора credential.
//
// Keychain не хранит секрет: он владеет path-выражением, которое в момент
// выполнения вычисляется над телом корневого dataclip. Совпавшее значение
// трактуется как ExternalID конкретного Credential проекта.
type KeychainCredential struct {
	// ID — уникальный идентификатор keychain credential.
	ID uuid.UUID `json:"id"`

	// ProjectID — проект-владелец.
	ProjectID uuid.UUID `json:"project_id"`

	// Name — имя правила.
	Name string `json:"name"`

	// Path — path-выражение над телом dataclip ("$.user.org" или "user.org").
	Path string `json:"path"`

	// DefaultCredentialID — credential, используемый при отсутствии
	// совпадения. Nil — без совпадения job выполняется без секрета.
	DefaultCredentialID *uuid.UUID `json:"default_credential_id,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}
