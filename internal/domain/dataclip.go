package domain

import (
	"time"

	"github.com/google/uuid"
)

// DataclipType — тип происхождения dataclip.
type DataclipType string

const (
	// DataclipHTTPRequest — payload входящего webhook запроса.
	DataclipHTTPRequest DataclipType = "http_request"

	// DataclipStepResult — выходное состояние завершённого step.
	DataclipStepResult DataclipType = "step_result"

	// DataclipSaved — сохранённый пользователем вход (ручной запуск).
	DataclipSaved DataclipType = "saved_input"
)

// Dataclip — неизменяемый JSON-документ, передаваемый между steps.
//
// Создаётся триггером (корневой dataclip) или как выход step. Никогда не
// мутируется; может быть "wiped" внешней retention-политикой — тогда Body
// становится nil, а WipedAt заполняется.
type Dataclip struct {
	// ID — непрозрачный уникальный идентификатор.
	ID uuid.UUID `json:"id"`

	// ProjectID — проект-владелец.
	ProjectID uuid.UUID `json:"project_id"`

	// Type — тип происхождения.
	Type DataclipType `json:"type"`

	// Body — JSON-тело. Nil после wipe.
	Body map[string]any `json:"body,omitempty"`

	// BlobRef — ссылка на вынесенное в object storage тело
	// (для больших dataclips). Пусто, если тело хранится inline.
	BlobRef string `json:"blob_ref,omitempty"`

	// WipedAt — время удаления тела retention-политикой.
	WipedAt *time.Time `json:"wiped_at,omitempty"`

	// InsertedAt — время создания.
	InsertedAt time.Time `json:"inserted_at"`
}

// IsWiped возвращает true, если тело dataclip удалено retention-политикой.
func (d *Dataclip) IsWiped() bool {
	return d.WipedAt != nil
}
