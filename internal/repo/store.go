package repo

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store — PostgreSQL-реализация контрактов пакета store.
//
// Собирает все репозитории под одним значением; каждая группа таблиц
// живёт в своём файле. Ошибки отображаются на сентинелы store, чтобы
// вызывающие не зависели от движка хранения.
type Store struct {
	*WorkflowRepo
	*SnapshotRepo
	*WorkOrderRepo
	*RunRepo
	*StepRepo
	*DataclipRepo
	*CredentialRepo
}

// NewStore создаёт Store поверх пула соединений.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		WorkflowRepo:   NewWorkflowRepo(pool),
		SnapshotRepo:   NewSnapshotRepo(pool),
		WorkOrderRepo:  NewWorkOrderRepo(pool),
		RunRepo:        NewRunRepo(pool),
		StepRepo:       NewStepRepo(pool),
		DataclipRepo:   NewDataclipRepo(pool),
		CredentialRepo: NewCredentialRepo(pool),
	}
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}
