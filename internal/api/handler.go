package api

import (
	"log/slog"

	"github.com/shaiso/Conductor/internal/claims"
	"github.com/shaiso/Conductor/internal/orchestrator"
	"github.com/shaiso/Conductor/internal/store"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	store        store.Store
	orchestrator *orchestrator.Orchestrator
	queue        *claims.Queue
	logger       *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Store        store.Store
	Orchestrator *orchestrator.Orchestrator
	Queue        *claims.Queue
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		store:        cfg.Store,
		orchestrator: cfg.Orchestrator,
		queue:        cfg.Queue,
		logger:       cfg.Logger,
	}
}
