package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conductor/internal/admission"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/engine"
	"github.com/shaiso/Conductor/internal/store"
)

// RunNotifier уведомляет воркеров о появлении нового available run.
// Реализуется mq.Publisher; nil — воркеры узнают о run при очередном опросе.
type RunNotifier interface {
	PublishRunAvailable(ctx context.Context, runID, workOrderID uuid.UUID) error
}

// Orchestrator — фасад приёма событий триггеров.
//
// Единственная операция — Submit: допуск через лимитер, заморозка
// workflow в snapshot, создание корневого dataclip, work order и
// available run. Submit не выполняет ничего сам — выполнение начинается,
// когда воркер сделает claim.
type Orchestrator struct {
	store    store.Store
	limiter  *admission.Limiter
	notifier RunNotifier
	logger   *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Store — persistence-слой.
	Store store.Store

	// Limiter — admission-контроль. Nil — допуск без ограничений.
	Limiter *admission.Limiter

	// Notifier — уведомление воркеров. Nil — только опрос.
	Notifier RunNotifier

	// Logger — логгер.
	Logger *slog.Logger
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    cfg.Store,
		limiter:  cfg.Limiter,
		notifier: cfg.Notifier,
		logger:   logger,
	}
}

// SubmitResult — результат успешного submit.
type SubmitResult struct {
	WorkOrder *domain.WorkOrder `json:"work_order"`
	Run       *domain.Run       `json:"run"`
}

// Submit принимает событие триггера и создаёт work order с available run.
//
// Ключ admission — проект workflow: шумный сосед не выедает пропускную
// способность чужих проектов. Snapshot переиспользуется, пока workflow не
// редактировали (пара WorkflowID/LockVersion), иначе замораживается новый.
func (o *Orchestrator) Submit(ctx context.Context, triggerID uuid.UUID, body map[string]any) (*SubmitResult, error) {
	wf, err := o.store.GetWorkflowByTrigger(ctx, triggerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTriggerNotFound
		}
		return nil, fmt.Errorf("get workflow by trigger: %w", err)
	}

	trigger := wf.TriggerByID(triggerID)
	if trigger == nil {
		return nil, ErrTriggerNotFound
	}
	if !wf.IsRunnable() {
		return nil, ErrWorkflowDisabled
	}
	if !trigger.Enabled {
		return nil, ErrTriggerDisabled
	}

	if o.limiter != nil {
		decision := o.limiter.Allow(wf.ProjectID.String())
		if !decision.Allowed {
			o.logger.Debug("submit rejected by limiter",
				"trigger_id", triggerID,
				"project_id", wf.ProjectID,
				"retry_after", decision.RetryAfter,
			)
			return nil, &RateLimitedError{RetryAfter: decision.RetryAfter}
		}
	}

	snap, err := o.ensureSnapshot(ctx, wf)
	if err != nil {
		return nil, err
	}

	clip := &domain.Dataclip{
		ID:         uuid.New(),
		ProjectID:  wf.ProjectID,
		Type:       rootDataclipType(trigger.Type),
		Body:       body,
		InsertedAt: time.Now(),
	}
	if err := o.store.CreateDataclip(ctx, clip); err != nil {
		return nil, fmt.Errorf("create root dataclip: %w", err)
	}

	now := time.Now()
	wo := &domain.WorkOrder{
		ID:         uuid.New(),
		WorkflowID: wf.ID,
		SnapshotID: snap.ID,
		TriggerID:  triggerID,
		DataclipID: clip.ID,
		State:      domain.WorkOrderStatePending,
		InsertedAt: now,
		UpdatedAt:  now,
	}
	if err := o.store.CreateWorkOrder(ctx, wo); err != nil {
		return nil, fmt.Errorf("create work order: %w", err)
	}

	run := &domain.Run{
		ID:          uuid.New(),
		WorkOrderID: wo.ID,
		SnapshotID:  snap.ID,
		TriggerID:   triggerID,
		DataclipID:  clip.ID,
		State:       domain.RunStateAvailable,
		InsertedAt:  now,
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	if o.notifier != nil {
		// Уведомление — подсказка, не источник истины: run уже в очереди
		// claim, воркер найдёт его и опросом.
		if err := o.notifier.PublishRunAvailable(ctx, run.ID, wo.ID); err != nil {
			o.logger.Warn("run available notification failed",
				"run_id", run.ID,
				"error", err,
			)
		}
	}

	o.logger.Info("work order submitted",
		"work_order_id", wo.ID,
		"run_id", run.ID,
		"workflow_id", wf.ID,
		"trigger_id", triggerID,
		"snapshot_id", snap.ID,
	)

	return &SubmitResult{WorkOrder: wo, Run: run}, nil
}

// ensureSnapshot возвращает snapshot текущей lock-версии workflow,
// замораживая новый при необходимости.
func (o *Orchestrator) ensureSnapshot(ctx context.Context, wf *domain.Workflow) (*domain.Snapshot, error) {
	snap, err := o.store.GetSnapshotByVersion(ctx, wf.ID, wf.LockVersion)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get snapshot by version: %w", err)
	}

	snap = engine.BuildSnapshot(wf)
	if err := o.store.CreateSnapshot(ctx, snap); err != nil {
		// Конкурентный submit успел первым — используем его snapshot.
		if errors.Is(err, store.ErrAlreadyExists) {
			return o.store.GetSnapshotByVersion(ctx, wf.ID, wf.LockVersion)
		}
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	return snap, nil
}

// rootDataclipType выбирает тип корневого dataclip по типу триггера.
func rootDataclipType(t domain.TriggerType) domain.DataclipType {
	switch t {
	case domain.TriggerWebhook, domain.TriggerKafka:
		return domain.DataclipHTTPRequest
	default:
		return domain.DataclipSaved
	}
}
