package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conductor/internal/domain"
)

// Memory — хранилище в памяти.
//
// Реализует все контракты Store. Используется в тестах и в однонодовом
// dev-режиме (conductor-api без DB_URL). Не предназначено для
// production: данные живут до рестарта процесса.
type Memory struct {
	mu        sync.RWMutex
	workflows map[uuid.UUID]*domain.Workflow
	snapshots map[uuid.UUID]*domain.Snapshot
	orders    map[uuid.UUID]*domain.WorkOrder
	runs      map[uuid.UUID]*domain.Run
	steps     map[uuid.UUID]*domain.Step
	clips     map[uuid.UUID]*domain.Dataclip
	creds     map[uuid.UUID]*domain.Credential
	keychains map[uuid.UUID]*domain.KeychainCredential
	logs      []domain.LogLine
}

// NewMemory создаёт пустое хранилище в памяти.
func NewMemory() *Memory {
	return &Memory{
		workflows: make(map[uuid.UUID]*domain.Workflow),
		snapshots: make(map[uuid.UUID]*domain.Snapshot),
		orders:    make(map[uuid.UUID]*domain.WorkOrder),
		runs:      make(map[uuid.UUID]*domain.Run),
		steps:     make(map[uuid.UUID]*domain.Step),
		clips:     make(map[uuid.UUID]*domain.Dataclip),
		creds:     make(map[uuid.UUID]*domain.Credential),
		keychains: make(map[uuid.UUID]*domain.KeychainCredential),
	}
}

// --- WorkflowStore ---

// PutWorkflow сохраняет workflow (seed для тестов и dev-режима).
func (m *Memory) PutWorkflow(wf *domain.Workflow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *wf
	m.workflows[wf.ID] = &cp
}

func (m *Memory) GetWorkflow(_ context.Context, id uuid.UUID) (*domain.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *wf
	return &cp, nil
}

func (m *Memory) GetWorkflowByTrigger(_ context.Context, triggerID uuid.UUID) (*domain.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, wf := range m.workflows {
		for i := range wf.Triggers {
			if wf.Triggers[i].ID == triggerID {
				cp := *wf
				return &cp, nil
			}
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListDueCronTriggers(_ context.Context, now time.Time, limit int) ([]domain.Trigger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	due := make([]domain.Trigger, 0)
	for _, wf := range m.workflows {
		if !wf.IsRunnable() {
			continue
		}
		for _, tr := range wf.Triggers {
			if tr.Type != domain.TriggerCron || !tr.Enabled || tr.NextDueAt == nil {
				continue
			}
			if !now.Before(*tr.NextDueAt) {
				due = append(due, tr)
			}
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextDueAt.Before(*due[j].NextDueAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *Memory) UpdateTriggerNextDue(_ context.Context, triggerID uuid.UUID, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, wf := range m.workflows {
		for i := range wf.Triggers {
			if wf.Triggers[i].ID == triggerID {
				wf.Triggers[i].NextDueAt = &next
				return nil
			}
		}
	}
	return ErrNotFound
}

// --- SnapshotStore ---

func (m *Memory) CreateSnapshot(_ context.Context, snap *domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[snap.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *snap
	m.snapshots[snap.ID] = &cp
	return nil
}

func (m *Memory) GetSnapshot(_ context.Context, id uuid.UUID) (*domain.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *snap
	return &cp, nil
}

func (m *Memory) GetSnapshotByVersion(_ context.Context, workflowID uuid.UUID, lockVersion int) (*domain.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, snap := range m.snapshots {
		if snap.WorkflowID == workflowID && snap.LockVersion == lockVersion {
			cp := *snap
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// --- WorkOrderStore ---

func (m *Memory) CreateWorkOrder(_ context.Context, wo *domain.WorkOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *wo
	m.orders[wo.ID] = &cp
	return nil
}

func (m *Memory) GetWorkOrder(_ context.Context, id uuid.UUID) (*domain.WorkOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wo, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *wo
	return &cp, nil
}

func (m *Memory) UpdateWorkOrderState(_ context.Context, id uuid.UUID, state domain.WorkOrderState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wo, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	wo.State = state
	wo.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) ListWorkOrders(_ context.Context, filter WorkOrderFilter) ([]domain.WorkOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.WorkOrder, 0)
	for _, wo := range m.orders {
		if filter.WorkflowID != nil && wo.WorkflowID != *filter.WorkflowID {
			continue
		}
		if filter.State != "" && wo.State != filter.State {
			continue
		}
		out = append(out, *wo)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InsertedAt.After(out[j].InsertedAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// --- RunStore ---

func (m *Memory) CreateRun(_ context.Context, run *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *Memory) GetRun(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (m *Memory) UpdateRun(_ context.Context, run *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return ErrNotFound
	}
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *Memory) ClaimOldestAvailable(_ context.Context, workerID string) (*domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var oldest *domain.Run
	for _, run := range m.runs {
		if run.State != domain.RunStateAvailable {
			continue
		}
		if oldest == nil || run.InsertedAt.Before(oldest.InsertedAt) {
			oldest = run
		}
	}
	if oldest == nil {
		return nil, ErrNotFound
	}

	oldest.MarkClaimed(workerID)
	cp := *oldest
	return &cp, nil
}

func (m *Memory) GetRunByWorkOrder(_ context.Context, workOrderID uuid.UUID) (*domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, run := range m.runs {
		if run.WorkOrderID == workOrderID {
			cp := *run
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListAbandoned(_ context.Context, olderThan time.Time, limit int) ([]domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Run, 0)
	for _, run := range m.runs {
		if run.State != domain.RunStateClaimed && run.State != domain.RunStateStarted {
			continue
		}
		if run.ClaimedAt != nil && run.ClaimedAt.Before(olderThan) {
			out = append(out, *run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimedAt.Before(*out[j].ClaimedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- StepStore ---

func (m *Memory) CreateStep(_ context.Context, step *domain.Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *step
	m.steps[step.ID] = &cp
	return nil
}

func (m *Memory) GetStep(_ context.Context, id uuid.UUID) (*domain.Step, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	step, ok := m.steps[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *step
	return &cp, nil
}

func (m *Memory) UpdateStep(_ context.Context, step *domain.Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.steps[step.ID]; !ok {
		return ErrNotFound
	}
	cp := *step
	m.steps[step.ID] = &cp
	return nil
}

func (m *Memory) ListStepsByRun(_ context.Context, runID uuid.UUID) ([]domain.Step, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Step, 0)
	for _, step := range m.steps {
		if step.RunID == runID {
			out = append(out, *step)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *Memory) AppendLogLines(_ context.Context, lines []domain.LogLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, lines...)
	return nil
}

func (m *Memory) ListLogLines(_ context.Context, runID uuid.UUID) ([]domain.LogLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.LogLine, 0)
	for _, line := range m.logs {
		if line.RunID == runID {
			out = append(out, line)
		}
	}
	return out, nil
}

// --- DataclipStore ---

func (m *Memory) CreateDataclip(_ context.Context, clip *domain.Dataclip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *clip
	m.clips[clip.ID] = &cp
	return nil
}

func (m *Memory) GetDataclip(_ context.Context, id uuid.UUID) (*domain.Dataclip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	clip, ok := m.clips[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *clip
	return &cp, nil
}

// --- CredentialStore ---

// PutCredential сохраняет credential (seed для тестов и dev-режима).
func (m *Memory) PutCredential(cred *domain.Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cred
	m.creds[cred.ID] = &cp
}

// PutKeychainCredential сохраняет keychain credential.
func (m *Memory) PutKeychainCredential(kc *domain.KeychainCredential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *kc
	m.keychains[kc.ID] = &cp
}

func (m *Memory) GetCredential(_ context.Context, id uuid.UUID) (*domain.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cred, ok := m.creds[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *cred
	return &cp, nil
}

func (m *Memory) GetCredentialByExternalID(_ context.Context, projectID uuid.UUID, externalID string) (*domain.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, cred := range m.creds {
		if cred.ProjectID == projectID && cred.ExternalID == externalID {
			cp := *cred
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetKeychainCredential(_ context.Context, id uuid.UUID) (*domain.KeychainCredential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kc, ok := m.keychains[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *kc
	return &cp, nil
}
