package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conductor/internal/admission"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingNotifier запоминает опубликованные уведомления.
type recordingNotifier struct {
	runs []uuid.UUID
}

func (n *recordingNotifier) PublishRunAvailable(_ context.Context, runID, _ uuid.UUID) error {
	n.runs = append(n.runs, runID)
	return nil
}

func buildWebhookWorkflow() (*domain.Workflow, domain.Trigger) {
	wfID := uuid.New()
	trigger := domain.Trigger{
		ID:         uuid.New(),
		WorkflowID: wfID,
		Type:       domain.TriggerWebhook,
		Enabled:    true,
	}
	job := domain.Job{
		ID:         uuid.New(),
		WorkflowID: wfID,
		Name:       "ingest",
		Body:       "x = state.x",
	}
	wf := &domain.Workflow{
		ID:          wfID,
		ProjectID:   uuid.New(),
		Name:        "webhook-flow",
		LockVersion: 3,
		Enabled:     true,
		Triggers:    []domain.Trigger{trigger},
		Jobs:        []domain.Job{job},
		Edges: []domain.Edge{
			{ID: uuid.New(), WorkflowID: wfID, SourceTriggerID: &trigger.ID, TargetJobID: job.ID, Condition: domain.EdgeAlways},
		},
		CreatedAt: time.Now(),
	}
	return wf, trigger
}

func TestSubmitCreatesWorkOrderAndRun(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	wf, trigger := buildWebhookWorkflow()
	mem.PutWorkflow(wf)

	notifier := &recordingNotifier{}
	o := New(Config{Store: mem, Notifier: notifier, Logger: testLogger()})

	res, err := o.Submit(ctx, trigger.ID, map[string]any{"x": float64(42)})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if res.WorkOrder.State != domain.WorkOrderStatePending {
		t.Fatalf("work order state = %s, want pending", res.WorkOrder.State)
	}
	if res.Run.State != domain.RunStateAvailable {
		t.Fatalf("run state = %s, want available", res.Run.State)
	}
	if res.Run.WorkOrderID != res.WorkOrder.ID {
		t.Fatalf("run work order = %s, want %s", res.Run.WorkOrderID, res.WorkOrder.ID)
	}

	snap, err := mem.GetSnapshot(ctx, res.Run.SnapshotID)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if snap.WorkflowID != wf.ID || snap.LockVersion != wf.LockVersion {
		t.Fatalf("snapshot = (%s, v%d), want (%s, v%d)", snap.WorkflowID, snap.LockVersion, wf.ID, wf.LockVersion)
	}

	clip, err := mem.GetDataclip(ctx, res.Run.DataclipID)
	if err != nil {
		t.Fatalf("get dataclip: %v", err)
	}
	if clip.Type != domain.DataclipHTTPRequest {
		t.Fatalf("dataclip type = %s, want http_request", clip.Type)
	}
	if clip.Body["x"] != float64(42) {
		t.Fatalf("dataclip body = %v", clip.Body)
	}

	if len(notifier.runs) != 1 || notifier.runs[0] != res.Run.ID {
		t.Fatalf("notifications = %v, want single run %s", notifier.runs, res.Run.ID)
	}
}

func TestSubmitReusesSnapshotForSameLockVersion(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	wf, trigger := buildWebhookWorkflow()
	mem.PutWorkflow(wf)
	o := New(Config{Store: mem, Logger: testLogger()})

	first, err := o.Submit(ctx, trigger.ID, map[string]any{"n": float64(1)})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := o.Submit(ctx, trigger.ID, map[string]any{"n": float64(2)})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first.Run.SnapshotID != second.Run.SnapshotID {
		t.Fatalf("snapshots differ: %s vs %s, want reuse", first.Run.SnapshotID, second.Run.SnapshotID)
	}

	// Редактирование workflow (рост lock-версии) требует нового snapshot.
	wf.LockVersion++
	mem.PutWorkflow(wf)
	third, err := o.Submit(ctx, trigger.ID, map[string]any{"n": float64(3)})
	if err != nil {
		t.Fatalf("third submit: %v", err)
	}
	if third.Run.SnapshotID == first.Run.SnapshotID {
		t.Fatal("snapshot reused across lock versions")
	}
}

func TestSubmitUnknownTrigger(t *testing.T) {
	o := New(Config{Store: store.NewMemory(), Logger: testLogger()})
	_, err := o.Submit(context.Background(), uuid.New(), nil)
	if !errors.Is(err, ErrTriggerNotFound) {
		t.Fatalf("err = %v, want ErrTriggerNotFound", err)
	}
}

func TestSubmitDisabledWorkflow(t *testing.T) {
	mem := store.NewMemory()
	wf, trigger := buildWebhookWorkflow()
	wf.Enabled = false
	mem.PutWorkflow(wf)
	o := New(Config{Store: mem, Logger: testLogger()})

	_, err := o.Submit(context.Background(), trigger.ID, nil)
	if !errors.Is(err, ErrWorkflowDisabled) {
		t.Fatalf("err = %v, want ErrWorkflowDisabled", err)
	}
}

func TestSubmitDisabledTrigger(t *testing.T) {
	mem := store.NewMemory()
	wf, trigger := buildWebhookWorkflow()
	wf.Triggers[0].Enabled = false
	mem.PutWorkflow(wf)
	o := New(Config{Store: mem, Logger: testLogger()})

	_, err := o.Submit(context.Background(), trigger.ID, nil)
	if !errors.Is(err, ErrTriggerDisabled) {
		t.Fatalf("err = %v, want ErrTriggerDisabled", err)
	}
}

func TestSubmitRateLimited(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	wf, trigger := buildWebhookWorkflow()
	mem.PutWorkflow(wf)

	limiter := admission.New(admission.Config{
		NodeID:          "node-1",
		Capacity:        1,
		RefillPerSecond: 0.001,
	})
	o := New(Config{Store: mem, Limiter: limiter, Logger: testLogger()})

	if _, err := o.Submit(ctx, trigger.ID, nil); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err := o.Submit(ctx, trigger.ID, nil)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("err %T does not carry retry-after", err)
	}
	if rl.RetryAfter <= 0 {
		t.Fatalf("retry after = %v, want > 0", rl.RetryAfter)
	}

	// Отказ не создаёт work orders.
	orders, _ := mem.ListWorkOrders(ctx, store.WorkOrderFilter{})
	if len(orders) != 1 {
		t.Fatalf("work orders = %d, want 1", len(orders))
	}
}
