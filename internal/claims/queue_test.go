package claims

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/engine"
	"github.com/shaiso/Conductor/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestQueue(mem *store.Memory) *Queue {
	return New(Config{Store: mem, Logger: testLogger()})
}

// chainFixture — workflow из четырёх jobs:
//
//	trigger --always--> job1
//	job1 --on_job_success--> job2
//	job2 --on_job_failure--> job3
//	job3 --js_expression "state.x < 1000"--> job4
type chainFixture struct {
	workflow *domain.Workflow
	trigger  domain.Trigger
	jobs     [4]domain.Job
}

func buildChainFixture() chainFixture {
	wfID := uuid.New()
	trigger := domain.Trigger{
		ID:         uuid.New(),
		WorkflowID: wfID,
		Type:       domain.TriggerWebhook,
		Enabled:    true,
	}
	var jobs [4]domain.Job
	for i := range jobs {
		jobs[i] = domain.Job{
			ID:         uuid.New(),
			WorkflowID: wfID,
			Name:       "job-" + string(rune('1'+i)),
			Body:       "x = state.x * 2",
		}
	}
	edges := []domain.Edge{
		{ID: uuid.New(), WorkflowID: wfID, SourceTriggerID: &trigger.ID, TargetJobID: jobs[0].ID, Condition: domain.EdgeAlways},
		{ID: uuid.New(), WorkflowID: wfID, SourceJobID: &jobs[0].ID, TargetJobID: jobs[1].ID, Condition: domain.EdgeOnSuccess},
		{ID: uuid.New(), WorkflowID: wfID, SourceJobID: &jobs[1].ID, TargetJobID: jobs[2].ID, Condition: domain.EdgeOnFailure},
		{ID: uuid.New(), WorkflowID: wfID, SourceJobID: &jobs[2].ID, TargetJobID: jobs[3].ID, Condition: domain.EdgeExpression, ConditionExpression: "state.x < 1000"},
	}
	wf := &domain.Workflow{
		ID:          wfID,
		ProjectID:   uuid.New(),
		Name:        "chain",
		LockVersion: 1,
		Enabled:     true,
		Triggers:    []domain.Trigger{trigger},
		Jobs:        jobs[:],
		Edges:       edges,
		CreatedAt:   time.Now(),
	}
	return chainFixture{workflow: wf, trigger: trigger, jobs: jobs}
}

// seedRun сохраняет snapshot, корневой dataclip, work order и available run.
func seedRun(t *testing.T, mem *store.Memory, wf *domain.Workflow, trigger domain.Trigger, body map[string]any) *domain.Run {
	t.Helper()
	ctx := context.Background()

	snap := engine.BuildSnapshot(wf)
	if err := mem.CreateSnapshot(ctx, snap); err != nil {
		t.Fatalf("create snapshot: %v", err)
	}
	clip := &domain.Dataclip{
		ID:         uuid.New(),
		ProjectID:  wf.ProjectID,
		Type:       domain.DataclipHTTPRequest,
		Body:       body,
		InsertedAt: time.Now(),
	}
	if err := mem.CreateDataclip(ctx, clip); err != nil {
		t.Fatalf("create dataclip: %v", err)
	}
	wo := &domain.WorkOrder{
		ID:         uuid.New(),
		WorkflowID: wf.ID,
		SnapshotID: snap.ID,
		TriggerID:  trigger.ID,
		DataclipID: clip.ID,
		State:      domain.WorkOrderStatePending,
		InsertedAt: time.Now(),
	}
	if err := mem.CreateWorkOrder(ctx, wo); err != nil {
		t.Fatalf("create work order: %v", err)
	}
	run := &domain.Run{
		ID:          uuid.New(),
		WorkOrderID: wo.ID,
		SnapshotID:  snap.ID,
		TriggerID:   trigger.ID,
		DataclipID:  clip.ID,
		State:       domain.RunStateAvailable,
		InsertedAt:  time.Now(),
	}
	if err := mem.CreateRun(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	return run
}

// runStep выполняет полный цикл start_step + complete_step для job.
func runStep(t *testing.T, q *Queue, runID, jobID uuid.UUID, reason domain.ExitReason, output map[string]any) []ReadyJob {
	t.Helper()
	ctx := context.Background()

	started, err := q.StartStep(ctx, runID, jobID)
	if err != nil {
		t.Fatalf("start step for job %s: %v", jobID, err)
	}
	next, err := q.CompleteStep(ctx, runID, started.Step.ID, reason, output)
	if err != nil {
		t.Fatalf("complete step %s: %v", started.Step.ID, err)
	}
	return next
}

func TestQueueRunChainWithFailureBranch(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	q := newTestQueue(mem)
	fx := buildChainFixture()
	mem.PutWorkflow(fx.workflow)
	run := seedRun(t, mem, fx.workflow, fx.trigger, map[string]any{"x": float64(1)})

	claimed, err := q.Claim(ctx, "worker-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Run.ID != run.ID {
		t.Fatalf("claimed run %s, want %s", claimed.Run.ID, run.ID)
	}
	if len(claimed.Ready) != 1 || claimed.Ready[0].JobID != fx.jobs[0].ID {
		t.Fatalf("initial ready = %+v, want only job1", claimed.Ready)
	}
	if claimed.Ready[0].InputDataclipID != run.DataclipID {
		t.Fatalf("job1 input = %s, want root dataclip %s", claimed.Ready[0].InputDataclipID, run.DataclipID)
	}
	if err := q.StartRun(ctx, run.ID); err != nil {
		t.Fatalf("start run: %v", err)
	}

	// job1 успешен → on_job_success ведёт к job2.
	next := runStep(t, q, run.ID, fx.jobs[0].ID, domain.ExitSuccess, map[string]any{"x": float64(2)})
	if len(next) != 1 || next[0].JobID != fx.jobs[1].ID {
		t.Fatalf("after job1 ready = %+v, want job2", next)
	}

	// job2 падает → on_job_failure ведёт к job3.
	next = runStep(t, q, run.ID, fx.jobs[1].ID, domain.ExitFail, map[string]any{"x": float64(2)})
	if len(next) != 1 || next[0].JobID != fx.jobs[2].ID {
		t.Fatalf("after job2 ready = %+v, want job3", next)
	}

	// job3 успешен, state.x < 1000 → js_expression ведёт к job4.
	next = runStep(t, q, run.ID, fx.jobs[2].ID, domain.ExitSuccess, map[string]any{"x": float64(4)})
	if len(next) != 1 || next[0].JobID != fx.jobs[3].ID {
		t.Fatalf("after job3 ready = %+v, want job4", next)
	}

	next = runStep(t, q, run.ID, fx.jobs[3].ID, domain.ExitSuccess, map[string]any{"x": float64(8)})
	if len(next) != 0 {
		t.Fatalf("after job4 ready = %+v, want none", next)
	}

	if err := q.CompleteRun(ctx, run.ID, domain.RunStateSuccess, ""); err != nil {
		t.Fatalf("complete run: %v", err)
	}

	got, err := mem.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.State != domain.RunStateSuccess {
		t.Fatalf("run state = %s, want success", got.State)
	}
	steps, err := mem.ListStepsByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("list steps: %v", err)
	}
	if len(steps) != 4 {
		t.Fatalf("steps = %d, want 4", len(steps))
	}
	if steps[1].ExitReason != domain.ExitFail {
		t.Fatalf("step 2 exit = %s, want fail", steps[1].ExitReason)
	}
	wo, err := mem.GetWorkOrder(ctx, run.WorkOrderID)
	if err != nil {
		t.Fatalf("get work order: %v", err)
	}
	if wo.State != domain.WorkOrderStateSuccess {
		t.Fatalf("work order state = %s, want success", wo.State)
	}
}

func TestQueueRunWithZeroReadyJobsEndsSuccessfully(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	q := newTestQueue(mem)
	fx := buildChainFixture()

	// Единственное ребро от триггера — js_expression, ложное для этого
	// payload: стартовых jobs нет вовсе.
	fx.workflow.Edges = []domain.Edge{
		{
			ID:                  uuid.New(),
			WorkflowID:          fx.workflow.ID,
			SourceTriggerID:     &fx.trigger.ID,
			TargetJobID:         fx.jobs[0].ID,
			Condition:           domain.EdgeExpression,
			ConditionExpression: "state.kind == \"wanted\"",
		},
	}
	mem.PutWorkflow(fx.workflow)
	run := seedRun(t, mem, fx.workflow, fx.trigger, map[string]any{"kind": "other"})

	claimed, err := q.Claim(ctx, "worker-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed.Ready) != 0 {
		t.Fatalf("ready = %+v, want none", claimed.Ready)
	}
	if err := q.StartRun(ctx, run.ID); err != nil {
		t.Fatalf("start run: %v", err)
	}
	if err := q.CompleteRun(ctx, run.ID, domain.RunStateSuccess, ""); err != nil {
		t.Fatalf("complete run: %v", err)
	}

	got, _ := mem.GetRun(ctx, run.ID)
	if got.State != domain.RunStateSuccess {
		t.Fatalf("run state = %s, want success", got.State)
	}
	steps, _ := mem.ListStepsByRun(ctx, run.ID)
	if len(steps) != 0 {
		t.Fatalf("steps = %d, want 0", len(steps))
	}
	wo, _ := mem.GetWorkOrder(ctx, run.WorkOrderID)
	if wo.State != domain.WorkOrderStateSuccess {
		t.Fatalf("work order state = %s, want success", wo.State)
	}
}

func TestQueueStepWithoutOutputGetsEmptyDataclip(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	q := newTestQueue(mem)
	fx := buildChainFixture()
	fx.workflow.Edges = []domain.Edge{
		{ID: uuid.New(), WorkflowID: fx.workflow.ID, SourceTriggerID: &fx.trigger.ID, TargetJobID: fx.jobs[0].ID, Condition: domain.EdgeAlways},
		{ID: uuid.New(), WorkflowID: fx.workflow.ID, SourceJobID: &fx.jobs[0].ID, TargetJobID: fx.jobs[1].ID, Condition: domain.EdgeAlways},
	}
	mem.PutWorkflow(fx.workflow)
	run := seedRun(t, mem, fx.workflow, fx.trigger, map[string]any{"x": float64(7)})

	if _, err := q.Claim(ctx, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := q.StartRun(ctx, run.ID); err != nil {
		t.Fatalf("start run: %v", err)
	}

	// complete_step(success) без выхода: выходной dataclip создаётся всё
	// равно, с пустым телом, и именно он уходит downstream.
	next := runStep(t, q, run.ID, fx.jobs[0].ID, domain.ExitSuccess, nil)
	if len(next) != 1 {
		t.Fatalf("ready = %+v, want job2", next)
	}

	steps, _ := mem.ListStepsByRun(ctx, run.ID)
	if steps[0].OutputDataclipID == nil {
		t.Fatal("success step must always have an output dataclip")
	}
	if next[0].InputDataclipID != *steps[0].OutputDataclipID {
		t.Fatalf("job2 input = %s, want step output %s", next[0].InputDataclipID, *steps[0].OutputDataclipID)
	}
	clip, err := mem.GetDataclip(ctx, *steps[0].OutputDataclipID)
	if err != nil {
		t.Fatalf("get output dataclip: %v", err)
	}
	if len(clip.Body) != 0 {
		t.Fatalf("output body = %v, want empty", clip.Body)
	}
}

// buildDiamondFixture: два ребра ведут в один и тот же job.
//
//	trigger --always--> left, trigger --always--> right
//	left --always--> merge, right --always--> merge
func buildDiamondFixture() chainFixture {
	fx := buildChainFixture()
	left, right, merge := fx.jobs[0].ID, fx.jobs[1].ID, fx.jobs[2].ID
	fx.workflow.Edges = []domain.Edge{
		{ID: uuid.New(), WorkflowID: fx.workflow.ID, SourceTriggerID: &fx.trigger.ID, TargetJobID: left, Condition: domain.EdgeAlways},
		{ID: uuid.New(), WorkflowID: fx.workflow.ID, SourceTriggerID: &fx.trigger.ID, TargetJobID: right, Condition: domain.EdgeAlways},
		{ID: uuid.New(), WorkflowID: fx.workflow.ID, SourceJobID: &left, TargetJobID: merge, Condition: domain.EdgeAlways},
		{ID: uuid.New(), WorkflowID: fx.workflow.ID, SourceJobID: &right, TargetJobID: merge, Condition: domain.EdgeAlways},
	}
	return fx
}

func TestQueueDiamondSchedulesJobOnce(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	q := newTestQueue(mem)
	fx := buildDiamondFixture()
	merge := fx.jobs[2].ID
	mem.PutWorkflow(fx.workflow)
	run := seedRun(t, mem, fx.workflow, fx.trigger, map[string]any{"x": float64(1)})

	if _, err := q.Claim(ctx, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := q.StartRun(ctx, run.ID); err != nil {
		t.Fatalf("start run: %v", err)
	}

	// Первая ветвь делает merge готовым.
	next := runStep(t, q, run.ID, fx.jobs[0].ID, domain.ExitSuccess, map[string]any{"x": float64(2)})
	if len(next) != 1 || next[0].JobID != merge {
		t.Fatalf("after left ready = %+v, want merge", next)
	}

	// Вторая ветвь не должна запланировать merge повторно.
	next = runStep(t, q, run.ID, fx.jobs[1].ID, domain.ExitSuccess, map[string]any{"x": float64(3)})
	if len(next) != 0 {
		t.Fatalf("after right ready = %+v, want none", next)
	}

	if _, err := q.StartStep(ctx, run.ID, merge); err != nil {
		t.Fatalf("start merge: %v", err)
	}
	// merge больше не ready: повторный start_step отвергается.
	if _, err := q.StartStep(ctx, run.ID, merge); !errors.Is(err, ErrJobNotReady) {
		t.Fatalf("second start of merge = %v, want ErrJobNotReady", err)
	}

	steps, _ := mem.ListStepsByRun(ctx, run.ID)
	mergeSteps := 0
	for i := range steps {
		if steps[i].JobID == merge {
			mergeSteps++
		}
	}
	if mergeSteps != 1 {
		t.Fatalf("merge steps = %d, want exactly 1", mergeSteps)
	}
}

func TestQueueDiamondDedupSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	q := newTestQueue(mem)
	fx := buildDiamondFixture()
	merge := fx.jobs[2].ID
	mem.PutWorkflow(fx.workflow)
	run := seedRun(t, mem, fx.workflow, fx.trigger, map[string]any{"x": float64(1)})

	if _, err := q.Claim(ctx, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := q.StartRun(ctx, run.ID); err != nil {
		t.Fatalf("start run: %v", err)
	}
	runStep(t, q, run.ID, fx.jobs[0].ID, domain.ExitSuccess, map[string]any{"x": float64(2)})
	runStep(t, q, run.ID, fx.jobs[1].ID, domain.ExitSuccess, map[string]any{"x": float64(3)})

	// Новый процесс восстанавливает состояние: оба завершённых ребра
	// в merge дают один готовый job, один step.
	restarted := newTestQueue(mem)
	if _, err := restarted.StartStep(ctx, run.ID, merge); err != nil {
		t.Fatalf("start merge after restart: %v", err)
	}
	if _, err := restarted.StartStep(ctx, run.ID, merge); !errors.Is(err, ErrJobNotReady) {
		t.Fatalf("second start of merge after restart = %v, want ErrJobNotReady", err)
	}

	steps, _ := mem.ListStepsByRun(ctx, run.ID)
	mergeSteps := 0
	for i := range steps {
		if steps[i].JobID == merge {
			mergeSteps++
		}
	}
	if mergeSteps != 1 {
		t.Fatalf("merge steps = %d, want exactly 1", mergeSteps)
	}
}

func TestQueueFatalStepFinalizesRun(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	q := newTestQueue(mem)
	fx := buildChainFixture()
	mem.PutWorkflow(fx.workflow)
	run := seedRun(t, mem, fx.workflow, fx.trigger, map[string]any{"x": float64(1)})

	if _, err := q.Claim(ctx, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := q.StartRun(ctx, run.ID); err != nil {
		t.Fatalf("start run: %v", err)
	}

	next := runStep(t, q, run.ID, fx.jobs[0].ID, domain.ExitKillTimeout, nil)
	if len(next) != 0 {
		t.Fatalf("ready after fatal = %+v, want none", next)
	}

	got, _ := mem.GetRun(ctx, run.ID)
	if got.State != domain.RunStateKilled {
		t.Fatalf("run state = %s, want killed", got.State)
	}
	wo, _ := mem.GetWorkOrder(ctx, run.WorkOrderID)
	if wo.State != domain.WorkOrderStateKilled {
		t.Fatalf("work order state = %s, want killed", wo.State)
	}

	// Новые steps после фатального исхода не принимаются.
	if _, err := q.StartStep(ctx, run.ID, fx.jobs[1].ID); !errors.Is(err, ErrRunFinished) {
		t.Fatalf("start step after fatal = %v, want ErrRunFinished", err)
	}
}

func TestQueueCompleteStepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	q := newTestQueue(mem)
	fx := buildChainFixture()
	mem.PutWorkflow(fx.workflow)
	run := seedRun(t, mem, fx.workflow, fx.trigger, map[string]any{"x": float64(1)})

	if _, err := q.Claim(ctx, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := q.StartRun(ctx, run.ID); err != nil {
		t.Fatalf("start run: %v", err)
	}
	started, err := q.StartStep(ctx, run.ID, fx.jobs[0].ID)
	if err != nil {
		t.Fatalf("start step: %v", err)
	}
	if _, err := q.CompleteStep(ctx, run.ID, started.Step.ID, domain.ExitSuccess, map[string]any{"x": float64(2)}); err != nil {
		t.Fatalf("complete step: %v", err)
	}

	// Повторная доставка того же результата — no-op без новых готовых jobs.
	next, err := q.CompleteStep(ctx, run.ID, started.Step.ID, domain.ExitSuccess, map[string]any{"x": float64(2)})
	if err != nil {
		t.Fatalf("duplicate complete step: %v", err)
	}
	if len(next) != 0 {
		t.Fatalf("duplicate ready = %+v, want none", next)
	}

	// Противоречащий дубликат отвергается.
	if _, err := q.CompleteStep(ctx, run.ID, started.Step.ID, domain.ExitFail, nil); !errors.Is(err, ErrStepFinished) {
		t.Fatalf("conflicting complete step = %v, want ErrStepFinished", err)
	}
}

func TestQueueStartStepResolvesCredentialAndRedactsLogs(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	q := newTestQueue(mem)
	fx := buildChainFixture()

	cred := &domain.Credential{
		ID:        uuid.New(),
		ProjectID: fx.workflow.ProjectID,
		Name:      "warehouse",
		Body:      map[string]string{"password": "hunter2secret"},
	}
	mem.PutCredential(cred)
	fx.workflow.Jobs[0].CredentialID = &cred.ID
	mem.PutWorkflow(fx.workflow)
	run := seedRun(t, mem, fx.workflow, fx.trigger, map[string]any{"x": float64(1)})

	if _, err := q.Claim(ctx, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := q.StartRun(ctx, run.ID); err != nil {
		t.Fatalf("start run: %v", err)
	}

	started, err := q.StartStep(ctx, run.ID, fx.jobs[0].ID)
	if err != nil {
		t.Fatalf("start step: %v", err)
	}
	if started.Credential == nil || started.Credential.ID != cred.ID {
		t.Fatalf("resolved credential = %+v, want %s", started.Credential, cred.ID)
	}
	if started.Step.CredentialID == nil || *started.Step.CredentialID != cred.ID {
		t.Fatalf("step credential = %v, want %s", started.Step.CredentialID, cred.ID)
	}

	if err := q.AppendLog(ctx, run.ID, &started.Step.ID, []string{"login with hunter2secret done"}); err != nil {
		t.Fatalf("append log: %v", err)
	}
	lines, _ := mem.ListLogLines(ctx, run.ID)
	if len(lines) != 1 {
		t.Fatalf("log lines = %d, want 1", len(lines))
	}
	if strings.Contains(lines[0].Message, "hunter2secret") {
		t.Fatalf("secret leaked into log: %q", lines[0].Message)
	}
	if !strings.Contains(lines[0].Message, "***") {
		t.Fatalf("log line not masked: %q", lines[0].Message)
	}
}

func TestQueueCancelRun(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	q := newTestQueue(mem)
	fx := buildChainFixture()
	mem.PutWorkflow(fx.workflow)
	run := seedRun(t, mem, fx.workflow, fx.trigger, map[string]any{"x": float64(1)})

	if err := q.CancelRun(ctx, run.ID); err != nil {
		t.Fatalf("cancel run: %v", err)
	}
	got, _ := mem.GetRun(ctx, run.ID)
	if got.State != domain.RunStateCancelled {
		t.Fatalf("run state = %s, want cancelled", got.State)
	}
	wo, _ := mem.GetWorkOrder(ctx, run.WorkOrderID)
	if wo.State != domain.WorkOrderStateCancelled {
		t.Fatalf("work order state = %s, want cancelled", wo.State)
	}

	// Повторная отмена — no-op.
	if err := q.CancelRun(ctx, run.ID); err != nil {
		t.Fatalf("duplicate cancel: %v", err)
	}

	// Отменённый run не выдаётся.
	if _, err := q.Claim(ctx, "worker-1"); !errors.Is(err, ErrNoRuns) {
		t.Fatalf("claim after cancel = %v, want ErrNoRuns", err)
	}
}

func TestQueueCancelStartedRunRejected(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	q := newTestQueue(mem)
	fx := buildChainFixture()
	mem.PutWorkflow(fx.workflow)
	run := seedRun(t, mem, fx.workflow, fx.trigger, map[string]any{"x": float64(1)})

	if _, err := q.Claim(ctx, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := q.StartRun(ctx, run.ID); err != nil {
		t.Fatalf("start run: %v", err)
	}
	if err := q.CancelRun(ctx, run.ID); !errors.Is(err, ErrRunActive) {
		t.Fatalf("cancel started run = %v, want ErrRunActive", err)
	}
}

func TestQueueClaimOrderIsFIFO(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	q := newTestQueue(mem)
	fx := buildChainFixture()
	mem.PutWorkflow(fx.workflow)

	first := seedRun(t, mem, fx.workflow, fx.trigger, map[string]any{"n": float64(1)})
	// Гарантируем разные InsertedAt.
	second := seedRun(t, mem, fx.workflow, fx.trigger, map[string]any{"n": float64(2)})
	second.InsertedAt = first.InsertedAt.Add(time.Millisecond)
	if err := mem.UpdateRun(ctx, second); err != nil {
		t.Fatalf("update run: %v", err)
	}

	claimed, err := q.Claim(ctx, "worker-1")
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if claimed.Run.ID != first.ID {
		t.Fatalf("first claim = %s, want oldest %s", claimed.Run.ID, first.ID)
	}
	claimed, err = q.Claim(ctx, "worker-2")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed.Run.ID != second.ID {
		t.Fatalf("second claim = %s, want %s", claimed.Run.ID, second.ID)
	}
	if _, err := q.Claim(ctx, "worker-3"); !errors.Is(err, ErrNoRuns) {
		t.Fatalf("third claim = %v, want ErrNoRuns", err)
	}
}

func TestQueueStateRestoredAfterRestart(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	q := newTestQueue(mem)
	fx := buildChainFixture()
	mem.PutWorkflow(fx.workflow)
	run := seedRun(t, mem, fx.workflow, fx.trigger, map[string]any{"x": float64(1)})

	if _, err := q.Claim(ctx, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := q.StartRun(ctx, run.ID); err != nil {
		t.Fatalf("start run: %v", err)
	}
	next := runStep(t, q, run.ID, fx.jobs[0].ID, domain.ExitSuccess, map[string]any{"x": float64(2)})
	if len(next) != 1 || next[0].JobID != fx.jobs[1].ID {
		t.Fatalf("ready = %+v, want job2", next)
	}

	// Новый процесс поверх того же хранилища: run продолжается с job2.
	restarted := newTestQueue(mem)
	next2 := runStep(t, restarted, run.ID, fx.jobs[1].ID, domain.ExitFail, map[string]any{"x": float64(2)})
	if len(next2) != 1 || next2[0].JobID != fx.jobs[2].ID {
		t.Fatalf("ready after restart = %+v, want job3", next2)
	}
}

func TestWatchdogMarksAbandonedRunsLost(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	q := newTestQueue(mem)
	fx := buildChainFixture()
	mem.PutWorkflow(fx.workflow)
	run := seedRun(t, mem, fx.workflow, fx.trigger, map[string]any{"x": float64(1)})

	if _, err := q.Claim(ctx, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := q.StartRun(ctx, run.ID); err != nil {
		t.Fatalf("start run: %v", err)
	}
	if _, err := q.StartStep(ctx, run.ID, fx.jobs[0].ID); err != nil {
		t.Fatalf("start step: %v", err)
	}

	// Состариваем claim, чтобы run выглядел брошенным.
	got, _ := mem.GetRun(ctx, run.ID)
	old := time.Now().Add(-time.Hour)
	got.ClaimedAt = &old
	if err := mem.UpdateRun(ctx, got); err != nil {
		t.Fatalf("update run: %v", err)
	}

	wd := NewWatchdog(WatchdogConfig{Queue: q, LostAfter: DefaultLostAfter, Logger: testLogger()})
	if err := wd.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got, _ = mem.GetRun(ctx, run.ID)
	if got.State != domain.RunStateLost {
		t.Fatalf("run state = %s, want lost", got.State)
	}
	steps, _ := mem.ListStepsByRun(ctx, run.ID)
	if len(steps) != 1 || steps[0].ExitReason != domain.ExitLost {
		t.Fatalf("steps after sweep = %+v, want single lost step", steps)
	}
	wo, _ := mem.GetWorkOrder(ctx, run.WorkOrderID)
	if wo.State != domain.WorkOrderStateLost {
		t.Fatalf("work order state = %s, want lost", wo.State)
	}
}
