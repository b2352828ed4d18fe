package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/Conductor/internal/domain"
)

// dagFixture: trigger --always--> validate,
// validate --on_job_success--> process, validate --on_job_failure--> report,
// process --js_expression(state.notify)--> notify.
type dagFixture struct {
	wf        *domain.Workflow
	triggerID uuid.UUID
	validate  uuid.UUID
	process   uuid.UUID
	report    uuid.UUID
	notify    uuid.UUID
}

func newDAGFixture() *dagFixture {
	f := &dagFixture{
		triggerID: uuid.New(),
		validate:  uuid.New(),
		process:   uuid.New(),
		report:    uuid.New(),
		notify:    uuid.New(),
	}
	wfID := uuid.New()
	f.wf = &domain.Workflow{
		ID:          wfID,
		ProjectID:   uuid.New(),
		Name:        "orders",
		LockVersion: 1,
		Enabled:     true,
		Triggers: []domain.Trigger{
			{ID: f.triggerID, WorkflowID: wfID, Type: domain.TriggerWebhook, Enabled: true},
		},
		Jobs: []domain.Job{
			{ID: f.validate, WorkflowID: wfID, Name: "validate"},
			{ID: f.process, WorkflowID: wfID, Name: "process"},
			{ID: f.report, WorkflowID: wfID, Name: "report"},
			{ID: f.notify, WorkflowID: wfID, Name: "notify"},
		},
		Edges: []domain.Edge{
			{ID: uuid.New(), WorkflowID: wfID, SourceTriggerID: &f.triggerID, TargetJobID: f.validate, Condition: domain.EdgeAlways},
			{ID: uuid.New(), WorkflowID: wfID, SourceJobID: &f.validate, TargetJobID: f.process, Condition: domain.EdgeOnSuccess},
			{ID: uuid.New(), WorkflowID: wfID, SourceJobID: &f.validate, TargetJobID: f.report, Condition: domain.EdgeOnFailure},
			{ID: uuid.New(), WorkflowID: wfID, SourceJobID: &f.process, TargetJobID: f.notify, Condition: domain.EdgeExpression, ConditionExpression: "state.notify"},
		},
	}
	return f
}

func jobIDs(jobs []*domain.Job) []uuid.UUID {
	ids := make([]uuid.UUID, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids
}

func TestInitialJobsAlwaysEdge(t *testing.T) {
	f := newDAGFixture()
	snap := BuildSnapshot(f.wf)

	jobs := InitialJobs(snap, f.triggerID, nil)
	if len(jobs) != 1 || jobs[0].ID != f.validate {
		t.Fatalf("initial jobs = %v, want [validate]", jobIDs(jobs))
	}
}

func TestInitialJobsOutcomeConditionsNeverFireFromTrigger(t *testing.T) {
	f := newDAGFixture()
	// Переписываем ребро триггера на on_job_success: у триггера нет
	// exit_reason, ребро не должно срабатывать.
	f.wf.Edges[0].Condition = domain.EdgeOnSuccess
	snap := BuildSnapshot(f.wf)

	if jobs := InitialJobs(snap, f.triggerID, nil); len(jobs) != 0 {
		t.Fatalf("on_job_success from trigger fired: %v", jobIDs(jobs))
	}
}

func TestInitialJobsExpressionAgainstRootBody(t *testing.T) {
	f := newDAGFixture()
	f.wf.Edges[0].Condition = domain.EdgeExpression
	f.wf.Edges[0].ConditionExpression = "state.kind == 'order'"
	snap := BuildSnapshot(f.wf)

	if jobs := InitialJobs(snap, f.triggerID, map[string]any{"kind": "order"}); len(jobs) != 1 {
		t.Fatalf("matching expression did not fire: %v", jobIDs(jobs))
	}
	if jobs := InitialJobs(snap, f.triggerID, map[string]any{"kind": "other"}); len(jobs) != 0 {
		t.Fatalf("non-matching expression fired: %v", jobIDs(jobs))
	}
}

func TestNextJobsSuccessAndFailureBranches(t *testing.T) {
	f := newDAGFixture()
	snap := BuildSnapshot(f.wf)

	jobs := NextJobs(snap, f.validate, Outcome{ExitReason: domain.ExitSuccess})
	if len(jobs) != 1 || jobs[0].ID != f.process {
		t.Fatalf("success branch = %v, want [process]", jobIDs(jobs))
	}

	jobs = NextJobs(snap, f.validate, Outcome{ExitReason: domain.ExitFail})
	if len(jobs) != 1 || jobs[0].ID != f.report {
		t.Fatalf("failure branch = %v, want [report]", jobIDs(jobs))
	}
}

func TestNextJobsExpressionEdge(t *testing.T) {
	f := newDAGFixture()
	snap := BuildSnapshot(f.wf)

	jobs := NextJobs(snap, f.process, Outcome{
		ExitReason: domain.ExitSuccess,
		State:      map[string]any{"notify": true},
	})
	if len(jobs) != 1 || jobs[0].ID != f.notify {
		t.Fatalf("true expression = %v, want [notify]", jobIDs(jobs))
	}

	jobs = NextJobs(snap, f.process, Outcome{
		ExitReason: domain.ExitSuccess,
		State:      map[string]any{"notify": false},
	})
	if len(jobs) != 0 {
		t.Fatalf("false expression fired: %v", jobIDs(jobs))
	}
}

func TestNextJobsExpressionErrorIsFalse(t *testing.T) {
	f := newDAGFixture()
	f.wf.Edges[3].ConditionExpression = "state.notify ==" // обрыв выражения
	snap := BuildSnapshot(f.wf)

	jobs := NextJobs(snap, f.process, Outcome{ExitReason: domain.ExitSuccess, State: map[string]any{}})
	if len(jobs) != 0 {
		t.Fatalf("broken expression fired: %v", jobIDs(jobs))
	}
}

func TestNextJobsPreservesEdgeDeclarationOrder(t *testing.T) {
	f := newDAGFixture()
	extra := uuid.New()
	f.wf.Jobs = append(f.wf.Jobs, domain.Job{ID: extra, WorkflowID: f.wf.ID, Name: "audit"})
	// Второе always-ребро от validate, объявлено после on_job_success
	f.wf.Edges = append(f.wf.Edges, domain.Edge{
		ID: uuid.New(), WorkflowID: f.wf.ID,
		SourceJobID: &f.validate, TargetJobID: extra, Condition: domain.EdgeAlways,
	})
	snap := BuildSnapshot(f.wf)

	jobs := NextJobs(snap, f.validate, Outcome{ExitReason: domain.ExitSuccess})
	if len(jobs) != 2 || jobs[0].ID != f.process || jobs[1].ID != extra {
		t.Fatalf("order = %v, want [process audit]", jobIDs(jobs))
	}
}

func TestBuildSnapshotIsIsolatedFromWorkflow(t *testing.T) {
	f := newDAGFixture()
	snap := BuildSnapshot(f.wf)

	if snap.LockVersion != f.wf.LockVersion || snap.Name != f.wf.Name {
		t.Fatalf("snapshot header = %q v%d", snap.Name, snap.LockVersion)
	}

	// Правка живого workflow не должна отражаться в snapshot
	f.wf.Jobs[0].Body = "patched = true"
	f.wf.Edges[0].Condition = domain.EdgeOnFailure

	if snap.Jobs[0].Body == "patched = true" {
		t.Fatal("snapshot shares job memory with workflow")
	}
	if snap.Edges[0].Condition != domain.EdgeAlways {
		t.Fatal("snapshot shares edge memory with workflow")
	}
}
