package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conductor/internal/claims"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/orchestrator"
	"github.com/shaiso/Conductor/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	logger := testLogger()

	h := NewHandler(Config{
		Store:        mem,
		Orchestrator: orchestrator.New(orchestrator.Config{Store: mem, Logger: logger}),
		Queue:        claims.New(claims.Config{Store: mem, Logger: logger}),
		Logger:       logger,
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mem
}

func seedWebhookWorkflow(mem *store.Memory) (*domain.Workflow, domain.Trigger, domain.Job) {
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
		Body:       "x = state.x * 2",
	}
	wf := &domain.Workflow{
		ID:          wfID,
		ProjectID:   uuid.New(),
		Name:        "api-flow",
		LockVersion: 1,
		Enabled:     true,
		Triggers:    []domain.Trigger{trigger},
		Jobs:        []domain.Job{job},
		Edges: []domain.Edge{
			{ID: uuid.New(), WorkflowID: wfID, SourceTriggerID: &trigger.ID, TargetJobID: job.ID, Condition: domain.EdgeAlways},
		},
		CreatedAt: time.Now(),
	}
	mem.PutWorkflow(wf)
	return wf, trigger, job
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var wrapper struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return wrapper.Data
}

func TestWebhookCreatesWorkOrder(t *testing.T) {
	srv, mem := newTestServer(t)
	_, trigger, _ := seedWebhookWorkflow(mem)

	resp := postJSON(t, fmt.Sprintf("%s/i/%s", srv.URL, trigger.ID), map[string]any{"x": 21})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	created := decodeData[WebhookResponse](t, resp)
	if created.WorkOrderID == uuid.Nil || created.RunID == uuid.Nil {
		t.Fatalf("response = %+v, want ids", created)
	}

	getResp, err := http.Get(fmt.Sprintf("%s/api/v1/work-orders/%s", srv.URL, created.WorkOrderID))
	if err != nil {
		t.Fatalf("GET work order: %v", err)
	}
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", getResp.StatusCode)
	}
	detail := decodeData[workOrderDetail](t, getResp)
	if detail.State != domain.WorkOrderStatePending {
		t.Fatalf("work order state = %s, want pending", detail.State)
	}
	if detail.Run == nil || detail.Run.ID != created.RunID {
		t.Fatalf("detail run = %+v, want %s", detail.Run, created.RunID)
	}
}

func TestWebhookUnknownTrigger(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, fmt.Sprintf("%s/i/%s", srv.URL, uuid.New()), map[string]any{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestClaimEmptyQueueReturnsNoContent(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/worker/v1/claim", ClaimRequest{WorkerID: "w-1"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
}

// Полный цикл по HTTP: webhook → claim → start_run → start_step →
// append_log → complete_step → complete_run.
func TestWorkerProtocolRoundTrip(t *testing.T) {
	srv, mem := newTestServer(t)
	_, trigger, job := seedWebhookWorkflow(mem)

	submit := postJSON(t, fmt.Sprintf("%s/i/%s", srv.URL, trigger.ID), map[string]any{"x": 21})
	created := decodeData[WebhookResponse](t, submit)

	claimResp := postJSON(t, srv.URL+"/worker/v1/claim", ClaimRequest{WorkerID: "w-1"})
	if claimResp.StatusCode != http.StatusOK {
		t.Fatalf("claim status = %d, want 200", claimResp.StatusCode)
	}
	claimed := decodeData[ClaimResponse](t, claimResp)
	if claimed.Run.ID != created.RunID {
		t.Fatalf("claimed run = %s, want %s", claimed.Run.ID, created.RunID)
	}
	if len(claimed.Ready) != 1 || claimed.Ready[0].JobID != job.ID {
		t.Fatalf("ready = %+v, want single job %s", claimed.Ready, job.ID)
	}

	runBase := fmt.Sprintf("%s/worker/v1/runs/%s", srv.URL, created.RunID)

	startResp := postJSON(t, runBase+"/start", struct{}{})
	startResp.Body.Close()
	if startResp.StatusCode != http.StatusNoContent {
		t.Fatalf("start_run status = %d, want 204", startResp.StatusCode)
	}

	stepResp := postJSON(t, runBase+"/steps", StartStepRequest{JobID: job.ID})
	if stepResp.StatusCode != http.StatusCreated {
		t.Fatalf("start_step status = %d, want 201", stepResp.StatusCode)
	}
	started := decodeData[StartStepResponse](t, stepResp)
	if started.Step.JobID != job.ID {
		t.Fatalf("step job = %s, want %s", started.Step.JobID, job.ID)
	}

	logResp := postJSON(t, runBase+"/log", AppendLogRequest{
		StepID: &started.Step.ID,
		Lines:  []string{"running ingest"},
	})
	logResp.Body.Close()
	if logResp.StatusCode != http.StatusNoContent {
		t.Fatalf("append_log status = %d, want 204", logResp.StatusCode)
	}

	completeResp := postJSON(t, fmt.Sprintf("%s/steps/%s/complete", runBase, started.Step.ID), CompleteStepRequest{
		ExitReason: domain.ExitSuccess,
		Output:     map[string]any{"x": 42},
	})
	if completeResp.StatusCode != http.StatusOK {
		t.Fatalf("complete_step status = %d, want 200", completeResp.StatusCode)
	}
	next := decodeData[CompleteStepResponse](t, completeResp)
	if len(next.Ready) != 0 {
		t.Fatalf("ready after last step = %+v, want none", next.Ready)
	}

	finishResp := postJSON(t, runBase+"/complete", CompleteRunRequest{FinalState: domain.RunStateSuccess})
	finishResp.Body.Close()
	if finishResp.StatusCode != http.StatusNoContent {
		t.Fatalf("complete_run status = %d, want 204", finishResp.StatusCode)
	}

	runResp, err := http.Get(fmt.Sprintf("%s/api/v1/runs/%s", srv.URL, created.RunID))
	if err != nil {
		t.Fatalf("GET run: %v", err)
	}
	run := decodeData[RunResponse](t, runResp)
	if run.State != domain.RunStateSuccess {
		t.Fatalf("run state = %s, want success", run.State)
	}

	logsResp, err := http.Get(fmt.Sprintf("%s/api/v1/runs/%s/log", srv.URL, created.RunID))
	if err != nil {
		t.Fatalf("GET log: %v", err)
	}
	defer logsResp.Body.Close()
	var logs struct {
		Data []LogLineResponse `json:"data"`
	}
	if err := json.NewDecoder(logsResp.Body).Decode(&logs); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if len(logs.Data) != 1 || logs.Data[0].Message != "running ingest" {
		t.Fatalf("log lines = %+v", logs.Data)
	}
}

func TestCancelStartedRunRejected(t *testing.T) {
	srv, mem := newTestServer(t)
	_, trigger, _ := seedWebhookWorkflow(mem)

	submit := postJSON(t, fmt.Sprintf("%s/i/%s", srv.URL, trigger.ID), map[string]any{})
	created := decodeData[WebhookResponse](t, submit)

	claimResp := postJSON(t, srv.URL+"/worker/v1/claim", ClaimRequest{WorkerID: "w-1"})
	claimResp.Body.Close()
	startResp := postJSON(t, fmt.Sprintf("%s/worker/v1/runs/%s/start", srv.URL, created.RunID), struct{}{})
	startResp.Body.Close()

	cancelResp := postJSON(t, fmt.Sprintf("%s/api/v1/runs/%s/cancel", srv.URL, created.RunID), struct{}{})
	defer cancelResp.Body.Close()
	if cancelResp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("cancel status = %d, want 422", cancelResp.StatusCode)
	}
}

func TestListWorkOrdersFiltersByWorkflow(t *testing.T) {
	srv, mem := newTestServer(t)
	wf, trigger, _ := seedWebhookWorkflow(mem)
	_, otherTrigger, _ := seedWebhookWorkflow(mem)

	postJSON(t, fmt.Sprintf("%s/i/%s", srv.URL, trigger.ID), map[string]any{}).Body.Close()
	postJSON(t, fmt.Sprintf("%s/i/%s", srv.URL, otherTrigger.ID), map[string]any{}).Body.Close()

	resp, err := http.Get(fmt.Sprintf("%s/api/v1/work-orders?workflow_id=%s", srv.URL, wf.ID))
	if err != nil {
		t.Fatalf("GET work orders: %v", err)
	}
	defer resp.Body.Close()
	var list struct {
		Data []WorkOrderResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].WorkflowID != wf.ID {
		t.Fatalf("filtered list = %+v, want single order for %s", list.Data, wf.ID)
	}
}
