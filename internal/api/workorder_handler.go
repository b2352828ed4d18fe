package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/Conductor/internal/claims"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/store"
)

// ListWorkOrders возвращает список work orders.
// GET /api/v1/work-orders?workflow_id=&state=&limit=&offset=
func (h *Handler) ListWorkOrders(w http.ResponseWriter, r *http.Request) {
	filter := store.WorkOrderFilter{}

	if raw := r.URL.Query().Get("workflow_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			BadRequest(w, "invalid workflow_id")
			return
		}
		filter.WorkflowID = &id
	}
	if raw := r.URL.Query().Get("state"); raw != "" {
		filter.State = domain.WorkOrderState(raw)
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			BadRequest(w, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			BadRequest(w, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	orders, err := h.store.ListWorkOrders(r.Context(), filter)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	items := make([]WorkOrderResponse, 0, len(orders))
	for _, wo := range orders {
		items = append(items, WorkOrderFromDomain(wo))
	}
	List(w, items, len(items))
}

// workOrderDetail — work order вместе с его run.
type workOrderDetail struct {
	WorkOrderResponse
	Run *RunResponse `json:"run,omitempty"`
}

// GetWorkOrder возвращает work order и его run.
// GET /api/v1/work-orders/{id}
func (h *Handler) GetWorkOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid work order id")
		return
	}

	wo, err := h.store.GetWorkOrder(r.Context(), id)
	if err != nil {
		HandleStoreError(w, h.logger, err, "work order not found")
		return
	}

	detail := workOrderDetail{WorkOrderResponse: WorkOrderFromDomain(*wo)}
	run, err := h.store.GetRunByWorkOrder(r.Context(), id)
	if err == nil {
		resp := RunFromDomain(*run)
		detail.Run = &resp
	} else if !errors.Is(err, store.ErrNotFound) {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, detail)
}

// GetRun возвращает run.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		HandleStoreError(w, h.logger, err, "run not found")
		return
	}
	Success(w, RunFromDomain(*run))
}

// ListRunSteps возвращает steps для run в порядке запуска.
// GET /api/v1/runs/{id}/steps
func (h *Handler) ListRunSteps(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if _, err := h.store.GetRun(r.Context(), id); err != nil {
		HandleStoreError(w, h.logger, err, "run not found")
		return
	}

	steps, err := h.store.ListStepsByRun(r.Context(), id)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	items := make([]StepResponse, 0, len(steps))
	for _, step := range steps {
		items = append(items, StepFromDomain(step))
	}
	List(w, items, len(items))
}

// GetRunLog возвращает все строки лога run.
// GET /api/v1/runs/{id}/log
func (h *Handler) GetRunLog(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if _, err := h.store.GetRun(r.Context(), id); err != nil {
		HandleStoreError(w, h.logger, err, "run not found")
		return
	}

	lines, err := h.store.ListLogLines(r.Context(), id)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	items := make([]LogLineResponse, 0, len(lines))
	for _, line := range lines {
		items = append(items, LogLineResponse{
			StepID:    line.StepID,
			Message:   line.Message,
			Timestamp: line.Timestamp,
		})
	}
	List(w, items, len(items))
}

// CancelRun отменяет run, который ещё не начал исполняться.
// POST /api/v1/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if err := h.queue.CancelRun(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, claims.ErrRunActive):
			InvalidState(w, "run already started")
		case errors.Is(err, claims.ErrRunFinished):
			Conflict(w, "run already finished")
		default:
			HandleStoreError(w, h.logger, err, "run not found")
		}
		return
	}
	NoContent(w)
}
