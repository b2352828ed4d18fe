package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/Conductor/internal/claims"
)

// Claim выдаёт воркеру старейший available run.
// POST /worker/v1/claim
//
// 204 — очередь пуста.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.WorkerID == "" {
		BadRequest(w, "worker_id is required")
		return
	}

	claimed, err := h.queue.Claim(r.Context(), req.WorkerID)
	if err != nil {
		if errors.Is(err, claims.ErrNoRuns) {
			NoContent(w)
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	Success(w, ClaimResponse{
		Run:          RunFromDomain(*claimed.Run),
		Snapshot:     claimed.Snapshot,
		RootDataclip: claimed.RootDataclip,
		Ready:        claimed.Ready,
	})
}

// StartRun — сообщение start_run.
// POST /worker/v1/runs/{id}/start
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if err := h.queue.StartRun(r.Context(), runID); err != nil {
		h.workerProtocolError(w, err)
		return
	}
	NoContent(w)
}

// StartStep — сообщение start_step.
// POST /worker/v1/runs/{id}/steps
func (h *Handler) StartStep(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}
	var req StartStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	started, err := h.queue.StartStep(r.Context(), runID, req.JobID)
	if err != nil {
		h.workerProtocolError(w, err)
		return
	}

	Created(w, StartStepResponse{
		Step:       StepFromDomain(*started.Step),
		Credential: started.Credential,
	})
}

// AppendLog — сообщение append_log.
// POST /worker/v1/runs/{id}/log
func (h *Handler) AppendLog(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}
	var req AppendLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := h.queue.AppendLog(r.Context(), runID, req.StepID, req.Lines); err != nil {
		h.workerProtocolError(w, err)
		return
	}
	NoContent(w)
}

// CompleteStep — сообщение complete_step.
// POST /worker/v1/runs/{id}/steps/{step_id}/complete
func (h *Handler) CompleteStep(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}
	stepID, err := uuid.Parse(r.PathValue("step_id"))
	if err != nil {
		BadRequest(w, "invalid step id")
		return
	}
	var req CompleteStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	ready, err := h.queue.CompleteStep(r.Context(), runID, stepID, req.ExitReason, req.Output)
	if err != nil {
		h.workerProtocolError(w, err)
		return
	}
	Success(w, CompleteStepResponse{Ready: ready})
}

// CompleteRun — сообщение complete_run.
// POST /worker/v1/runs/{id}/complete
func (h *Handler) CompleteRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}
	var req CompleteRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := h.queue.CompleteRun(r.Context(), runID, req.FinalState, req.ErrorMessage); err != nil {
		h.workerProtocolError(w, err)
		return
	}
	NoContent(w)
}

// workerProtocolError отображает ошибки протокола воркера на HTTP статусы.
func (h *Handler) workerProtocolError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, claims.ErrRunFinished),
		errors.Is(err, claims.ErrRunNotClaimed),
		errors.Is(err, claims.ErrJobNotReady),
		errors.Is(err, claims.ErrStepFinished),
		errors.Is(err, claims.ErrBadFinalState):
		InvalidState(w, err.Error())
	default:
		if HandleStoreError(w, h.logger, err, "not found") {
			return
		}
	}
}
