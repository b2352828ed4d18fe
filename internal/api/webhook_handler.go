package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/Conductor/internal/orchestrator"
)

// maxWebhookBody — ограничение размера payload webhook запроса.
const maxWebhookBody = 10 << 20

// Webhook принимает событие webhook-триггера.
// POST /i/{trigger_id}
//
// Ответы:
//   - 200 — событие допущено, создан work order
//   - 404 — триггер не существует
//   - 422 — триггер или workflow выключены
//   - 429 — отказ admission-контроля (с Retry-After)
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	triggerID, err := uuid.Parse(r.PathValue("trigger_id"))
	if err != nil {
		BadRequest(w, "invalid trigger id")
		return
	}

	var body map[string]any
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		BadRequest(w, "read body")
		return
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			BadRequest(w, "body must be a JSON object")
			return
		}
	}

	result, err := h.orchestrator.Submit(r.Context(), triggerID, body)
	if err != nil {
		var rl *orchestrator.RateLimitedError
		switch {
		case errors.As(err, &rl):
			RateLimited(w, rl.RetryAfter)
		case errors.Is(err, orchestrator.ErrTriggerNotFound):
			NotFound(w, "trigger not found")
		case errors.Is(err, orchestrator.ErrTriggerDisabled),
			errors.Is(err, orchestrator.ErrWorkflowDisabled):
			InvalidState(w, err.Error())
		default:
			InternalError(w, h.logger, err)
		}
		return
	}

	Success(w, WebhookResponse{
		WorkOrderID: result.WorkOrder.ID,
		RunID:       result.Run.ID,
	})
}
