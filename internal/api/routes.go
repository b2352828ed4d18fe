package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Webhook триггеры
	mux.Handle("POST /i/{trigger_id}", chain(http.HandlerFunc(h.Webhook)))

	// Work orders и runs
	mux.Handle("GET /api/v1/work-orders", chain(http.HandlerFunc(h.ListWorkOrders)))
	mux.Handle("GET /api/v1/work-orders/{id}", chain(http.HandlerFunc(h.GetWorkOrder)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("GET /api/v1/runs/{id}/steps", chain(http.HandlerFunc(h.ListRunSteps)))
	mux.Handle("GET /api/v1/runs/{id}/log", chain(http.HandlerFunc(h.GetRunLog)))
	mux.Handle("POST /api/v1/runs/{id}/cancel", chain(http.HandlerFunc(h.CancelRun)))

	// Протокол воркера
	mux.Handle("POST /worker/v1/claim", chain(http.HandlerFunc(h.Claim)))
	mux.Handle("POST /worker/v1/runs/{id}/start", chain(http.HandlerFunc(h.StartRun)))
	mux.Handle("POST /worker/v1/runs/{id}/steps", chain(http.HandlerFunc(h.StartStep)))
	mux.Handle("POST /worker/v1/runs/{id}/log", chain(http.HandlerFunc(h.AppendLog)))
	mux.Handle("POST /worker/v1/runs/{id}/steps/{step_id}/complete", chain(http.HandlerFunc(h.CompleteStep)))
	mux.Handle("POST /worker/v1/runs/{id}/complete", chain(http.HandlerFunc(h.CompleteRun)))
}
