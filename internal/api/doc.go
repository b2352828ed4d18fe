// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go           — Handler с DI (store, orchestrator, queue, logger)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (logging, recovery)
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - webhook_handler.go   — приём webhook-событий (/i/{trigger_id})
//   - workorder_handler.go — чтение work orders, runs, steps, логов; отмена run
//   - worker_handler.go    — протокол воркера (/worker/v1/*)
//
// Протокол воркера — шесть сообщений: claim, start_run, start_step,
// append_log, complete_step, complete_run. Сообщения идемпотентны:
// повтор с теми же аргументами — no-op, противоречащий повтор — 422.
package api
