// Package scheduler срабатывает cron-триггеры и внешние события.
//
// Cron: периодический тик находит триггеры с next_due_at <= now,
// отправляет каждое срабатывание через Orchestrator.Submit и переводит
// next_due_at на следующее время по cron-выражению (robfig/cron,
// пять полей, с учётом timezone триггера).
//
// События: consumer очереди events.ingest превращает сообщения
// event.received (kafka-триггеры) в такие же submit. Отказ
// admission-контроля возвращает событие в очередь.
package scheduler
