// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - run.available    — новый run ожидает claim
//   - event.received   — внешнее событие для триггера
//   - limiter.gossip   — снимок записей admission-лимитера
//
// Exchanges:
//   - conductor.runs    — события runs
//   - conductor.events  — внешние события триггеров
//   - conductor.gossip  — fanout для репликации лимитера
package mq
