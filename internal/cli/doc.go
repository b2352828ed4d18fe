// Package cli реализует команды консольного клиента Conductor.
//
// Структура пакета:
//   - client.go: HTTP-клиент для API сервера
//   - output.go: форматирование вывода (таблица или JSON)
//   - workorder.go: команды работы с work orders
//   - run.go: команды работы с runs (show, steps, log, cancel)
//   - submit.go: отправка события в webhook-триггер
//
// Команды не импортируют внутренние пакеты сервера: клиент общается
// с ним только через публичный HTTP API.
package cli
