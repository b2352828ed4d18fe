// Package worker реализует воркер — сторону протокола, которая захватывает
// runs и выполняет их jobs.
//
// Воркер общается с сервером шестью сообщениями (интерфейс Protocol):
//
//	claim          — захватить старейший available run
//	start_run      — начать выполнение
//	start_step     — начать job, получить credential
//	append_log     — строки лога (redaction делает сервер)
//	complete_step  — результат job + новые ready jobs в ответе
//	complete_run   — финальное состояние run
//
// Protocol реализован двумя способами: claims.Queue для in-process
// dev-режима и Client для выделенного процесса воркера (HTTP /worker/v1).
//
// О новых runs воркер узнаёт из очереди runs.available (RabbitMQ) и по
// периодическому polling — очередь служит подсказкой для снижения
// латентности, корректность обеспечивает атомарность claim.
//
// Executor выполняет тела jobs: построчный язык присваиваний с
// выражениями engine.Eval, log(...) и fail(...). Таймаут run переводит
// текущий step в kill:TimeoutError, что фатально для всего run.
package worker
