package worker

import "errors"

// Ошибки воркера.
var (
	// ErrScriptParse — тело job синтаксически некорректно.
	ErrScriptParse = errors.New("script parse error")

	// ErrServerRejected — сервер ответил на сообщение протокола ошибкой,
	// которую повторять бессмысленно (конфликт состояния, 404).
	ErrServerRejected = errors.New("server rejected message")
)
