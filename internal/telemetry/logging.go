package telemetry

import (
	"log/slog"
	"os"
)

// Логирование настраивается окружением, как и остальная конфигурация
// процессов Conductor:
//
//	LOG_LEVEL  — DEBUG | INFO | WARN | ERROR (default: INFO)
//	LOG_FORMAT — json | text (default: json)

// LogLevel читает уровень логирования из LOG_LEVEL.
func LogLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger собирает логгер процесса и делает его slog.Default.
// На уровне DEBUG к записям добавляется источник (файл:строка).
func SetupLogger() *slog.Logger {
	level := LogLevel()
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// WithRunID помечает логгер идентификатором run: все записи пути
// выполнения несут run_id, по нему собирается история одного запуска.
func WithRunID(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With("run_id", runID)
}

// WithStepID добавляет step_id поверх run_id на время выполнения step.
func WithStepID(logger *slog.Logger, stepID string) *slog.Logger {
	return logger.With("step_id", stepID)
}
