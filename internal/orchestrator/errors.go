package orchestrator

import (
	"errors"
	"fmt"
	"time"
)

// Ошибки submit.
var (
	// ErrTriggerNotFound — триггер не существует.
	ErrTriggerNotFound = errors.New("trigger not found")

	// ErrTriggerDisabled — триггер выключен.
	ErrTriggerDisabled = errors.New("trigger disabled")

	// ErrWorkflowDisabled — workflow выключен или мягко удалён.
	ErrWorkflowDisabled = errors.New("workflow disabled")

	// ErrRateLimited — событие отвергнуто admission-контролем.
	ErrRateLimited = errors.New("rate limited")
)

// RateLimitedError — отказ admission-контроля с подсказкой о повторе.
type RateLimitedError struct {
	// RetryAfter — через сколько стоит повторить. Всегда > 0.
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Is связывает RateLimitedError с сентинелом ErrRateLimited.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
