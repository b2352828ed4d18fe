package claims

import "errors"

// Ошибки протокола воркера.
var (
	// ErrNoRuns — нет available runs для claim.
	ErrNoRuns = errors.New("no runs available")

	// ErrRunNotClaimed — операция требует claimed/started run.
	ErrRunNotClaimed = errors.New("run is not claimed")

	// ErrRunFinished — run уже в финальном состоянии.
	ErrRunFinished = errors.New("run already finished")

	// ErrRunActive — run уже начал выполняться (отмена невозможна).
	ErrRunActive = errors.New("run already started")

	// ErrJobNotReady — job не в списке готовых к запуску.
	ErrJobNotReady = errors.New("job is not ready")

	// ErrStepFinished — step уже завершён с другим результатом.
	ErrStepFinished = errors.New("step already finished")

	// ErrBadFinalState — недопустимое финальное состояние в complete_run.
	ErrBadFinalState = errors.New("invalid final run state")
)
