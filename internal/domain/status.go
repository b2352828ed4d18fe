package domain

// RunState — состояние выполнения run.
//
// Жизненный цикл:
//
//	AVAILABLE → CLAIMED → STARTED → {SUCCESS | FAILED | CRASHED | KILLED | EXCEPTION | LOST}
//	AVAILABLE / CLAIMED → CANCELLED (до start_run)
type RunState string

const (
	// RunStateAvailable — run создан и ожидает claim от воркера.
	RunStateAvailable RunState = "available"

	// RunStateClaimed — run захвачен воркером, выполнение ещё не началось.
	RunStateClaimed RunState = "claimed"

	// RunStateStarted — воркер начал выполнение run.
	RunStateStarted RunState = "started"

	// RunStateSuccess — run успешно завершён.
	RunStateSuccess RunState = "success"

	// RunStateFailed — run завершён с ошибкой, о которой сообщил воркер.
	RunStateFailed RunState = "failed"

	// RunStateCrashed — процесс воркера аварийно завершился.
	RunStateCrashed RunState = "crashed"

	// RunStateKilled — выполнение принудительно остановлено (kill:*).
	RunStateKilled RunState = "killed"

	// RunStateException — непредвиденная ошибка внутри воркера.
	RunStateException RunState = "exception"

	// RunStateCancelled — run отменён до начала выполнения.
	RunStateCancelled RunState = "cancelled"

	// RunStateLost — claim брошен воркером; состояние выставляет watchdog.
	RunStateLost RunState = "lost"
)

// IsTerminal возвращает true, если состояние финальное.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateSuccess, RunStateFailed, RunStateCrashed,
		RunStateKilled, RunStateException, RunStateCancelled, RunStateLost:
		return true
	default:
		return false
	}
}

// IsFinalReport проверяет, допустимо ли состояние как final_state в complete_run.
func (s RunState) IsFinalReport() bool {
	switch s {
	case RunStateSuccess, RunStateFailed, RunStateCrashed,
		RunStateKilled, RunStateException, RunStateCancelled:
		return true
	default:
		return false
	}
}

// WorkOrderState — состояние work order.
//
// Состояние никогда не выставляется напрямую — оно производно от состояния
// принадлежащего work order'у run (см. DeriveWorkOrderState).
type WorkOrderState string

const (
	WorkOrderStatePending   WorkOrderState = "pending"
	WorkOrderStateRunning   WorkOrderState = "running"
	WorkOrderStateSuccess   WorkOrderState = "success"
	WorkOrderStateFailed    WorkOrderState = "failed"
	WorkOrderStateCrashed   WorkOrderState = "crashed"
	WorkOrderStateKilled    WorkOrderState = "killed"
	WorkOrderStateException WorkOrderState = "exception"
	WorkOrderStateCancelled WorkOrderState = "cancelled"
	WorkOrderStateLost      WorkOrderState = "lost"
)

// DeriveWorkOrderState вычисляет состояние work order из состояния его run.
func DeriveWorkOrderState(run RunState) WorkOrderState {
	switch run {
	case RunStateAvailable:
		return WorkOrderStatePending
	case RunStateSuccess:
		return WorkOrderStateSuccess
	case RunStateFailed:
		return WorkOrderStateFailed
	case RunStateCrashed:
		return WorkOrderStateCrashed
	case RunStateKilled:
		return WorkOrderStateKilled
	case RunStateException:
		return WorkOrderStateException
	case RunStateCancelled:
		return WorkOrderStateCancelled
	case RunStateLost:
		return WorkOrderStateLost
	default:
		return WorkOrderStateRunning
	}
}

// ExitReason — код результата завершённого step.
//
// Таксономия фиксирована и видна операторам/UI как есть.
type ExitReason string

const (
	// ExitSuccess — step завершился успешно.
	ExitSuccess ExitReason = "success"

	// ExitFail — job сообщил об ошибке; run может продолжаться по
	// рёбрам on_job_failure.
	ExitFail ExitReason = "fail"

	// ExitCrash — процесс job'а аварийно завершился.
	ExitCrash ExitReason = "crash"

	// ExitCancel — step отменён вместе с run.
	ExitCancel ExitReason = "cancel"

	// ExitKillSecurity — выполнение остановлено из-за нарушения sandbox.
	ExitKillSecurity ExitReason = "kill:SecurityError"

	// ExitKillImport — выполнение остановлено при загрузке адаптера.
	ExitKillImport ExitReason = "kill:ImportError"

	// ExitKillTimeout — выполнение остановлено по таймауту.
	ExitKillTimeout ExitReason = "kill:TimeoutError"

	// ExitKillOOM — выполнение остановлено из-за нехватки памяти.
	ExitKillOOM ExitReason = "kill:OOMError"

	// ExitException — непредвиденная ошибка среды выполнения.
	ExitException ExitReason = "exception"

	// ExitLost — результат step неизвестен (claim брошен).
	ExitLost ExitReason = "lost"
)

// IsSuccess возвращает true только для успешного результата.
func (e ExitReason) IsSuccess() bool {
	return e == ExitSuccess
}

// ProducesDataclip возвращает true, если результат сопровождается
// выходным dataclip'ом. Воркер отправляет финальное состояние и при
// success, и при fail; остальные исходы выходных данных не имеют.
func (e ExitReason) ProducesDataclip() bool {
	return e == ExitSuccess || e == ExitFail
}

// IsRunFatal возвращает true, если результат step фатален для всего run.
func (e ExitReason) IsRunFatal() bool {
	switch e {
	case ExitCrash, ExitKillSecurity, ExitKillImport,
		ExitKillTimeout, ExitKillOOM, ExitException, ExitLost:
		return true
	default:
		return false
	}
}

// RunStateForExit возвращает финальное состояние run для результата step.
func RunStateForExit(e ExitReason) RunState {
	switch e {
	case ExitCrash:
		return RunStateCrashed
	case ExitKillSecurity, ExitKillImport, ExitKillTimeout, ExitKillOOM:
		return RunStateKilled
	case ExitException:
		return RunStateException
	case ExitLost:
		return RunStateLost
	case ExitCancel:
		return RunStateCancelled
	case ExitFail:
		return RunStateFailed
	default:
		return RunStateSuccess
	}
}
