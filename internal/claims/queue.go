package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conductor/internal/credentials"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/engine"
	"github.com/shaiso/Conductor/internal/store"
)

// Queue — серверная сторона протокола воркера.
//
// Принимает claim / start_run / start_step / append_log / complete_step /
// complete_run, ведёт состояние активных runs и продвигает DAG. Сообщения
// по одному run обрабатываются строго последовательно (lock на run);
// повторная доставка сообщения безопасна — дубликаты распознаются и не
// меняют состояние.
type Queue struct {
	store    store.Store
	resolver *credentials.Resolver
	logger   *slog.Logger

	mu     sync.Mutex
	active map[uuid.UUID]*runState
}

// Config — конфигурация Queue.
type Config struct {
	// Store — persistence-слой.
	Store store.Store

	// Resolver — разрешение credentials для steps.
	Resolver *credentials.Resolver

	// Logger — логгер.
	Logger *slog.Logger
}

// New создаёт Queue.
func New(cfg Config) *Queue {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = credentials.NewResolver(cfg.Store, logger)
	}
	return &Queue{
		store:    cfg.Store,
		resolver: resolver,
		logger:   logger,
		active:   make(map[uuid.UUID]*runState),
	}
}

// ClaimedRun — ответ на claim: run вместе со всем, что нужно воркеру.
type ClaimedRun struct {
	Run          *domain.Run      `json:"run"`
	Snapshot     *domain.Snapshot `json:"snapshot"`
	RootDataclip *domain.Dataclip `json:"root_dataclip"`

	// Ready — jobs, готовые к запуску сразу (стартовые рёбра триггера).
	Ready []ReadyJob `json:"ready"`
}

// StartedStep — ответ на start_step.
type StartedStep struct {
	Step *domain.Step `json:"step"`

	// Credential — разрешённый секрет. Nil, если job выполняется без него.
	Credential *domain.Credential `json:"credential,omitempty"`
}

// Claim атомарно выдаёт воркеру старейший available run.
//
// Порядок выдачи — FIFO по времени создания run. ErrNoRuns, если очередь
// пуста. Run с нулём готовых jobs всё равно выдаётся: воркер завершит его
// через complete_run(success), не запустив ни одного step.
func (q *Queue) Claim(ctx context.Context, workerID string) (*ClaimedRun, error) {
	run, err := q.store.ClaimOldestAvailable(ctx, workerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoRuns
		}
		return nil, fmt.Errorf("claim run: %w", err)
	}

	snap, err := q.store.GetSnapshot(ctx, run.SnapshotID)
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	rootClip, err := q.store.GetDataclip(ctx, run.DataclipID)
	if err != nil {
		return nil, fmt.Errorf("get root dataclip: %w", err)
	}

	rs := newRunState(run, snap, rootClip)
	initial := engine.InitialJobs(snap, run.TriggerID, rs.rootBody())
	rs.pushReady(initial, run.DataclipID)

	q.mu.Lock()
	q.active[run.ID] = rs
	q.mu.Unlock()

	if err := q.syncWorkOrder(ctx, run); err != nil {
		return nil, err
	}

	q.logger.Info("run claimed",
		"run_id", run.ID,
		"worker_id", workerID,
		"ready_jobs", len(rs.ready),
	)

	return &ClaimedRun{
		Run:          run,
		Snapshot:     snap,
		RootDataclip: rootClip,
		Ready:        append([]ReadyJob(nil), rs.ready...),
	}, nil
}

// StartRun переводит claimed run в started. Повтор — no-op.
func (q *Queue) StartRun(ctx context.Context, runID uuid.UUID) error {
	rs, err := q.state(ctx, runID)
	if err != nil {
		return err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	run, err := q.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	switch run.State {
	case domain.RunStateStarted:
		return nil
	case domain.RunStateClaimed:
	default:
		if run.State.IsTerminal() {
			return ErrRunFinished
		}
		return ErrRunNotClaimed
	}

	run.MarkStarted()
	if err := q.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return q.syncWorkOrder(ctx, run)
}

// StartStep создаёт step для готового job и разрешает его credential.
//
// Job должен числиться в очереди готовых; разрешённый credential сразу
// регистрируется в scrubber'е run — его секреты вычищаются из всех
// последующих строк лога.
func (q *Queue) StartStep(ctx context.Context, runID, jobID uuid.UUID) (*StartedStep, error) {
	rs, err := q.state(ctx, runID)
	if err != nil {
		return nil, err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.fatal {
		return nil, ErrRunFinished
	}

	inputClipID, ok := rs.takeReady(jobID)
	if !ok {
		return nil, ErrJobNotReady
	}
	job := rs.snapshot.JobByID(jobID)
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, store.ErrNotFound)
	}

	cred, err := q.resolver.Resolve(ctx, job, rs.rootBody())
	if err != nil {
		return nil, fmt.Errorf("resolve credential: %w", err)
	}

	step := &domain.Step{
		ID:              uuid.New(),
		RunID:           runID,
		JobID:           jobID,
		InputDataclipID: inputClipID,
		StartedAt:       time.Now(),
	}
	if cred != nil {
		step.CredentialID = &cred.ID
		rs.scrubber.Add(cred.SecretValues())
	}
	if err := q.store.CreateStep(ctx, step); err != nil {
		return nil, fmt.Errorf("create step: %w", err)
	}
	rs.steps[step.ID] = &stepInfo{jobID: jobID, inputClipID: inputClipID}

	q.logger.Info("step started",
		"run_id", runID,
		"step_id", step.ID,
		"job_id", jobID,
		"has_credential", cred != nil,
	)
	return &StartedStep{Step: step, Credential: cred}, nil
}

// AppendLog сохраняет строки лога run, предварительно вычистив секреты.
// Уже сохранённые строки повторно не вычищаются: пополнение scrubber'а
// действует только на последующие записи.
func (q *Queue) AppendLog(ctx context.Context, runID uuid.UUID, stepID *uuid.UUID, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	rs, err := q.state(ctx, runID)
	if err != nil {
		return err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	now := time.Now()
	out := make([]domain.LogLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, domain.LogLine{
			ID:        uuid.New(),
			RunID:     runID,
			StepID:    stepID,
			Message:   rs.scrubber.Scrub(line),
			Timestamp: now,
		})
	}
	if err := q.store.AppendLogLines(ctx, out); err != nil {
		return fmt.Errorf("append log lines: %w", err)
	}
	return nil
}

// CompleteStep фиксирует результат step и продвигает DAG.
//
// Возвращает jobs, ставшие готовыми из-за этого завершения. Выходной
// dataclip создаётся для success/fail всегда (пустое тело, если воркер
// не прислал выход) и только для них: output_dataclip_id задан тогда и
// только тогда, когда исход производит dataclip. Фатальный exit_reason
// немедленно финализирует run — оставшиеся готовые jobs не запускаются.
// Повтор с тем же результатом — no-op.
func (q *Queue) CompleteStep(ctx context.Context, runID, stepID uuid.UUID, reason domain.ExitReason, output map[string]any) ([]ReadyJob, error) {
	rs, err := q.state(ctx, runID)
	if err != nil {
		return nil, err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	si, ok := rs.steps[stepID]
	if !ok {
		return nil, fmt.Errorf("step %s: %w", stepID, store.ErrNotFound)
	}
	if si.finished {
		if si.exitReason == reason {
			return nil, nil
		}
		return nil, ErrStepFinished
	}

	step, err := q.store.GetStep(ctx, stepID)
	if err != nil {
		return nil, fmt.Errorf("get step: %w", err)
	}

	var outputClipID *uuid.UUID
	if reason.ProducesDataclip() {
		body := output
		if body == nil {
			body = map[string]any{}
		}
		clip := &domain.Dataclip{
			ID:         uuid.New(),
			ProjectID:  rs.rootClip.ProjectID,
			Type:       domain.DataclipStepResult,
			Body:       body,
			InsertedAt: time.Now(),
		}
		if err := q.store.CreateDataclip(ctx, clip); err != nil {
			return nil, fmt.Errorf("create output dataclip: %w", err)
		}
		outputClipID = &clip.ID
		output = body
	}

	step.MarkFinished(reason, outputClipID)
	if err := q.store.UpdateStep(ctx, step); err != nil {
		return nil, fmt.Errorf("update step: %w", err)
	}
	si.finished = true
	si.exitReason = reason

	q.logger.Info("step completed",
		"run_id", runID,
		"step_id", stepID,
		"exit_reason", reason,
	)

	if reason.IsRunFatal() {
		rs.fatal = true
		if err := q.finalizeRun(ctx, runID, domain.RunStateForExit(reason), string(reason)); err != nil {
			return nil, err
		}
		return nil, nil
	}

	// Состояние для рёбер js_expression: выход step; для исходов без
	// dataclip (cancel) — вход, он же уходит downstream.
	downstreamClip := si.inputClipID
	state := output
	if outputClipID != nil {
		downstreamClip = *outputClipID
	} else if state == nil {
		inputClip, err := q.store.GetDataclip(ctx, si.inputClipID)
		if err != nil {
			return nil, fmt.Errorf("get input dataclip: %w", err)
		}
		state = inputClip.Body
	}

	next := engine.NextJobs(rs.snapshot, si.jobID, engine.Outcome{ExitReason: reason, State: state})
	return rs.pushReady(next, downstreamClip), nil
}

// CompleteRun фиксирует финальное состояние run, о котором сообщил воркер.
// Повтор с тем же состоянием — no-op.
func (q *Queue) CompleteRun(ctx context.Context, runID uuid.UUID, finalState domain.RunState, errMsg string) error {
	if !finalState.IsFinalReport() {
		return fmt.Errorf("%w: %s", ErrBadFinalState, finalState)
	}
	rs, err := q.state(ctx, runID)
	if err != nil {
		return err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	run, err := q.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run.State.IsTerminal() {
		if run.State == finalState {
			return nil
		}
		return ErrRunFinished
	}
	if run.State != domain.RunStateClaimed && run.State != domain.RunStateStarted {
		return ErrRunNotClaimed
	}
	return q.finalizeRun(ctx, runID, finalState, errMsg)
}

// CancelRun отменяет run, не начавший выполняться.
func (q *Queue) CancelRun(ctx context.Context, runID uuid.UUID) error {
	run, err := q.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	switch {
	case run.State == domain.RunStateCancelled:
		return nil
	case run.State.IsTerminal():
		return ErrRunFinished
	case run.State == domain.RunStateStarted:
		return ErrRunActive
	}

	run.MarkCancelled()
	if err := q.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	q.dropState(runID)
	q.logger.Info("run cancelled", "run_id", runID)
	return q.syncWorkOrder(ctx, run)
}

// MarkLost финализирует run, чей воркер перестал отвечать.
// Незавершённые steps получают exit_reason lost.
func (q *Queue) MarkLost(ctx context.Context, runID uuid.UUID) error {
	run, err := q.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run.State.IsTerminal() {
		return nil
	}

	steps, err := q.store.ListStepsByRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("list steps: %w", err)
	}
	for i := range steps {
		step := &steps[i]
		if step.IsFinished() {
			continue
		}
		step.MarkFinished(domain.ExitLost, nil)
		if err := q.store.UpdateStep(ctx, step); err != nil {
			return fmt.Errorf("update step: %w", err)
		}
	}

	q.logger.Warn("run lost", "run_id", runID, "worker_id", run.WorkerID)
	return q.finalizeRun(ctx, runID, domain.RunStateLost, "worker stopped responding")
}

// finalizeRun переводит run в финальное состояние и выбрасывает его
// состояние из памяти.
func (q *Queue) finalizeRun(ctx context.Context, runID uuid.UUID, state domain.RunState, errMsg string) error {
	run, err := q.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run.State.IsTerminal() {
		return nil
	}
	if state == domain.RunStateSuccess {
		errMsg = ""
	}
	run.MarkFinished(state, errMsg)
	if err := q.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	q.dropState(runID)

	q.logger.Info("run finished",
		"run_id", runID,
		"state", state,
		"duration", run.Duration(),
	)
	return q.syncWorkOrder(ctx, run)
}

// syncWorkOrder пересчитывает производное состояние work order.
func (q *Queue) syncWorkOrder(ctx context.Context, run *domain.Run) error {
	state := domain.DeriveWorkOrderState(run.State)
	if err := q.store.UpdateWorkOrderState(ctx, run.WorkOrderID, state); err != nil {
		return fmt.Errorf("update work order state: %w", err)
	}
	return nil
}

// state возвращает состояние активного run, восстанавливая его из
// хранилища после рестарта процесса.
func (q *Queue) state(ctx context.Context, runID uuid.UUID) (*runState, error) {
	q.mu.Lock()
	rs, ok := q.active[runID]
	q.mu.Unlock()
	if ok {
		return rs, nil
	}

	run, err := q.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if run.State.IsTerminal() {
		return nil, ErrRunFinished
	}
	if run.State == domain.RunStateAvailable {
		return nil, ErrRunNotClaimed
	}

	restored, err := restoreRunState(ctx, q.store, run)
	if err != nil {
		return nil, fmt.Errorf("restore run state: %w", err)
	}

	q.mu.Lock()
	if existing, ok := q.active[runID]; ok {
		restored = existing
	} else {
		q.active[runID] = restored
	}
	q.mu.Unlock()

	q.logger.Debug("run state restored", "run_id", runID)
	return restored, nil
}

// dropState выбрасывает состояние run из памяти.
func (q *Queue) dropState(runID uuid.UUID) {
	q.mu.Lock()
	delete(q.active, runID)
	q.mu.Unlock()
}
