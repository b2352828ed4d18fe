package claims

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/engine"
	"github.com/shaiso/Conductor/internal/redact"
	"github.com/shaiso/Conductor/internal/store"
)

// ReadyJob — job, готовый к start_step, вместе с его входным dataclip.
type ReadyJob struct {
	JobID           uuid.UUID `json:"job_id"`
	InputDataclipID uuid.UUID `json:"input_dataclip_id"`
}

// stepInfo — учёт запущенного step внутри run.
type stepInfo struct {
	jobID       uuid.UUID
	inputClipID uuid.UUID
	finished    bool
	exitReason  domain.ExitReason
}

// runState — состояние одного активного run в памяти Queue.
//
// Держит snapshot, очередь готовых jobs, учёт запущенных steps и
// scrubber секретов. Линеаризация сообщений протокола по одному run —
// через mu; разные runs не блокируют друг друга.
type runState struct {
	mu sync.Mutex

	runID    uuid.UUID
	snapshot *domain.Snapshot
	rootClip *domain.Dataclip

	// ready — FIFO готовых jobs. Пополняется InitialJobs при claim и
	// NextJobs при complete_step.
	ready []ReadyJob

	// scheduled — jobs, уже попавшие в ready или запущенные. Пара
	// (run, job) планируется не больше одного раза: второе подходящее
	// ребро в тот же job (diamond) не добавляет дубликат.
	scheduled map[uuid.UUID]bool

	// steps — запущенные steps этого run.
	steps map[uuid.UUID]*stepInfo

	// scrubber вычищает секреты всех credentials, разрешённых в рамках run.
	scrubber *redact.Scrubber

	// fatal — run финализирован фатальным исходом step, новые steps не
	// принимаются.
	fatal bool
}

func newRunState(run *domain.Run, snap *domain.Snapshot, rootClip *domain.Dataclip) *runState {
	return &runState{
		runID:     run.ID,
		snapshot:  snap,
		rootClip:  rootClip,
		scheduled: make(map[uuid.UUID]bool),
		steps:     make(map[uuid.UUID]*stepInfo),
		scrubber:  redact.NewScrubber(nil),
	}
}

// rootBody возвращает тело корневого dataclip (nil после wipe).
func (rs *runState) rootBody() map[string]any {
	if rs.rootClip == nil {
		return nil
	}
	return rs.rootClip.Body
}

// pushReady добавляет jobs в хвост очереди готовых, пропуская уже
// запланированные: job, который ready или запущен, повторно не ставится.
func (rs *runState) pushReady(jobs []*domain.Job, inputClipID uuid.UUID) []ReadyJob {
	added := make([]ReadyJob, 0, len(jobs))
	for _, job := range jobs {
		if rs.scheduled[job.ID] {
			continue
		}
		rs.scheduled[job.ID] = true
		rj := ReadyJob{JobID: job.ID, InputDataclipID: inputClipID}
		rs.ready = append(rs.ready, rj)
		added = append(added, rj)
	}
	return added
}

// takeReady изымает job из очереди готовых. Возвращает его входной clip.
func (rs *runState) takeReady(jobID uuid.UUID) (uuid.UUID, bool) {
	for i, rj := range rs.ready {
		if rj.JobID == jobID {
			rs.ready = append(rs.ready[:i], rs.ready[i+1:]...)
			return rj.InputDataclipID, true
		}
	}
	return uuid.Nil, false
}

// hasOpenWork возвращает true, пока есть готовые или незавершённые steps.
func (rs *runState) hasOpenWork() bool {
	if len(rs.ready) > 0 {
		return true
	}
	for _, si := range rs.steps {
		if !si.finished {
			return true
		}
	}
	return false
}

// restoreRunState восстанавливает состояние run из хранилища после
// рестарта процесса: scrubber пересобирается из credentials запущенных
// steps, очередь готовых — повторным проходом DAG по завершённым steps
// за вычетом jobs, для которых step уже существует.
func restoreRunState(ctx context.Context, st store.Store, run *domain.Run) (*runState, error) {
	snap, err := st.GetSnapshot(ctx, run.SnapshotID)
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	rootClip, err := st.GetDataclip(ctx, run.DataclipID)
	if err != nil {
		return nil, fmt.Errorf("get root dataclip: %w", err)
	}

	rs := newRunState(run, snap, rootClip)

	steps, err := st.ListStepsByRun(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}

	for i := range steps {
		step := &steps[i]
		rs.scheduled[step.JobID] = true
		rs.steps[step.ID] = &stepInfo{
			jobID:       step.JobID,
			inputClipID: step.InputDataclipID,
			finished:    step.IsFinished(),
			exitReason:  step.ExitReason,
		}
		if step.CredentialID != nil {
			cred, err := st.GetCredential(ctx, *step.CredentialID)
			if err == nil {
				rs.scrubber.Add(cred.SecretValues())
			}
		}
		if step.IsFinished() && step.ExitReason.IsRunFatal() {
			rs.fatal = true
		}
	}

	rs.pushReady(engine.InitialJobs(snap, run.TriggerID, rs.rootBody()), run.DataclipID)

	for i := range steps {
		step := &steps[i]
		if !step.IsFinished() || step.ExitReason.IsRunFatal() {
			continue
		}
		outcome, downstreamClip, err := stepOutcome(ctx, st, step)
		if err != nil {
			return nil, err
		}
		rs.pushReady(engine.NextJobs(snap, step.JobID, outcome), downstreamClip)
	}

	return rs, nil
}

// stepOutcome собирает Outcome завершённого step и dataclip для
// downstream jobs. Step без выходного dataclip передаёт дальше свой вход.
func stepOutcome(ctx context.Context, st store.Store, step *domain.Step) (engine.Outcome, uuid.UUID, error) {
	downstreamClip := step.InputDataclipID
	var state map[string]any
	if step.OutputDataclipID != nil {
		downstreamClip = *step.OutputDataclipID
		clip, err := st.GetDataclip(ctx, *step.OutputDataclipID)
		if err != nil {
			return engine.Outcome{}, uuid.Nil, fmt.Errorf("get output dataclip: %w", err)
		}
		state = clip.Body
	} else {
		clip, err := st.GetDataclip(ctx, step.InputDataclipID)
		if err != nil {
			return engine.Outcome{}, uuid.Nil, fmt.Errorf("get input dataclip: %w", err)
		}
		state = clip.Body
	}
	return engine.Outcome{ExitReason: step.ExitReason, State: state}, downstreamClip, nil
}
