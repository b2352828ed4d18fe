package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conductor/internal/domain"
)

// BuildSnapshot замораживает текущее содержимое workflow в snapshot.
//
// Детерминирован относительно lock-версии workflow: повторные вызовы при
// одной и той же версии дают содержательно идентичные snapshots (ID и
// время создания — единственные отличия; переиспользование кэшированного
// snapshot решает вызывающая сторона по паре WorkflowID/LockVersion).
// Побочных эффектов нет — сохранение записи делает вызывающая сторона.
func BuildSnapshot(wf *domain.Workflow) *domain.Snapshot {
	snap := &domain.Snapshot{
		ID:          uuid.New(),
		WorkflowID:  wf.ID,
		LockVersion: wf.LockVersion,
		Name:        wf.Name,
		Triggers:    make([]domain.Trigger, len(wf.Triggers)),
		Jobs:        make([]domain.Job, len(wf.Jobs)),
		Edges:       make([]domain.Edge, len(wf.Edges)),
		CreatedAt:   time.Now(),
	}

	// Копируем по значению: snapshot не должен делить память с живым
	// workflow, который могут редактировать параллельно.
	copy(snap.Triggers, wf.Triggers)
	copy(snap.Jobs, wf.Jobs)
	copy(snap.Edges, wf.Edges)

	return snap
}
