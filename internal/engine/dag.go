package engine

import (
	"github.com/google/uuid"
	"github.com/shaiso/Conductor/internal/domain"
)

// Outcome — результат upstream-источника, против которого оцениваются рёбра.
type Outcome struct {
	// ExitReason — результат завершённого step.
	ExitReason domain.ExitReason

	// State — выходное состояние step (или тело корневого dataclip для
	// триггера). Используется только рёбрами js_expression.
	State map[string]any
}

// InitialJobs возвращает jobs, готовые к запуску при срабатывании триггера.
//
// Источник-триггер не имеет exit_reason, поэтому рёбра с условиями
// on_job_success / on_job_failure от триггера не срабатывают никогда;
// always срабатывает безусловно, js_expression оценивается против тела
// корневого dataclip. Порядок — порядок объявления рёбер в snapshot.
func InitialJobs(snap *domain.Snapshot, triggerID uuid.UUID, rootState map[string]any) []*domain.Job {
	jobs := make([]*domain.Job, 0)
	for i := range snap.Edges {
		edge := &snap.Edges[i]
		if edge.SourceTriggerID == nil || *edge.SourceTriggerID != triggerID {
			continue
		}
		if !triggerEdgeEligible(edge, rootState) {
			continue
		}
		if job := snap.JobByID(edge.TargetJobID); job != nil {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// NextJobs возвращает jobs, готовые к запуску после завершения step.
//
// Для каждого ребра от завершённого job:
//   - always          → безусловно
//   - on_job_success  → exit_reason успешный
//   - on_job_failure  → любой неуспешный exit_reason
//   - js_expression   → выражение истинно против выходного состояния;
//     ошибка вычисления трактуется как false, не поднимается
//
// Результат детерминирован: чистая функция от (snapshot, exit_reason,
// выходное состояние), порядок — порядок объявления рёбер.
func NextJobs(snap *domain.Snapshot, completedJobID uuid.UUID, outcome Outcome) []*domain.Job {
	jobs := make([]*domain.Job, 0)
	for i := range snap.Edges {
		edge := &snap.Edges[i]
		if edge.SourceJobID == nil || *edge.SourceJobID != completedJobID {
			continue
		}
		if !jobEdgeEligible(edge, outcome) {
			continue
		}
		if job := snap.JobByID(edge.TargetJobID); job != nil {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// triggerEdgeEligible решает судьбу ребра от триггера.
func triggerEdgeEligible(edge *domain.Edge, rootState map[string]any) bool {
	switch edge.Condition {
	case domain.EdgeAlways:
		return true
	case domain.EdgeExpression:
		return evalEdgeExpression(edge.ConditionExpression, rootState)
	case domain.EdgeOnSuccess, domain.EdgeOnFailure:
		// У триггера нет exit_reason — условия по исходу job не применимы.
		return false
	default:
		return false
	}
}

// jobEdgeEligible решает судьбу ребра от завершённого job.
func jobEdgeEligible(edge *domain.Edge, outcome Outcome) bool {
	switch edge.Condition {
	case domain.EdgeAlways:
		return true
	case domain.EdgeOnSuccess:
		return outcome.ExitReason.IsSuccess()
	case domain.EdgeOnFailure:
		return !outcome.ExitReason.IsSuccess()
	case domain.EdgeExpression:
		return evalEdgeExpression(edge.ConditionExpression, outcome.State)
	default:
		return false
	}
}

// evalEdgeExpression вычисляет условие ребра в sandbox.
// Ошибки разбора и вычисления приравниваются к false.
func evalEdgeExpression(expr string, state map[string]any) bool {
	if expr == "" {
		return false
	}
	ok, err := EvalBool(expr, map[string]any{"state": state})
	if err != nil {
		return false
	}
	return ok
}
