package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/store"
)

// StepRepo — репозиторий steps и строк логов.
type StepRepo struct {
	pool *pgxpool.Pool
}

// NewStepRepo создаёт новый StepRepo.
func NewStepRepo(pool *pgxpool.Pool) *StepRepo {
	return &StepRepo{pool: pool}
}

const stepColumns = `id, run_id, job_id, input_dataclip_id, output_dataclip_id,
       exit_reason, credential_id, started_at, finished_at`

// CreateStep создаёт новый step.
func (r *StepRepo) CreateStep(ctx context.Context, step *domain.Step) error {
	query := `
		INSERT INTO steps (id, run_id, job_id, input_dataclip_id, output_dataclip_id,
		                   exit_reason, credential_id, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		step.ID,
		step.RunID,
		step.JobID,
		step.InputDataclipID,
		step.OutputDataclipID,
		nullString(string(step.ExitReason)),
		step.CredentialID,
		step.StartedAt,
		step.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

// GetStep возвращает step по ID.
func (r *StepRepo) GetStep(ctx context.Context, id uuid.UUID) (*domain.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM steps WHERE id = $1`
	step, err := scanStep(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return step, err
}

// UpdateStep обновляет step.
func (r *StepRepo) UpdateStep(ctx context.Context, step *domain.Step) error {
	query := `
		UPDATE steps
		SET output_dataclip_id = $2, exit_reason = $3, finished_at = $4
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		step.ID,
		step.OutputDataclipID,
		nullString(string(step.ExitReason)),
		step.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update step: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListStepsByRun возвращает steps run в порядке запуска.
func (r *StepRepo) ListStepsByRun(ctx context.Context, runID uuid.UUID) ([]domain.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM steps WHERE run_id = $1 ORDER BY started_at ASC`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []domain.Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, *step)
	}
	return steps, rows.Err()
}

// AppendLogLines сохраняет пачку строк лога одним batch.
func (r *StepRepo) AppendLogLines(ctx context.Context, lines []domain.LogLine) error {
	if len(lines) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO log_lines (id, run_id, step_id, message, timestamp)
		VALUES ($1, $2, $3, $4, $5)
	`
	for i := range lines {
		line := &lines[i]
		batch.Queue(query, line.ID, line.RunID, line.StepID, line.Message, line.Timestamp)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range lines {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert log line: %w", err)
		}
	}
	return nil
}

// ListLogLines возвращает строки лога run в порядке записи.
func (r *StepRepo) ListLogLines(ctx context.Context, runID uuid.UUID) ([]domain.LogLine, error) {
	query := `
		SELECT id, run_id, step_id, message, timestamp
		FROM log_lines
		WHERE run_id = $1
		ORDER BY timestamp ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list log lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.LogLine
	for rows.Next() {
		var line domain.LogLine
		if err := rows.Scan(&line.ID, &line.RunID, &line.StepID, &line.Message, &line.Timestamp); err != nil {
			return nil, fmt.Errorf("scan log line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// scanStep сканирует строку в Step.
func scanStep(row pgx.Row) (*domain.Step, error) {
	var step domain.Step
	var exitReason *string

	err := row.Scan(
		&step.ID,
		&step.RunID,
		&step.JobID,
		&step.InputDataclipID,
		&step.OutputDataclipID,
		&exitReason,
		&step.CredentialID,
		&step.StartedAt,
		&step.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan step: %w", err)
	}
	if exitReason != nil {
		step.ExitReason = domain.ExitReason(*exitReason)
	}
	return &step, nil
}
