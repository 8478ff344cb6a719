package chaintypes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (s *store) CreateStepResults(ctx context.Context, results ...*StepResult) error {
	now := time.Now().UTC()
	for _, result := range results {
		if result.ExecutionID == "" {
			return fmt.Errorf("step result execution id cannot be empty")
		}
		if result.StepID == "" {
			return fmt.Errorf("step result step id cannot be empty")
		}
		if result.ID == "" {
			result.ID = uuid.New().String()
		}
		if result.Status == "" {
			result.Status = StepPending
		}
		result.CreatedAt = now

		_, err := s.Exec.ExecContext(ctx, `
			INSERT INTO step_results
			(id, execution_id, step_id, step_name, position, status, prompt, system_context,
			 output, error_message, elapsed_ms, created_at, started_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			result.ID,
			result.ExecutionID,
			result.StepID,
			result.StepName,
			result.Position,
			string(result.Status),
			result.Prompt,
			result.SystemContext,
			result.Output,
			result.ErrorMessage,
			result.ElapsedMs,
			result.CreatedAt,
			result.StartedAt,
			result.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create step result: %w", err)
		}
	}
	return nil
}

func (s *store) GetStepResult(ctx context.Context, executionID string, stepID string) (*StepResult, error) {
	var result StepResult
	var status string
	err := s.Exec.QueryRowContext(ctx, `
        SELECT id, execution_id, step_id, step_name, position, status, prompt, system_context,
               output, error_message, elapsed_ms, created_at, started_at, completed_at
        FROM step_results
        WHERE execution_id = $1 AND step_id = $2`,
		executionID, stepID,
	).Scan(
		&result.ID,
		&result.ExecutionID,
		&result.StepID,
		&result.StepName,
		&result.Position,
		&status,
		&result.Prompt,
		&result.SystemContext,
		&result.Output,
		&result.ErrorMessage,
		&result.ElapsedMs,
		&result.CreatedAt,
		&result.StartedAt,
		&result.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get step result: %w", err)
	}
	result.Status = StepStatus(status)
	return &result, nil
}

func (s *store) ListStepResults(ctx context.Context, executionID string) ([]*StepResult, error) {
	rows, err := s.Exec.QueryContext(ctx, `
        SELECT id, execution_id, step_id, step_name, position, status, prompt, system_context,
               output, error_message, elapsed_ms, created_at, started_at, completed_at
        FROM step_results
        WHERE execution_id = $1
        ORDER BY position ASC, step_id ASC`,
		executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step results: %w", err)
	}
	defer rows.Close()

	var results []*StepResult
	for rows.Next() {
		var result StepResult
		var status string
		if err := rows.Scan(
			&result.ID,
			&result.ExecutionID,
			&result.StepID,
			&result.StepName,
			&result.Position,
			&status,
			&result.Prompt,
			&result.SystemContext,
			&result.Output,
			&result.ErrorMessage,
			&result.ElapsedMs,
			&result.CreatedAt,
			&result.StartedAt,
			&result.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step result: %w", err)
		}
		result.Status = StepStatus(status)
		results = append(results, &result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return results, nil
}

// MarkStepRunning flips a pending step to running. Returns false without error
// when the step was not pending (stale or duplicate start signal).
func (s *store) MarkStepRunning(ctx context.Context, executionID string, stepID string) (bool, error) {
	now := time.Now().UTC()
	result, err := s.Exec.ExecContext(ctx, `
        UPDATE step_results
        SET status = $3, started_at = $4
        WHERE execution_id = $1 AND step_id = $2 AND status = $5`,
		executionID,
		stepID,
		string(StepRunning),
		now,
		string(StepPending),
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark step running: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkStepTerminal records a step outcome, guarded on the step still being
// open. Duplicate or late signals affect zero rows and report false.
func (s *store) MarkStepTerminal(ctx context.Context, executionID string, stepID string, status StepStatus, output *string, errorMessage *string, elapsedMs int64) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("status %q is not terminal", status)
	}
	now := time.Now().UTC()
	result, err := s.Exec.ExecContext(ctx, `
        UPDATE step_results
        SET status = $3, output = $4, error_message = $5, elapsed_ms = $6, completed_at = $7
        WHERE execution_id = $1 AND step_id = $2 AND status IN ($8, $9)`,
		executionID,
		stepID,
		string(status),
		output,
		errorMessage,
		elapsedMs,
		now,
		string(StepPending),
		string(StepRunning),
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark step terminal: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// CancelOpenStepResults cancels every pending or running step of an execution.
func (s *store) CancelOpenStepResults(ctx context.Context, executionID string) error {
	now := time.Now().UTC()
	_, err := s.Exec.ExecContext(ctx, `
        UPDATE step_results
        SET status = $2, completed_at = $3
        WHERE execution_id = $1 AND status IN ($4, $5)`,
		executionID,
		string(StepCancelled),
		now,
		string(StepPending),
		string(StepRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to cancel open step results: %w", err)
	}
	return nil
}

func (s *store) CountStepResultsByStatus(ctx context.Context, executionID string) (map[StepStatus]int, error) {
	rows, err := s.Exec.QueryContext(ctx, `
        SELECT status, COUNT(*)
        FROM step_results
        WHERE execution_id = $1
        GROUP BY status`,
		executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count step results: %w", err)
	}
	defer rows.Close()

	counts := make(map[StepStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan step count: %w", err)
		}
		counts[StepStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return counts, nil
}
