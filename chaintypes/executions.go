package chaintypes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (s *store) CreateExecution(ctx context.Context, execution *Execution) error {
	if execution.ID == "" {
		execution.ID = uuid.New().String()
	}
	if execution.UserID == "" {
		return fmt.Errorf("execution user id cannot be empty")
	}
	if execution.ChainID == "" {
		return fmt.Errorf("execution chain id cannot be empty")
	}
	if execution.Status == "" {
		execution.Status = ExecutionPending
	}
	execution.CreatedAt = time.Now().UTC()

	_, err := s.Exec.ExecContext(ctx, `
		INSERT INTO executions
		(id, user_id, chain_id, status, request, job_id, reason, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		execution.ID,
		execution.UserID,
		execution.ChainID,
		string(execution.Status),
		[]byte(execution.Request),
		execution.JobID,
		execution.Reason,
		execution.CreatedAt,
		execution.StartedAt,
		execution.CompletedAt,
	)
	return err
}

func (s *store) GetExecution(ctx context.Context, id string) (*Execution, error) {
	var execution Execution
	var status string
	err := s.Exec.QueryRowContext(ctx, `
        SELECT id, user_id, chain_id, status, request, job_id, reason, created_at, started_at, completed_at
        FROM executions
        WHERE id = $1`,
		id,
	).Scan(
		&execution.ID,
		&execution.UserID,
		&execution.ChainID,
		&status,
		&execution.Request,
		&execution.JobID,
		&execution.Reason,
		&execution.CreatedAt,
		&execution.StartedAt,
		&execution.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	execution.Status = ExecutionStatus(status)
	return &execution, nil
}

func (s *store) ListExecutionsByUser(ctx context.Context, userID string, createdAtCursor *time.Time, limit int) ([]*Execution, error) {
	cursor := time.Now().UTC()
	if createdAtCursor != nil {
		cursor = *createdAtCursor
	}
	if limit > MAXLIMIT {
		return nil, ErrLimitParamExceeded
	}
	rows, err := s.Exec.QueryContext(ctx, `
        SELECT id, user_id, chain_id, status, request, job_id, reason, created_at, started_at, completed_at
        FROM executions
        WHERE user_id = $1 AND created_at < $2
        ORDER BY created_at DESC, id DESC
        LIMIT $3`,
		userID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		var execution Execution
		var status string
		if err := rows.Scan(
			&execution.ID,
			&execution.UserID,
			&execution.ChainID,
			&status,
			&execution.Request,
			&execution.JobID,
			&execution.Reason,
			&execution.CreatedAt,
			&execution.StartedAt,
			&execution.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		execution.Status = ExecutionStatus(status)
		executions = append(executions, &execution)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return executions, nil
}

// MarkExecutionRunning flips a pending execution to running and stamps
// started_at. Returns false without error when the execution was not pending,
// so callers can detect a lost race against cancellation.
func (s *store) MarkExecutionRunning(ctx context.Context, id string, jobID string) (bool, error) {
	now := time.Now().UTC()
	result, err := s.Exec.ExecContext(ctx, `
        UPDATE executions
        SET status = $2, job_id = $3, started_at = $4
        WHERE id = $1 AND status = $5`,
		id,
		string(ExecutionRunning),
		jobID,
		now,
		string(ExecutionPending),
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark execution running: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkExecutionTerminal moves an execution into a terminal status, guarded on
// the current status still being non-terminal. Terminal states are final:
// calling this on an already-terminal execution returns false without error.
func (s *store) MarkExecutionTerminal(ctx context.Context, id string, status ExecutionStatus, reason string) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("status %q is not terminal", status)
	}
	now := time.Now().UTC()
	result, err := s.Exec.ExecContext(ctx, `
        UPDATE executions
        SET status = $2, reason = $3, completed_at = $4
        WHERE id = $1 AND status IN ($5, $6)`,
		id,
		string(status),
		reason,
		now,
		string(ExecutionPending),
		string(ExecutionRunning),
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark execution terminal: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *store) EstimateExecutionCount(ctx context.Context) (int64, error) {
	return s.estimateCount(ctx, "executions")
}
