package runservice

import (
	"context"
	"time"

	"github.com/chainwork/chainwork/chaintypes"
	"github.com/chainwork/chainwork/libtracker"
)

type activityTrackerDecorator struct {
	service Service
	tracker libtracker.ActivityTracker
}

func (d *activityTrackerDecorator) Start(ctx context.Context, userID string, chainID string, inputs map[string]any) (*chaintypes.Execution, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"start",
		"execution",
		"userId", userID,
		"chainId", chainID,
	)
	defer endFn()

	execution, err := d.service.Start(ctx, userID, chainID, inputs)
	if err != nil {
		reportErrFn(err)
	}
	if execution != nil {
		// Only report metadata, input values may carry sensitive material.
		reportChangeFn(execution.ID, map[string]interface{}{
			"id":      execution.ID,
			"chainId": execution.ChainID,
			"status":  execution.Status,
			"jobId":   execution.JobID,
		})
	}

	return execution, err
}

func (d *activityTrackerDecorator) Get(ctx context.Context, userID string, executionID string) (*chaintypes.Execution, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"get",
		"execution",
		"id", executionID,
	)
	defer endFn()

	execution, err := d.service.Get(ctx, userID, executionID)
	if err != nil {
		reportErrFn(err)
	}

	return execution, err
}

func (d *activityTrackerDecorator) ListByUser(ctx context.Context, userID string, createdAtCursor *time.Time, limit int) ([]*chaintypes.Execution, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"list",
		"execution",
		"userId", userID,
	)
	defer endFn()

	executions, err := d.service.ListByUser(ctx, userID, createdAtCursor, limit)
	if err != nil {
		reportErrFn(err)
	}

	return executions, err
}

func (d *activityTrackerDecorator) Steps(ctx context.Context, userID string, executionID string) ([]*chaintypes.StepResult, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"list",
		"step-result",
		"executionId", executionID,
	)
	defer endFn()

	steps, err := d.service.Steps(ctx, userID, executionID)
	if err != nil {
		reportErrFn(err)
	}

	return steps, err
}

func (d *activityTrackerDecorator) Cancel(ctx context.Context, userID string, executionID string) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"cancel",
		"execution",
		"id", executionID,
	)
	defer endFn()

	err := d.service.Cancel(ctx, userID, executionID)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(executionID, map[string]interface{}{
			"id":     executionID,
			"status": chaintypes.ExecutionCancelled,
		})
	}

	return err
}

// WithActivityTracker decorates the given service so every operation reports
// to the tracker.
func WithActivityTracker(service Service, tracker libtracker.ActivityTracker) Service {
	return &activityTrackerDecorator{
		service: service,
		tracker: tracker,
	}
}
