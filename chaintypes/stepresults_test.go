package chaintypes_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/chainwork/chainwork/chaintypes"
	libdb "github.com/chainwork/chainwork/libdbexec"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func seedExecution(t *testing.T, ctx context.Context, s chaintypes.Store) *chaintypes.Execution {
	t.Helper()
	execution := &chaintypes.Execution{
		UserID:  uuid.New().String(),
		ChainID: uuid.New().String(),
		Request: json.RawMessage(`{}`),
	}
	require.NoError(t, s.CreateExecution(ctx, execution))
	return execution
}

func TestUnit_StepResults_CreateListAndGet(t *testing.T) {
	ctx, s := chaintypes.SetupStore(t)
	execution := seedExecution(t, ctx, s)

	first := &chaintypes.StepResult{
		ExecutionID:   execution.ID,
		StepID:        uuid.New().String(),
		StepName:      "summarize",
		Position:      0,
		Prompt:        "Summarize the following text: observability",
		SystemContext: "You are a concise technical writer.",
	}
	second := &chaintypes.StepResult{
		ExecutionID: execution.ID,
		StepID:      uuid.New().String(),
		StepName:    "expand",
		Position:    1,
		Prompt:      "Expand the summary into a full post.",
	}
	require.NoError(t, s.CreateStepResults(ctx, second, first))
	require.NotEmpty(t, first.ID)
	require.Equal(t, chaintypes.StepPending, first.Status)

	results, err := s.ListStepResults(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "summarize", results[0].StepName)
	require.Equal(t, "expand", results[1].StepName)

	got, err := s.GetStepResult(ctx, execution.ID, second.StepID)
	require.NoError(t, err)
	require.Equal(t, "expand", got.StepName)
	require.Nil(t, got.Output)
	require.Nil(t, got.ErrorMessage)
}

func TestUnit_StepResults_CreateValidation(t *testing.T) {
	ctx, s := chaintypes.SetupStore(t)

	err := s.CreateStepResults(ctx, &chaintypes.StepResult{StepID: uuid.New().String()})
	require.Error(t, err)

	err = s.CreateStepResults(ctx, &chaintypes.StepResult{ExecutionID: uuid.New().String()})
	require.Error(t, err)
}

func TestUnit_StepResults_DuplicateStepRejected(t *testing.T) {
	ctx, s := chaintypes.SetupStore(t)
	execution := seedExecution(t, ctx, s)

	stepID := uuid.New().String()
	require.NoError(t, s.CreateStepResults(ctx, &chaintypes.StepResult{
		ExecutionID: execution.ID,
		StepID:      stepID,
		StepName:    "once",
	}))
	err := s.CreateStepResults(ctx, &chaintypes.StepResult{
		ExecutionID: execution.ID,
		StepID:      stepID,
		StepName:    "twice",
	})
	require.ErrorIs(t, err, libdb.ErrUniqueViolation)
}

func TestUnit_StepResults_RunningAndTerminalTransitions(t *testing.T) {
	ctx, s := chaintypes.SetupStore(t)
	execution := seedExecution(t, ctx, s)

	stepID := uuid.New().String()
	require.NoError(t, s.CreateStepResults(ctx, &chaintypes.StepResult{
		ExecutionID: execution.ID,
		StepID:      stepID,
		StepName:    "summarize",
	}))

	applied, err := s.MarkStepRunning(ctx, execution.ID, stepID)
	require.NoError(t, err)
	require.True(t, applied)

	// Duplicate start signal is discarded.
	applied, err = s.MarkStepRunning(ctx, execution.ID, stepID)
	require.NoError(t, err)
	require.False(t, applied)

	output := "a fine summary"
	applied, err = s.MarkStepTerminal(ctx, execution.ID, stepID, chaintypes.StepCompleted, &output, nil, 1250)
	require.NoError(t, err)
	require.True(t, applied)

	got, err := s.GetStepResult(ctx, execution.ID, stepID)
	require.NoError(t, err)
	require.Equal(t, chaintypes.StepCompleted, got.Status)
	require.NotNil(t, got.Output)
	require.Equal(t, output, *got.Output)
	require.Equal(t, int64(1250), got.ElapsedMs)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)

	// A late failure signal after completion changes nothing.
	message := "model timeout"
	applied, err = s.MarkStepTerminal(ctx, execution.ID, stepID, chaintypes.StepFailed, nil, &message, 99)
	require.NoError(t, err)
	require.False(t, applied)

	got, err = s.GetStepResult(ctx, execution.ID, stepID)
	require.NoError(t, err)
	require.Equal(t, chaintypes.StepCompleted, got.Status)
	require.Nil(t, got.ErrorMessage)
}

func TestUnit_StepResults_TerminalRejectsOpenStatus(t *testing.T) {
	ctx, s := chaintypes.SetupStore(t)
	execution := seedExecution(t, ctx, s)

	stepID := uuid.New().String()
	require.NoError(t, s.CreateStepResults(ctx, &chaintypes.StepResult{
		ExecutionID: execution.ID,
		StepID:      stepID,
	}))

	_, err := s.MarkStepTerminal(ctx, execution.ID, stepID, chaintypes.StepRunning, nil, nil, 0)
	require.Error(t, err)
}

func TestUnit_StepResults_CancelOpenAndCount(t *testing.T) {
	ctx, s := chaintypes.SetupStore(t)
	execution := seedExecution(t, ctx, s)

	completedID := uuid.New().String()
	runningID := uuid.New().String()
	pendingID := uuid.New().String()
	require.NoError(t, s.CreateStepResults(ctx,
		&chaintypes.StepResult{ExecutionID: execution.ID, StepID: completedID, Position: 0},
		&chaintypes.StepResult{ExecutionID: execution.ID, StepID: runningID, Position: 1},
		&chaintypes.StepResult{ExecutionID: execution.ID, StepID: pendingID, Position: 2},
	))

	output := "done"
	_, err := s.MarkStepRunning(ctx, execution.ID, completedID)
	require.NoError(t, err)
	_, err = s.MarkStepTerminal(ctx, execution.ID, completedID, chaintypes.StepCompleted, &output, nil, 10)
	require.NoError(t, err)
	_, err = s.MarkStepRunning(ctx, execution.ID, runningID)
	require.NoError(t, err)

	require.NoError(t, s.CancelOpenStepResults(ctx, execution.ID))

	counts, err := s.CountStepResultsByStatus(ctx, execution.ID)
	require.NoError(t, err)
	require.Equal(t, 1, counts[chaintypes.StepCompleted])
	require.Equal(t, 2, counts[chaintypes.StepCancelled])
	require.Zero(t, counts[chaintypes.StepPending])
	require.Zero(t, counts[chaintypes.StepRunning])

	// Completed output survives the cancellation sweep.
	got, err := s.GetStepResult(ctx, execution.ID, completedID)
	require.NoError(t, err)
	require.Equal(t, chaintypes.StepCompleted, got.Status)
	require.Equal(t, output, *got.Output)
}
