package chaincli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chainwork/chainwork/chaintypes"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func setupLocalEnv(t *testing.T) (context.Context, *env) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := defaultConfig()
	cfg.DB = filepath.Join(t.TempDir(), "chainwork-test.db")

	e, err := buildEnv(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(e.close)

	return ctx, e
}

func Test_echoWorker_CompletesRun(t *testing.T) {
	ctx, e := setupLocalEnv(t)

	worker := newEchoWorker(e.bus)
	require.NoError(t, worker.Start(ctx))

	chain := &chaintypes.ChainDefinition{
		ID:   uuid.NewString(),
		Name: "echo-chain",
		Steps: []chaintypes.StepDefinition{
			{
				ID:             uuid.NewString(),
				Name:           "summarize",
				PromptTemplate: "Summarize the following text: ${text}",
				ModelID:        uuid.NewString(),
				Position:       0,
				InputMapping:   map[string]string{"text": "input.topic"},
			},
		},
		InputFields: []chaintypes.InputFieldDefinition{
			{Name: "topic", Type: chaintypes.FieldTypeString, Position: 0},
		},
	}
	require.NoError(t, e.chains.Create(ctx, chain))

	execution, err := e.runs.Start(ctx, localUserID, chain.ID, map[string]any{"topic": "observability"})
	require.NoError(t, err)

	cfg := defaultConfig()
	final, err := waitForTerminal(ctx, cfg, e, execution.ID, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, chaintypes.ExecutionCompleted, final.Status)

	steps, err := e.runs.Steps(ctx, localUserID, execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.Equal(t, chaintypes.StepCompleted, steps[0].Status)
	require.NotNil(t, steps[0].Output)
	require.Equal(t, "Summarize the following text: observability", *steps[0].Output)
}

func Test_echoWorker_FillsPriorStepOutputs(t *testing.T) {
	ctx, e := setupLocalEnv(t)

	worker := newEchoWorker(e.bus)
	require.NoError(t, worker.Start(ctx))

	chain := &chaintypes.ChainDefinition{
		ID:   uuid.NewString(),
		Name: "pipeline-chain",
		Steps: []chaintypes.StepDefinition{
			{
				ID:             uuid.NewString(),
				Name:           "summarize",
				PromptTemplate: "Summarize the following text: ${text}",
				ModelID:        uuid.NewString(),
				Position:       0,
				InputMapping:   map[string]string{"text": "input.topic"},
			},
			{
				ID:             uuid.NewString(),
				Name:           "expand",
				PromptTemplate: "Write a blog post based on: ${summary}",
				ModelID:        uuid.NewString(),
				Position:       1,
				InputMapping:   map[string]string{"summary": "summarize"},
			},
		},
		InputFields: []chaintypes.InputFieldDefinition{
			{Name: "topic", Type: chaintypes.FieldTypeString, Position: 0},
		},
	}
	require.NoError(t, e.chains.Create(ctx, chain))

	execution, err := e.runs.Start(ctx, localUserID, chain.ID, map[string]any{"topic": "observability"})
	require.NoError(t, err)

	cfg := defaultConfig()
	final, err := waitForTerminal(ctx, cfg, e, execution.ID, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, chaintypes.ExecutionCompleted, final.Status)

	steps, err := e.runs.Steps(ctx, localUserID, execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)

	// The second step's placeholder is realized from the first step's output
	// instead of echoing back literally.
	require.NotNil(t, steps[1].Output)
	require.Equal(t,
		"Write a blog post based on: Summarize the following text: observability",
		*steps[1].Output)
}

func Test_echoWorker_HonorsCancelNotices(t *testing.T) {
	ctx, e := setupLocalEnv(t)

	worker := newEchoWorker(e.bus)
	require.NoError(t, worker.Start(ctx))

	executionID := uuid.NewString()
	worker.mu.Lock()
	worker.cancelled[executionID] = struct{}{}
	worker.mu.Unlock()

	require.True(t, worker.isCancelled(executionID))
	require.False(t, worker.isCancelled(uuid.NewString()))
}
