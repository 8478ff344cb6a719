package runservice_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chainwork/chainwork/apiframework"
	"github.com/chainwork/chainwork/chaindispatch"
	"github.com/chainwork/chainwork/chainengine"
	"github.com/chainwork/chainwork/chaintypes"
	"github.com/chainwork/chainwork/libbus"
	libdb "github.com/chainwork/chainwork/libdbexec"
	"github.com/chainwork/chainwork/libtracker"
	"github.com/chainwork/chainwork/runservice"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type runHarness struct {
	ctx     context.Context
	db      libdb.DBManager
	store   chaintypes.Store
	bus     libbus.Messenger
	busDone func()
	service runservice.Service
}

func setupRunService(t *testing.T) *runHarness {
	t.Helper()

	ctx := context.TODO()
	path := filepath.Join(t.TempDir(), "chainwork-test.db")
	dbManager, err := libdb.NewSQLiteDBManager(ctx, path, chaintypes.SchemaSQLite)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, dbManager.Close())
	})

	bus, cleanup, err := libbus.NewTestPubSub()
	require.NoError(t, err)
	t.Cleanup(cleanup)

	svc := runservice.WithActivityTracker(
		runservice.New(dbManager, chaindispatch.NewBusGateway(bus)),
		libtracker.NoopTracker{},
	)

	return &runHarness{
		ctx:     ctx,
		db:      dbManager,
		store:   chaintypes.New(dbManager.WithoutTransaction()),
		bus:     bus,
		busDone: cleanup,
		service: svc,
	}
}

// storeChain persists a chain definition the way the chain service does,
// as a JSON blob under the chain key prefix.
func (h *runHarness) storeChain(t *testing.T, chain *chaintypes.ChainDefinition) {
	t.Helper()
	raw, err := json.Marshal(chain)
	require.NoError(t, err)
	require.NoError(t, h.store.SetKV(h.ctx, chaintypes.ChainKeyPrefix+chain.ID, raw))
}

func twoStepChain() *chaintypes.ChainDefinition {
	return &chaintypes.ChainDefinition{
		ID:   uuid.NewString(),
		Name: "blog-writer",
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
}

func TestUnit_RunService_StartDispatchesAndMarksRunning(t *testing.T) {
	h := setupRunService(t)

	chain := twoStepChain()
	h.storeChain(t, chain)

	jobs := make(chan []byte, 1)
	sub, err := h.bus.Stream(h.ctx, chaindispatch.SubjectJobs, jobs)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	userID := uuid.NewString()
	execution, err := h.service.Start(h.ctx, userID, chain.ID, map[string]any{"topic": "observability"})
	require.NoError(t, err)
	require.Equal(t, chaintypes.ExecutionRunning, execution.Status)
	require.NotEmpty(t, execution.JobID)
	require.NotNil(t, execution.StartedAt)

	steps, err := h.service.Steps(h.ctx, userID, execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, "Summarize the following text: observability", steps[0].Prompt)
	// The prior-step placeholder stays literal until the worker fills it.
	require.Equal(t, "Write a blog post based on: ${summary}", steps[1].Prompt)
	require.Equal(t, chaintypes.StepPending, steps[0].Status)

	select {
	case data := <-jobs:
		var payload chaindispatch.JobPayload
		require.NoError(t, json.Unmarshal(data, &payload))
		require.Equal(t, execution.JobID, payload.JobID)
		require.Equal(t, execution.ID, payload.ExecutionID)
		require.Equal(t, userID, payload.UserID)
		require.Len(t, payload.Steps, 2)
		// The payload carries the binding a worker needs to realize the
		// literal placeholder from the first step's output.
		require.Equal(t, "expand", payload.Steps[1].StepName)
		require.Equal(t, map[string]string{"summary": "summarize"}, payload.Steps[1].InputMapping)
	case <-time.After(2 * time.Second):
		t.Fatal("no job published")
	}
}

func TestUnit_RunService_StartValidation(t *testing.T) {
	h := setupRunService(t)

	chain := twoStepChain()
	chain.InputFields = append(chain.InputFields, chaintypes.InputFieldDefinition{
		Name: "length", Type: chaintypes.FieldTypeString, Options: []string{"short", "long"}, Position: 1,
	})
	h.storeChain(t, chain)

	userID := uuid.NewString()
	okInputs := func() map[string]any {
		return map[string]any{"topic": "observability", "length": "short"}
	}

	_, err := h.service.Start(h.ctx, "", chain.ID, okInputs())
	require.ErrorIs(t, err, apiframework.ErrMissingParameter)

	_, err = h.service.Start(h.ctx, userID, "", okInputs())
	require.ErrorIs(t, err, apiframework.ErrMissingParameter)

	_, err = h.service.Start(h.ctx, userID, uuid.NewString(), okInputs())
	require.ErrorIs(t, err, apiframework.ErrNotFound)

	tooMany := okInputs()
	for i := 0; i < 51; i++ {
		tooMany[fmt.Sprintf("extra_%d", i)] = "x"
	}
	_, err = h.service.Start(h.ctx, userID, chain.ID, tooMany)
	require.ErrorIs(t, err, apiframework.ErrBadRequest)

	undeclared := okInputs()
	undeclared["surprise"] = "x"
	_, err = h.service.Start(h.ctx, userID, chain.ID, undeclared)
	require.ErrorIs(t, err, apiframework.ErrBadRequest)

	_, err = h.service.Start(h.ctx, userID, chain.ID, map[string]any{"topic": "observability"})
	require.ErrorIs(t, err, apiframework.ErrBadRequest)
	require.Contains(t, err.Error(), "length")

	wrongType := okInputs()
	wrongType["topic"] = 42
	_, err = h.service.Start(h.ctx, userID, chain.ID, wrongType)
	require.ErrorIs(t, err, apiframework.ErrBadRequest)

	badEnum := okInputs()
	badEnum["length"] = "medium"
	_, err = h.service.Start(h.ctx, userID, chain.ID, badEnum)
	require.ErrorIs(t, err, apiframework.ErrBadRequest)

	oversized := okInputs()
	oversized["topic"] = strings.Repeat("a", 10001)
	_, err = h.service.Start(h.ctx, userID, chain.ID, oversized)
	require.ErrorIs(t, err, apiframework.ErrBadRequest)

	malformedKey := okInputs()
	malformedKey["bad key!"] = "x"
	_, err = h.service.Start(h.ctx, userID, chain.ID, malformedKey)
	require.ErrorIs(t, err, apiframework.ErrBadRequest)

	// Rejected requests never leave an execution behind.
	executions, err := h.service.ListByUser(h.ctx, userID, nil, 100)
	require.NoError(t, err)
	require.Empty(t, executions)
}

func TestUnit_RunService_StartCapabilityRejected(t *testing.T) {
	h := setupRunService(t)

	model := &chaintypes.Model{ID: uuid.NewString(), Name: "mistral:instruct", Active: true}
	require.NoError(t, h.store.AppendModel(h.ctx, model))
	require.NoError(t, h.store.CreateCapability(h.ctx, &chaintypes.Capability{Name: "web_search"}))

	chain := twoStepChain()
	chain.Steps[0].ModelID = model.ID
	chain.Steps[0].Capabilities = []string{"web_search"}
	h.storeChain(t, chain)

	_, err := h.service.Start(h.ctx, uuid.NewString(), chain.ID, map[string]any{"topic": "observability"})
	require.ErrorIs(t, err, apiframework.ErrUnprocessableEntity)

	var capErr *chainengine.CapabilityError
	require.ErrorAs(t, err, &capErr)
	require.Equal(t, chainengine.ReasonUnsupportedByModel, capErr.Reason)
	require.Equal(t, []string{"web_search"}, capErr.Rejected)
}

func TestUnit_RunService_StartIgnoresBlankCapabilityNames(t *testing.T) {
	h := setupRunService(t)

	// A blank name never makes it into the dispatched payload, so it must
	// not fail validation either.
	chain := twoStepChain()
	chain.Steps[0].Capabilities = []string{"  ", ""}
	h.storeChain(t, chain)

	execution, err := h.service.Start(h.ctx, uuid.NewString(), chain.ID, map[string]any{"topic": "observability"})
	require.NoError(t, err)
	require.Equal(t, chaintypes.ExecutionRunning, execution.Status)
}

func TestUnit_RunService_DispatchFailureFailsExecution(t *testing.T) {
	h := setupRunService(t)

	chain := twoStepChain()
	h.storeChain(t, chain)

	// Tearing the bus down makes every publish fail at dispatch time.
	h.busDone()

	userID := uuid.NewString()
	execution, err := h.service.Start(h.ctx, userID, chain.ID, map[string]any{"topic": "observability"})
	require.ErrorIs(t, err, apiframework.ErrDispatchFailed)
	require.NotNil(t, execution)
	require.Equal(t, chaintypes.ExecutionFailed, execution.Status)
	require.NotEmpty(t, execution.Reason)

	steps, err := h.service.Steps(h.ctx, userID, execution.ID)
	require.NoError(t, err)
	for _, step := range steps {
		require.Equal(t, chaintypes.StepCancelled, step.Status)
	}
}

func TestUnit_RunService_OwnershipChecks(t *testing.T) {
	h := setupRunService(t)

	chain := twoStepChain()
	h.storeChain(t, chain)

	owner := uuid.NewString()
	stranger := uuid.NewString()
	execution, err := h.service.Start(h.ctx, owner, chain.ID, map[string]any{"topic": "observability"})
	require.NoError(t, err)

	_, err = h.service.Get(h.ctx, stranger, execution.ID)
	require.ErrorIs(t, err, apiframework.ErrForbidden)
	_, err = h.service.Steps(h.ctx, stranger, execution.ID)
	require.ErrorIs(t, err, apiframework.ErrForbidden)
	err = h.service.Cancel(h.ctx, stranger, execution.ID)
	require.ErrorIs(t, err, apiframework.ErrForbidden)

	got, err := h.service.Get(h.ctx, owner, execution.ID)
	require.NoError(t, err)
	require.Equal(t, execution.ID, got.ID)

	_, err = h.service.Get(h.ctx, owner, uuid.NewString())
	require.ErrorIs(t, err, apiframework.ErrNotFound)

	mine, err := h.service.ListByUser(h.ctx, owner, nil, 100)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	theirs, err := h.service.ListByUser(h.ctx, stranger, nil, 100)
	require.NoError(t, err)
	require.Empty(t, theirs)
}

func TestUnit_RunService_CancelLifecycle(t *testing.T) {
	h := setupRunService(t)

	chain := twoStepChain()
	h.storeChain(t, chain)

	owner := uuid.NewString()
	execution, err := h.service.Start(h.ctx, owner, chain.ID, map[string]any{"topic": "observability"})
	require.NoError(t, err)

	notices := make(chan []byte, 1)
	sub, err := h.bus.Stream(h.ctx, chaindispatch.SubjectCancel, notices)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, h.service.Cancel(h.ctx, owner, execution.ID))

	got, err := h.service.Get(h.ctx, owner, execution.ID)
	require.NoError(t, err)
	require.Equal(t, chaintypes.ExecutionCancelled, got.Status)
	require.Equal(t, "cancelled by user", got.Reason)

	steps, err := h.service.Steps(h.ctx, owner, execution.ID)
	require.NoError(t, err)
	for _, step := range steps {
		require.Equal(t, chaintypes.StepCancelled, step.Status)
	}

	select {
	case data := <-notices:
		var notice chaindispatch.CancelNotice
		require.NoError(t, json.Unmarshal(data, &notice))
		require.Equal(t, execution.ID, notice.ExecutionID)
	case <-time.After(2 * time.Second):
		t.Fatal("no cancel notice published")
	}

	// Cancelling again is a no-op.
	require.NoError(t, h.service.Cancel(h.ctx, owner, execution.ID))
}

func TestUnit_RunService_CancelCompletedConflicts(t *testing.T) {
	h := setupRunService(t)

	chain := twoStepChain()
	h.storeChain(t, chain)

	owner := uuid.NewString()
	execution, err := h.service.Start(h.ctx, owner, chain.ID, map[string]any{"topic": "observability"})
	require.NoError(t, err)

	applied, err := h.store.MarkExecutionTerminal(h.ctx, execution.ID, chaintypes.ExecutionCompleted, "")
	require.NoError(t, err)
	require.True(t, applied)

	err = h.service.Cancel(h.ctx, owner, execution.ID)
	require.ErrorIs(t, err, apiframework.ErrConflict)

	got, err := h.service.Get(h.ctx, owner, execution.ID)
	require.NoError(t, err)
	require.Equal(t, chaintypes.ExecutionCompleted, got.Status)
}

func TestUnit_RunService_StartRejectsNonSerializableInput(t *testing.T) {
	h := setupRunService(t)

	chain := twoStepChain()
	chain.InputFields[0].Type = chaintypes.FieldTypeObject
	h.storeChain(t, chain)

	_, err := h.service.Start(h.ctx, uuid.NewString(), chain.ID, map[string]any{
		"topic": map[string]any{"fn": func() {}},
	})
	require.Error(t, err)
	require.ErrorIs(t, err, apiframework.ErrBadRequest)
}
