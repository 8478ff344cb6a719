package chainengine

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/chainwork/chainwork/chaintypes"
)

// CompletionSignal is the worker-reported outcome for one step. The transport
// is at-least-once, so the state machine must absorb redeliveries.
type CompletionSignal struct {
	ExecutionID  string                `json:"executionId"`
	StepID       string                `json:"stepId"`
	Status       chaintypes.StepStatus `json:"status"`
	Output       *string               `json:"output,omitempty"`
	ErrorMessage *string               `json:"errorMessage,omitempty"`
	ElapsedMs    int64                 `json:"elapsedMs,omitempty"`
}

// StateMachine applies step signals to the store and aggregates them into the
// execution status. Updates for the same execution are serialized through a
// striped lock on top of the store's conditional updates, so two concurrent
// "last step completed" signals cannot race the aggregate.
type StateMachine struct {
	store chaintypes.Store
	locks [64]sync.Mutex
}

func NewStateMachine(store chaintypes.Store) *StateMachine {
	return &StateMachine{store: store}
}

func (m *StateMachine) lockFor(executionID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(executionID))
	return &m.locks[h.Sum32()%uint32(len(m.locks))]
}

// MarkDispatched flips a pending execution to running and records the job id.
// Reports false when the execution already left pending.
func (m *StateMachine) MarkDispatched(ctx context.Context, executionID string, jobID string) (bool, error) {
	lock := m.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	return m.store.MarkExecutionRunning(ctx, executionID, jobID)
}

// ApplyStepStarted records that a worker picked up a step. Stale or duplicate
// start signals are discarded without error.
func (m *StateMachine) ApplyStepStarted(ctx context.Context, executionID string, stepID string) error {
	lock := m.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	_, err := m.store.MarkStepRunning(ctx, executionID, stepID)
	return err
}

// ApplySignal records a step outcome and re-derives the execution aggregate:
// any failed step fails the execution; all steps completed completes it.
// Signals for steps already terminal, including steps cancelled by a run
// cancellation, are ignored without error.
func (m *StateMachine) ApplySignal(ctx context.Context, signal *CompletionSignal) error {
	if signal == nil {
		return fmt.Errorf("completion signal cannot be nil")
	}
	if signal.Status != chaintypes.StepCompleted && signal.Status != chaintypes.StepFailed {
		return fmt.Errorf("invalid completion status %q", signal.Status)
	}

	lock := m.lockFor(signal.ExecutionID)
	lock.Lock()
	defer lock.Unlock()

	applied, err := m.store.MarkStepTerminal(ctx, signal.ExecutionID, signal.StepID,
		signal.Status, signal.Output, signal.ErrorMessage, signal.ElapsedMs)
	if err != nil {
		return fmt.Errorf("failed to record step outcome: %w", err)
	}
	if !applied {
		// Duplicate delivery or a late signal after cancellation.
		return nil
	}

	if signal.Status == chaintypes.StepFailed {
		reason := fmt.Sprintf("step %s failed", signal.StepID)
		if signal.ErrorMessage != nil && *signal.ErrorMessage != "" {
			reason = fmt.Sprintf("step %s failed: %s", signal.StepID, *signal.ErrorMessage)
		}
		_, err := m.store.MarkExecutionTerminal(ctx, signal.ExecutionID, chaintypes.ExecutionFailed, reason)
		if err != nil {
			return fmt.Errorf("failed to fail execution: %w", err)
		}
		return nil
	}

	counts, err := m.store.CountStepResultsByStatus(ctx, signal.ExecutionID)
	if err != nil {
		return fmt.Errorf("failed to count step results: %w", err)
	}
	open := counts[chaintypes.StepPending] + counts[chaintypes.StepRunning]
	settled := counts[chaintypes.StepFailed] + counts[chaintypes.StepCancelled]
	if open == 0 && settled == 0 {
		_, err := m.store.MarkExecutionTerminal(ctx, signal.ExecutionID, chaintypes.ExecutionCompleted, "")
		if err != nil {
			return fmt.Errorf("failed to complete execution: %w", err)
		}
	}
	return nil
}

// Cancel moves a non-terminal execution to cancelled together with its open
// steps. Reports false when the execution was already terminal. Completed and
// failed step outcomes are never overwritten.
func (m *StateMachine) Cancel(ctx context.Context, executionID string, reason string) (bool, error) {
	lock := m.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	applied, err := m.store.MarkExecutionTerminal(ctx, executionID, chaintypes.ExecutionCancelled, reason)
	if err != nil {
		return false, fmt.Errorf("failed to cancel execution: %w", err)
	}
	if !applied {
		return false, nil
	}
	if err := m.store.CancelOpenStepResults(ctx, executionID); err != nil {
		return true, fmt.Errorf("failed to cancel open steps: %w", err)
	}
	return true, nil
}

// FailDispatch fails an execution whose job could not be enqueued, recording
// the transport error verbatim so an operator can diagnose it.
func (m *StateMachine) FailDispatch(ctx context.Context, executionID string, reason string) error {
	lock := m.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := m.store.MarkExecutionTerminal(ctx, executionID, chaintypes.ExecutionFailed, reason); err != nil {
		return fmt.Errorf("failed to record dispatch failure: %w", err)
	}
	if err := m.store.CancelOpenStepResults(ctx, executionID); err != nil {
		return fmt.Errorf("failed to cancel open steps: %w", err)
	}
	return nil
}
