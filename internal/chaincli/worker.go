package chaincli

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/chainwork/chainwork/chaindispatch"
	"github.com/chainwork/chainwork/chainengine"
	"github.com/chainwork/chainwork/chaintypes"
	"github.com/chainwork/chainwork/libbus"
)

// echoWorker is the built-in local worker. It consumes dispatched jobs,
// fills each step's prior-step placeholders from the outputs it has already
// produced, and completes the step with the realized prompt as output, so
// chains can be exercised end to end without any model backend.
type echoWorker struct {
	bus libbus.Messenger

	mu        sync.Mutex
	cancelled map[string]struct{}
}

func newEchoWorker(bus libbus.Messenger) *echoWorker {
	return &echoWorker{bus: bus, cancelled: make(map[string]struct{})}
}

func (w *echoWorker) Start(ctx context.Context) error {
	jobs := make(chan []byte, 16)
	jobSub, err := w.bus.Stream(ctx, chaindispatch.SubjectJobs, jobs)
	if err != nil {
		return err
	}
	cancels := make(chan []byte, 16)
	cancelSub, err := w.bus.Stream(ctx, chaindispatch.SubjectCancel, cancels)
	if err != nil {
		_ = jobSub.Unsubscribe()
		return err
	}

	go func() {
		defer func() {
			_ = jobSub.Unsubscribe()
			_ = cancelSub.Unsubscribe()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case data, ok := <-cancels:
				if !ok {
					return
				}
				var notice chaindispatch.CancelNotice
				if err := json.Unmarshal(data, &notice); err == nil {
					w.mu.Lock()
					w.cancelled[notice.ExecutionID] = struct{}{}
					w.mu.Unlock()
				}
			case data, ok := <-jobs:
				if !ok {
					return
				}
				var payload chaindispatch.JobPayload
				if err := json.Unmarshal(data, &payload); err != nil {
					continue
				}
				w.process(ctx, &payload)
			}
		}
	}()
	return nil
}

func (w *echoWorker) isCancelled(executionID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.cancelled[executionID]
	return ok
}

func (w *echoWorker) process(ctx context.Context, payload *chaindispatch.JobPayload) {
	priorOutputs := make(map[string]string, len(payload.Steps))
	for _, step := range payload.Steps {
		if w.isCancelled(payload.ExecutionID) {
			return
		}
		started := time.Now()

		w.signal(ctx, &chainengine.CompletionSignal{
			ExecutionID: payload.ExecutionID,
			StepID:      step.StepID,
			Status:      chaintypes.StepRunning,
		})

		output := chainengine.RealizePriorOutputs(step.ResolvedPrompt, step.InputMapping, priorOutputs)
		priorOutputs[step.StepName] = output
		w.signal(ctx, &chainengine.CompletionSignal{
			ExecutionID: payload.ExecutionID,
			StepID:      step.StepID,
			Status:      chaintypes.StepCompleted,
			Output:      &output,
			ElapsedMs:   time.Since(started).Milliseconds(),
		})
	}
}

func (w *echoWorker) signal(ctx context.Context, signal *chainengine.CompletionSignal) {
	data, err := json.Marshal(signal)
	if err != nil {
		return
	}
	_ = w.bus.Publish(ctx, chaindispatch.SubjectResults, data)
}
