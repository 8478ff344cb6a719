package chaindispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chainwork/chainwork/chainengine"
	"github.com/chainwork/chainwork/chaintypes"
	"github.com/chainwork/chainwork/libbus"
	"github.com/chainwork/chainwork/libtracker"
)

// Listener subscribes to worker signals and applies them to the state
// machine. It is the push half of the observation contract; polling the store
// stays possible without it.
type Listener struct {
	bus     libbus.Messenger
	machine *chainengine.StateMachine
	tracker libtracker.ActivityTracker
}

func NewListener(bus libbus.Messenger, machine *chainengine.StateMachine, tracker libtracker.ActivityTracker) *Listener {
	if tracker == nil {
		tracker = libtracker.NoopTracker{}
	}
	return &Listener{bus: bus, machine: machine, tracker: tracker}
}

// Start subscribes to the results subject and consumes signals until ctx is
// cancelled. Malformed payloads are reported and skipped; apply errors are
// reported but do not stop the loop, since the transport redelivers.
func (l *Listener) Start(ctx context.Context) error {
	ch := make(chan []byte, 64)
	sub, err := l.bus.Stream(ctx, SubjectResults, ch)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", SubjectResults, err)
	}

	go func() {
		defer func() { _ = sub.Unsubscribe() }()
		for {
			select {
			case <-ctx.Done():
				return
			case data, ok := <-ch:
				if !ok {
					return
				}
				l.handle(ctx, data)
			}
		}
	}()
	return nil
}

func (l *Listener) handle(ctx context.Context, data []byte) {
	var signal chainengine.CompletionSignal
	if err := json.Unmarshal(data, &signal); err != nil {
		reportErr, _, end := l.tracker.Start(ctx, "decode", "completion_signal")
		defer end()
		reportErr(fmt.Errorf("malformed completion signal: %w", err))
		return
	}

	reportErr, reportChange, end := l.tracker.Start(ctx, "apply", "completion_signal",
		"execution_id", signal.ExecutionID,
		"step_id", signal.StepID,
		"status", string(signal.Status),
	)
	defer end()

	var err error
	// Workers also announce step pickup on the same subject.
	if signal.Status == chaintypes.StepRunning {
		err = l.machine.ApplyStepStarted(ctx, signal.ExecutionID, signal.StepID)
	} else {
		err = l.machine.ApplySignal(ctx, &signal)
	}
	if err != nil {
		reportErr(err)
		return
	}
	reportChange(signal.ExecutionID, signal.Status)
}
