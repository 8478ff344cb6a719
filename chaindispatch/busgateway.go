package chaindispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chainwork/chainwork/apiframework"
	"github.com/chainwork/chainwork/libbus"
	"github.com/chainwork/chainwork/libroutine"
	"github.com/google/uuid"
)

const (
	dispatchRetryInterval = 200 * time.Millisecond
	dispatchMaxAttempts   = 3
	breakerThreshold      = 5
	breakerResetTimeout   = 10 * time.Second
)

// BusGateway dispatches runs over a libbus Messenger. Publishes are retried a
// bounded number of times behind a circuit breaker; retrying transport
// failures is this gateway's job alone, callers only see the final outcome.
type BusGateway struct {
	bus     libbus.Messenger
	breaker *libroutine.Routine
}

var _ Gateway = (*BusGateway)(nil)

func NewBusGateway(bus libbus.Messenger) *BusGateway {
	return &BusGateway{
		bus:     bus,
		breaker: libroutine.NewRoutine(breakerThreshold, breakerResetTimeout),
	}
}

func (g *BusGateway) Dispatch(ctx context.Context, payload *JobPayload) (string, error) {
	if payload == nil {
		return "", apiframework.MissingParameter("payload")
	}
	if payload.ExecutionID == "" {
		return "", apiframework.MissingParameter("executionId")
	}
	if len(payload.Steps) == 0 {
		return "", apiframework.InvalidParameterValue("steps", "a job needs at least one step")
	}
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode job payload: %w", err)
	}

	err = g.breaker.ExecuteWithRetry(ctx, dispatchRetryInterval, dispatchMaxAttempts, func(ctx context.Context) error {
		return g.bus.Publish(ctx, SubjectJobs, data)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s", apiframework.ErrDispatchFailed, err)
	}

	return payload.JobID, nil
}

func (g *BusGateway) CancelDispatch(ctx context.Context, executionID string) error {
	if executionID == "" {
		return apiframework.MissingParameter("executionId")
	}

	data, err := json.Marshal(CancelNotice{ExecutionID: executionID})
	if err != nil {
		return fmt.Errorf("failed to encode cancel notice: %w", err)
	}
	if err := g.bus.Publish(ctx, SubjectCancel, data); err != nil {
		return fmt.Errorf("%w: %s", apiframework.ErrDispatchFailed, err)
	}
	return nil
}
