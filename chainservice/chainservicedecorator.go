package chainservice

import (
	"context"
	"fmt"
	"time"

	"github.com/chainwork/chainwork/chaintypes"
	"github.com/chainwork/chainwork/libtracker"
)

type activityTrackerDecorator struct {
	service Service
	tracker libtracker.ActivityTracker
}

func (d *activityTrackerDecorator) Create(ctx context.Context, chain *chaintypes.ChainDefinition) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"create",
		"chain",
		"id", chain.ID,
	)
	defer endFn()

	err := d.service.Create(ctx, chain)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(chain.ID, map[string]interface{}{
			"id":        chain.ID,
			"name":      chain.Name,
			"stepCount": len(chain.Steps),
		})
	}

	return err
}

func (d *activityTrackerDecorator) Get(ctx context.Context, id string) (*chaintypes.ChainDefinition, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"get",
		"chain",
		"id", id,
	)
	defer endFn()

	chain, err := d.service.Get(ctx, id)
	if err != nil {
		reportErrFn(err)
	}

	return chain, err
}

func (d *activityTrackerDecorator) Update(ctx context.Context, chain *chaintypes.ChainDefinition) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"update",
		"chain",
		"id", chain.ID,
	)
	defer endFn()

	err := d.service.Update(ctx, chain)
	if err != nil {
		reportErrFn(err)
	} else {
		// Only report metadata, prompt templates may carry sensitive material.
		reportChangeFn(chain.ID, map[string]interface{}{
			"name":       chain.Name,
			"stepCount":  len(chain.Steps),
			"fieldCount": len(chain.InputFields),
		})
	}

	return err
}

func (d *activityTrackerDecorator) Delete(ctx context.Context, id string) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"delete",
		"chain",
		"id", id,
	)
	defer endFn()

	err := d.service.Delete(ctx, id)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(id, nil)
	}

	return err
}

func (d *activityTrackerDecorator) List(ctx context.Context, cursor *time.Time, limit int) ([]*chaintypes.ChainDefinition, error) {
	cursorStr := "nil"
	if cursor != nil {
		cursorStr = cursor.Format(time.RFC3339)
	}

	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"list",
		"chains",
		"cursor", cursorStr,
		"limit", fmt.Sprintf("%d", limit),
	)
	defer endFn()

	chains, err := d.service.List(ctx, cursor, limit)
	if err != nil {
		reportErrFn(err)
	}

	return chains, err
}

// WithActivityTracker wraps a chain service with activity tracking.
func WithActivityTracker(service Service, tracker libtracker.ActivityTracker) Service {
	return &activityTrackerDecorator{
		service: service,
		tracker: tracker,
	}
}
