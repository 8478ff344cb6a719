package modelservice

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

func (d *activityTrackerDecorator) Append(ctx context.Context, model *chaintypes.Model) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"create",
		"model",
		"name", model.Name,
	)
	defer endFn()

	err := d.service.Append(ctx, model)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(model.ID, map[string]interface{}{
			"name":   model.Name,
			"active": model.Active,
		})
	}

	return err
}

func (d *activityTrackerDecorator) Update(ctx context.Context, model *chaintypes.Model) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"update",
		"model",
		"id", model.ID,
	)
	defer endFn()

	err := d.service.Update(ctx, model)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(model.ID, map[string]interface{}{
			"name":   model.Name,
			"active": model.Active,
		})
	}

	return err
}

func (d *activityTrackerDecorator) Delete(ctx context.Context, id string) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"delete",
		"model",
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

func (d *activityTrackerDecorator) List(ctx context.Context, createdAtCursor *time.Time, limit int) ([]*chaintypes.Model, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"list",
		"models",
		"cursor", fmt.Sprintf("%v", createdAtCursor),
		"limit", fmt.Sprintf("%d", limit),
	)
	defer endFn()

	models, err := d.service.List(ctx, createdAtCursor, limit)
	if err != nil {
		reportErrFn(err)
	}

	return models, err
}

func (d *activityTrackerDecorator) CreateCapability(ctx context.Context, capability *chaintypes.Capability) error {
	name := ""
	if capability != nil {
		name = capability.Name
	}
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"create",
		"capability",
		"name", name,
	)
	defer endFn()

	err := d.service.CreateCapability(ctx, capability)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(name, nil)
	}

	return err
}

func (d *activityTrackerDecorator) DeleteCapability(ctx context.Context, name string) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"delete",
		"capability",
		"name", name,
	)
	defer endFn()

	err := d.service.DeleteCapability(ctx, name)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(name, nil)
	}

	return err
}

func (d *activityTrackerDecorator) ListCapabilities(ctx context.Context) ([]*chaintypes.Capability, error) {
	reportErrFn, _, endFn := d.tracker.Start(ctx, "list", "capabilities")
	defer endFn()

	capabilities, err := d.service.ListCapabilities(ctx)
	if err != nil {
		reportErrFn(err)
	}

	return capabilities, err
}

func (d *activityTrackerDecorator) AssignCapability(ctx context.Context, modelID string, capabilityName string) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"assign",
		"model_capability",
		"model_id", modelID,
		"capability", capabilityName,
	)
	defer endFn()

	err := d.service.AssignCapability(ctx, modelID, capabilityName)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(modelID, capabilityName)
	}

	return err
}

func (d *activityTrackerDecorator) RemoveCapability(ctx context.Context, modelID string, capabilityName string) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"remove",
		"model_capability",
		"model_id", modelID,
		"capability", capabilityName,
	)
	defer endFn()

	err := d.service.RemoveCapability(ctx, modelID, capabilityName)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(modelID, capabilityName)
	}

	return err
}

func (d *activityTrackerDecorator) ListModelCapabilities(ctx context.Context, modelID string) ([]*chaintypes.Capability, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"list",
		"model_capabilities",
		"model_id", modelID,
	)
	defer endFn()

	capabilities, err := d.service.ListModelCapabilities(ctx, modelID)
	if err != nil {
		reportErrFn(err)
	}

	return capabilities, err
}

// WithActivityTracker wraps a model service with activity tracking.
func WithActivityTracker(service Service, tracker libtracker.ActivityTracker) Service {
	return &activityTrackerDecorator{
		service: service,
		tracker: tracker,
	}
}
