// Package modelservice manages the model catalogue and the capability
// assignments the capability validator checks runs against.
package modelservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainwork/chainwork/apiframework"
	"github.com/chainwork/chainwork/chaintypes"
	libdb "github.com/chainwork/chainwork/libdbexec"
)

var ErrInvalidModel = errors.New("invalid model data")

type Service interface {
	Append(ctx context.Context, model *chaintypes.Model) error
	Update(ctx context.Context, model *chaintypes.Model) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, createdAtCursor *time.Time, limit int) ([]*chaintypes.Model, error)

	CreateCapability(ctx context.Context, capability *chaintypes.Capability) error
	DeleteCapability(ctx context.Context, name string) error
	ListCapabilities(ctx context.Context) ([]*chaintypes.Capability, error)
	AssignCapability(ctx context.Context, modelID string, capabilityName string) error
	RemoveCapability(ctx context.Context, modelID string, capabilityName string) error
	ListModelCapabilities(ctx context.Context, modelID string) ([]*chaintypes.Capability, error)
}

type service struct {
	dbInstance libdb.DBManager
}

func New(db libdb.DBManager) Service {
	return &service{dbInstance: db}
}

func (s *service) Append(ctx context.Context, model *chaintypes.Model) error {
	if err := validate(model); err != nil {
		return err
	}
	storeInstance := chaintypes.New(s.dbInstance.WithoutTransaction())
	return storeInstance.AppendModel(ctx, model)
}

func (s *service) Update(ctx context.Context, model *chaintypes.Model) error {
	if err := validate(model); err != nil {
		return err
	}
	if model.ID == "" {
		return fmt.Errorf("%w %w: id is required", apiframework.ErrBadRequest, ErrInvalidModel)
	}
	storeInstance := chaintypes.New(s.dbInstance.WithoutTransaction())
	return storeInstance.UpdateModel(ctx, model)
}

func (s *service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apiframework.MissingParameter("id")
	}
	storeInstance := chaintypes.New(s.dbInstance.WithoutTransaction())
	return storeInstance.DeleteModel(ctx, id)
}

func (s *service) List(ctx context.Context, createdAtCursor *time.Time, limit int) ([]*chaintypes.Model, error) {
	storeInstance := chaintypes.New(s.dbInstance.WithoutTransaction())
	return storeInstance.ListModels(ctx, createdAtCursor, limit)
}

func (s *service) CreateCapability(ctx context.Context, capability *chaintypes.Capability) error {
	if capability == nil || capability.Name == "" {
		return fmt.Errorf("%w: capability name is required", apiframework.ErrBadRequest)
	}
	storeInstance := chaintypes.New(s.dbInstance.WithoutTransaction())
	return storeInstance.CreateCapability(ctx, capability)
}

func (s *service) DeleteCapability(ctx context.Context, name string) error {
	if name == "" {
		return apiframework.MissingParameter("name")
	}
	storeInstance := chaintypes.New(s.dbInstance.WithoutTransaction())
	return storeInstance.DeleteCapability(ctx, name)
}

func (s *service) ListCapabilities(ctx context.Context) ([]*chaintypes.Capability, error) {
	storeInstance := chaintypes.New(s.dbInstance.WithoutTransaction())
	return storeInstance.ListCapabilities(ctx)
}

func (s *service) AssignCapability(ctx context.Context, modelID string, capabilityName string) error {
	if modelID == "" {
		return apiframework.MissingParameter("modelId")
	}
	if capabilityName == "" {
		return apiframework.MissingParameter("capability")
	}
	storeInstance := chaintypes.New(s.dbInstance.WithoutTransaction())
	return storeInstance.AssignCapabilityToModel(ctx, modelID, capabilityName)
}

func (s *service) RemoveCapability(ctx context.Context, modelID string, capabilityName string) error {
	if modelID == "" {
		return apiframework.MissingParameter("modelId")
	}
	if capabilityName == "" {
		return apiframework.MissingParameter("capability")
	}
	storeInstance := chaintypes.New(s.dbInstance.WithoutTransaction())
	return storeInstance.RemoveCapabilityFromModel(ctx, modelID, capabilityName)
}

func (s *service) ListModelCapabilities(ctx context.Context, modelID string) ([]*chaintypes.Capability, error) {
	if modelID == "" {
		return nil, apiframework.MissingParameter("modelId")
	}
	storeInstance := chaintypes.New(s.dbInstance.WithoutTransaction())
	return storeInstance.ListCapabilitiesForModel(ctx, modelID)
}

func validate(model *chaintypes.Model) error {
	if model == nil {
		return apiframework.MissingParameter("model")
	}
	if model.Name == "" {
		return fmt.Errorf("%w %w: model name is required", apiframework.ErrBadRequest, ErrInvalidModel)
	}
	return nil
}
