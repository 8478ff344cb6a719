package chaintypes_test

import (
	"testing"
	"time"

	"github.com/chainwork/chainwork/chaintypes"
	libdb "github.com/chainwork/chainwork/libdbexec"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestUnit_Models_AppendAndGetAllModels(t *testing.T) {
	ctx, s := chaintypes.SetupStore(t)
	limit := 100

	models, err := s.ListModels(ctx, nil, limit)
	require.NoError(t, err)
	require.Empty(t, models)

	model := &chaintypes.Model{
		ID:     uuid.New().String(),
		Name:   "mistral:instruct",
		Active: true,
	}
	err = s.AppendModel(ctx, model)
	require.NoError(t, err)
	require.NotEmpty(t, model.CreatedAt)
	require.NotEmpty(t, model.UpdatedAt)

	models, err = s.ListModels(ctx, nil, limit)
	require.NoError(t, err)
	require.Len(t, models, 1)
	require.Equal(t, "mistral:instruct", models[0].Name)
	require.True(t, models[0].Active)
	require.WithinDuration(t, model.CreatedAt, models[0].CreatedAt, time.Second)
	require.WithinDuration(t, model.UpdatedAt, models[0].UpdatedAt, time.Second)
}

func TestUnit_Models_GetByIDAndName(t *testing.T) {
	ctx, s := chaintypes.SetupStore(t)

	model := &chaintypes.Model{
		ID:     uuid.New().String(),
		Name:   "llama3:8b",
		Active: true,
	}
	require.NoError(t, s.AppendModel(ctx, model))

	byID, err := s.GetModel(ctx, model.ID)
	require.NoError(t, err)
	require.Equal(t, model.Name, byID.Name)

	byName, err := s.GetModelByName(ctx, "llama3:8b")
	require.NoError(t, err)
	require.Equal(t, model.ID, byName.ID)

	_, err = s.GetModel(ctx, uuid.New().String())
	require.ErrorIs(t, err, libdb.ErrNotFound)

	_, err = s.GetModelByName(ctx, "no-such-model")
	require.ErrorIs(t, err, libdb.ErrNotFound)
}

func TestUnit_Models_UpdateModel(t *testing.T) {
	ctx, s := chaintypes.SetupStore(t)

	model := &chaintypes.Model{
		ID:     uuid.New().String(),
		Name:   "old-name",
		Active: true,
	}
	require.NoError(t, s.AppendModel(ctx, model))

	model.Name = "new-name"
	model.Active = false
	require.NoError(t, s.UpdateModel(ctx, model))

	got, err := s.GetModel(ctx, model.ID)
	require.NoError(t, err)
	require.Equal(t, "new-name", got.Name)
	require.False(t, got.Active)

	missing := &chaintypes.Model{ID: uuid.New().String(), Name: "ghost"}
	err = s.UpdateModel(ctx, missing)
	require.ErrorIs(t, err, libdb.ErrNotFound)
}

func TestUnit_Models_DeleteModel(t *testing.T) {
	ctx, s := chaintypes.SetupStore(t)

	model := &chaintypes.Model{
		ID:     uuid.New().String(),
		Name:   "short-lived",
		Active: true,
	}
	require.NoError(t, s.AppendModel(ctx, model))
	require.NoError(t, s.DeleteModel(ctx, model.ID))

	_, err := s.GetModel(ctx, model.ID)
	require.ErrorIs(t, err, libdb.ErrNotFound)

	err = s.DeleteModel(ctx, model.ID)
	require.ErrorIs(t, err, libdb.ErrNotFound)
}

func TestUnit_Models_UniqueNameViolation(t *testing.T) {
	ctx, s := chaintypes.SetupStore(t)

	first := &chaintypes.Model{ID: uuid.New().String(), Name: "dup", Active: true}
	require.NoError(t, s.AppendModel(ctx, first))

	second := &chaintypes.Model{ID: uuid.New().String(), Name: "dup", Active: true}
	err := s.AppendModel(ctx, second)
	require.ErrorIs(t, err, libdb.ErrUniqueViolation)
}

func TestUnit_Models_EstimateCount(t *testing.T) {
	ctx, s := chaintypes.SetupStore(t)

	count, err := s.EstimateModelCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)

	require.NoError(t, s.AppendModel(ctx, &chaintypes.Model{
		ID:   uuid.New().String(),
		Name: "counted",
	}))

	count, err = s.EstimateModelCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestUnit_Capabilities_CreateListDelete(t *testing.T) {
	ctx, s := chaintypes.SetupStore(t)

	caps, err := s.ListCapabilities(ctx)
	require.NoError(t, err)
	require.Empty(t, caps)

	require.NoError(t, s.CreateCapability(ctx, &chaintypes.Capability{
		Name:        "web_search",
		Description: "model can issue web queries",
	}))
	require.NoError(t, s.CreateCapability(ctx, &chaintypes.Capability{
		Name: "code_exec",
	}))

	caps, err = s.ListCapabilities(ctx)
	require.NoError(t, err)
	require.Len(t, caps, 2)

	require.NoError(t, s.DeleteCapability(ctx, "code_exec"))
	caps, err = s.ListCapabilities(ctx)
	require.NoError(t, err)
	require.Len(t, caps, 1)
	require.Equal(t, "web_search", caps[0].Name)

	err = s.DeleteCapability(ctx, "code_exec")
	require.ErrorIs(t, err, libdb.ErrNotFound)
}

func TestUnit_Capabilities_AssignmentRoundTrip(t *testing.T) {
	ctx, s := chaintypes.SetupStore(t)

	model := &chaintypes.Model{ID: uuid.New().String(), Name: "capable", Active: true}
	require.NoError(t, s.AppendModel(ctx, model))
	require.NoError(t, s.CreateCapability(ctx, &chaintypes.Capability{Name: "web_search"}))
	require.NoError(t, s.CreateCapability(ctx, &chaintypes.Capability{Name: "vision"}))

	require.NoError(t, s.AssignCapabilityToModel(ctx, model.ID, "web_search"))
	require.NoError(t, s.AssignCapabilityToModel(ctx, model.ID, "vision"))

	caps, err := s.ListCapabilitiesForModel(ctx, model.ID)
	require.NoError(t, err)
	require.Len(t, caps, 2)

	models, err := s.ListModelsForCapability(ctx, "web_search")
	require.NoError(t, err)
	require.Len(t, models, 1)
	require.Equal(t, model.ID, models[0].ID)

	require.NoError(t, s.RemoveCapabilityFromModel(ctx, model.ID, "vision"))
	caps, err = s.ListCapabilitiesForModel(ctx, model.ID)
	require.NoError(t, err)
	require.Len(t, caps, 1)
	require.Equal(t, "web_search", caps[0].Name)
}

func TestUnit_Capabilities_AssignUnknownFails(t *testing.T) {
	ctx, s := chaintypes.SetupStore(t)

	model := &chaintypes.Model{ID: uuid.New().String(), Name: "lonely", Active: true}
	require.NoError(t, s.AppendModel(ctx, model))

	err := s.AssignCapabilityToModel(ctx, model.ID, "does-not-exist")
	require.ErrorIs(t, err, libdb.ErrForeignKeyViolation)
}
