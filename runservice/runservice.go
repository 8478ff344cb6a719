// Package runservice starts, tracks, and cancels chain executions. It is
// the orchestration seam between stored chain definitions, the capability
// catalogue, and the dispatch transport.
package runservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/chainwork/chainwork/apiframework"
	"github.com/chainwork/chainwork/chaindispatch"
	"github.com/chainwork/chainwork/chainengine"
	"github.com/chainwork/chainwork/chaintypes"
	libdb "github.com/chainwork/chainwork/libdbexec"
	"github.com/google/uuid"
)

var ErrInvalidRunRequest = errors.New("invalid run request")

const (
	// maxInputFields caps how many values one run request may carry.
	maxInputFields = 50
	// maxInputValueLength caps the serialized length of any single value.
	maxInputValueLength = 10000
)

var inputKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

type Service interface {
	Start(ctx context.Context, userID string, chainID string, inputs map[string]any) (*chaintypes.Execution, error)
	Get(ctx context.Context, userID string, executionID string) (*chaintypes.Execution, error)
	ListByUser(ctx context.Context, userID string, createdAtCursor *time.Time, limit int) ([]*chaintypes.Execution, error)
	Steps(ctx context.Context, userID string, executionID string) ([]*chaintypes.StepResult, error)
	Cancel(ctx context.Context, userID string, executionID string) error
}

type service struct {
	db      libdb.DBManager
	gateway chaindispatch.Gateway
	machine *chainengine.StateMachine
}

func New(db libdb.DBManager, gateway chaindispatch.Gateway) Service {
	return &service{
		db:      db,
		gateway: gateway,
		machine: chainengine.NewStateMachine(chaintypes.New(db.WithoutTransaction())),
	}
}

// Start snapshots the chain, validates inputs and capabilities, persists the
// execution with its pending step results, and hands the job to the gateway.
// A dispatch failure marks the already-persisted execution failed with the
// transport's reason; the caller still receives the execution record.
func (s *service) Start(ctx context.Context, userID string, chainID string, inputs map[string]any) (*chaintypes.Execution, error) {
	if userID == "" {
		return nil, apiframework.MissingParameter("userId")
	}
	if chainID == "" {
		return nil, apiframework.MissingParameter("chainId")
	}

	storeInstance := chaintypes.New(s.db.WithoutTransaction())
	resolver := chainengine.NewResolver(storeInstance)
	chain, err := resolver.Resolve(ctx, chainID)
	if err != nil {
		return nil, err
	}

	if err := validateInputs(chain, inputs); err != nil {
		return nil, err
	}

	validator := chainengine.NewValidator(storeInstance)
	for _, step := range chain.Steps {
		if err := validator.ValidateCapabilities(ctx, step.Capabilities, step.ModelID); err != nil {
			return nil, fmt.Errorf("step %q: %w", step.Name, err)
		}
	}

	request, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("%w %w: serializing inputs: %w", apiframework.ErrBadRequest, ErrInvalidRunRequest, err)
	}

	execution := &chaintypes.Execution{
		ID:      uuid.NewString(),
		UserID:  userID,
		ChainID: chain.ID,
		Status:  chaintypes.ExecutionPending,
		Request: request,
	}

	stepResults := make([]*chaintypes.StepResult, 0, len(chain.Steps))
	jobSteps := make([]chaindispatch.JobStep, 0, len(chain.Steps))
	for _, step := range chain.Steps {
		resolved := chainengine.ResolveDispatchInputs(step, inputs)
		stepResults = append(stepResults, &chaintypes.StepResult{
			ID:            uuid.NewString(),
			ExecutionID:   execution.ID,
			StepID:        step.ID,
			StepName:      step.Name,
			Position:      step.Position,
			Status:        chaintypes.StepPending,
			Prompt:        resolved.Prompt,
			SystemContext: resolved.SystemContext,
		})
		jobSteps = append(jobSteps, chaindispatch.JobStep{
			StepID:                step.ID,
			StepName:              step.Name,
			Position:              step.Position,
			ResolvedPrompt:        resolved.Prompt,
			ResolvedSystemContext: resolved.SystemContext,
			InputMapping:          step.InputMapping,
			ModelID:               step.ModelID,
			RepositoryIDs:         step.RepositoryIDs,
		})
	}

	tx, commit, release, err := s.db.WithTransaction(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	txStore := chaintypes.New(tx)
	if err := txStore.CreateExecution(ctx, execution); err != nil {
		return nil, err
	}
	if err := txStore.CreateStepResults(ctx, stepResults...); err != nil {
		return nil, err
	}
	if err := commit(ctx); err != nil {
		return nil, err
	}

	payload := &chaindispatch.JobPayload{
		JobID:                 uuid.NewString(),
		ExecutionID:           execution.ID,
		ChainID:               chain.ID,
		UserID:                userID,
		Steps:                 jobSteps,
		RequestedCapabilities: chainengine.CollectCapabilities(chain.Steps),
	}

	jobID, err := s.gateway.Dispatch(ctx, payload)
	if err != nil {
		if ferr := s.machine.FailDispatch(ctx, execution.ID, err.Error()); ferr != nil {
			return nil, errors.Join(err, ferr)
		}
		failed, gerr := storeInstance.GetExecution(ctx, execution.ID)
		if gerr != nil {
			return nil, errors.Join(err, gerr)
		}
		return failed, err
	}

	if _, err := s.machine.MarkDispatched(ctx, execution.ID, jobID); err != nil {
		return nil, err
	}
	return storeInstance.GetExecution(ctx, execution.ID)
}

func (s *service) Get(ctx context.Context, userID string, executionID string) (*chaintypes.Execution, error) {
	return s.authorizedExecution(ctx, userID, executionID)
}

func (s *service) ListByUser(ctx context.Context, userID string, createdAtCursor *time.Time, limit int) ([]*chaintypes.Execution, error) {
	if userID == "" {
		return nil, apiframework.MissingParameter("userId")
	}
	storeInstance := chaintypes.New(s.db.WithoutTransaction())
	return storeInstance.ListExecutionsByUser(ctx, userID, createdAtCursor, limit)
}

func (s *service) Steps(ctx context.Context, userID string, executionID string) ([]*chaintypes.StepResult, error) {
	if _, err := s.authorizedExecution(ctx, userID, executionID); err != nil {
		return nil, err
	}
	storeInstance := chaintypes.New(s.db.WithoutTransaction())
	return storeInstance.ListStepResults(ctx, executionID)
}

// Cancel transitions a non-terminal execution to cancelled and notifies the
// worker pool. Cancelling an already-cancelled execution is a no-op; any
// other terminal state is a conflict.
func (s *service) Cancel(ctx context.Context, userID string, executionID string) error {
	execution, err := s.authorizedExecution(ctx, userID, executionID)
	if err != nil {
		return err
	}

	applied, err := s.machine.Cancel(ctx, executionID, "cancelled by user")
	if err != nil {
		return err
	}
	if !applied {
		if execution.Status == chaintypes.ExecutionCancelled {
			return nil
		}
		return apiframework.Conflict(fmt.Sprintf("execution is already %s", execution.Status))
	}

	// Best effort: the execution is terminal either way, a worker that
	// misses the notice posts signals the state machine discards.
	_ = s.gateway.CancelDispatch(ctx, executionID)
	return nil
}

func (s *service) authorizedExecution(ctx context.Context, userID string, executionID string) (*chaintypes.Execution, error) {
	if userID == "" {
		return nil, apiframework.MissingParameter("userId")
	}
	if executionID == "" {
		return nil, apiframework.MissingParameter("executionId")
	}
	storeInstance := chaintypes.New(s.db.WithoutTransaction())
	execution, err := storeInstance.GetExecution(ctx, executionID)
	if err != nil {
		if errors.Is(err, libdb.ErrNotFound) {
			return nil, fmt.Errorf("execution %q: %w", executionID, apiframework.ErrNotFound)
		}
		return nil, err
	}
	if execution.UserID != userID {
		return nil, apiframework.Forbidden("execution belongs to another user")
	}
	return execution, nil
}

func validateInputs(chain *chaintypes.ChainDefinition, inputs map[string]any) error {
	if len(inputs) > maxInputFields {
		return fmt.Errorf("%w %w: at most %d input fields are allowed", apiframework.ErrBadRequest, ErrInvalidRunRequest, maxInputFields)
	}

	declared := make(map[string]chaintypes.InputFieldDefinition, len(chain.InputFields))
	for _, field := range chain.InputFields {
		declared[field.Name] = field
	}

	for key, value := range inputs {
		if !inputKeyPattern.MatchString(key) {
			return fmt.Errorf("%w %w: input key %q is malformed", apiframework.ErrBadRequest, ErrInvalidRunRequest, key)
		}
		field, ok := declared[key]
		if !ok {
			return fmt.Errorf("%w %w: input field %q is not declared by the chain", apiframework.ErrBadRequest, ErrInvalidRunRequest, key)
		}
		serialized, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("%w %w: input field %q is not serializable", apiframework.ErrBadRequest, ErrInvalidRunRequest, key)
		}
		if len(serialized) > maxInputValueLength {
			return fmt.Errorf("%w %w: input field %q exceeds %d serialized characters", apiframework.ErrBadRequest, ErrInvalidRunRequest, key, maxInputValueLength)
		}
		if err := checkFieldType(field, value); err != nil {
			return err
		}
	}

	for _, field := range chain.InputFields {
		if _, ok := inputs[field.Name]; !ok {
			return fmt.Errorf("%w %w: declared input field %q is missing", apiframework.ErrBadRequest, ErrInvalidRunRequest, field.Name)
		}
	}
	return nil
}

func checkFieldType(field chaintypes.InputFieldDefinition, value any) error {
	mismatch := func() error {
		return fmt.Errorf("%w %w: input field %q is not of declared type %q", apiframework.ErrBadRequest, ErrInvalidRunRequest, field.Name, field.Type)
	}

	switch field.Type {
	case chaintypes.FieldTypeString:
		text, ok := value.(string)
		if !ok {
			return mismatch()
		}
		if len(field.Options) > 0 {
			for _, option := range field.Options {
				if text == option {
					return nil
				}
			}
			return fmt.Errorf("%w %w: input field %q must be one of %v", apiframework.ErrBadRequest, ErrInvalidRunRequest, field.Name, field.Options)
		}
	case chaintypes.FieldTypeNumber:
		switch value.(type) {
		case float64, float32, int, int32, int64, json.Number:
		default:
			return mismatch()
		}
	case chaintypes.FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return mismatch()
		}
	case chaintypes.FieldTypeList:
		if _, ok := value.([]any); !ok {
			return mismatch()
		}
	case chaintypes.FieldTypeObject:
		if _, ok := value.(map[string]any); !ok {
			return mismatch()
		}
	}
	return nil
}
