// Package chainservice manages chain definitions: the authoring-side CRUD
// surface over the kv table, with structural validation so only runnable
// chains reach the execution engine.
package chainservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/chainwork/chainwork/apiframework"
	"github.com/chainwork/chainwork/chaintypes"
	libdb "github.com/chainwork/chainwork/libdbexec"
)

var ErrInvalidChainDefinition = errors.New("invalid chain definition")

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type Service interface {
	Create(ctx context.Context, chain *chaintypes.ChainDefinition) error
	Get(ctx context.Context, id string) (*chaintypes.ChainDefinition, error)
	Update(ctx context.Context, chain *chaintypes.ChainDefinition) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, cursor *time.Time, limit int) ([]*chaintypes.ChainDefinition, error)
}

type service struct {
	db libdb.DBManager
}

func New(db libdb.DBManager) Service {
	return &service{db: db}
}

func (s *service) Create(ctx context.Context, chain *chaintypes.ChainDefinition) error {
	if err := validate(chain); err != nil {
		return err
	}

	now := time.Now().UTC()
	chain.CreatedAt = now
	chain.UpdatedAt = now

	value, err := json.Marshal(chain)
	if err != nil {
		return fmt.Errorf("failed to serialize chain: %w", err)
	}
	storeInstance := chaintypes.New(s.db.WithoutTransaction())
	return storeInstance.SetKV(ctx, chaintypes.ChainKeyPrefix+chain.ID, value)
}

func (s *service) Get(ctx context.Context, id string) (*chaintypes.ChainDefinition, error) {
	if id == "" {
		return nil, apiframework.MissingParameter("id")
	}

	var chain chaintypes.ChainDefinition
	storeInstance := chaintypes.New(s.db.WithoutTransaction())
	err := storeInstance.GetKV(ctx, chaintypes.ChainKeyPrefix+id, &chain)
	if errors.Is(err, libdb.ErrNotFound) {
		return nil, fmt.Errorf("chain %q: %w", id, apiframework.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chain: %w", err)
	}

	return &chain, nil
}

func (s *service) Update(ctx context.Context, chain *chaintypes.ChainDefinition) error {
	if err := validate(chain); err != nil {
		return err
	}

	existing, err := s.Get(ctx, chain.ID)
	if err != nil {
		return err
	}
	chain.CreatedAt = existing.CreatedAt
	chain.UpdatedAt = time.Now().UTC()

	value, err := json.Marshal(chain)
	if err != nil {
		return fmt.Errorf("failed to serialize chain: %w", err)
	}
	storeInstance := chaintypes.New(s.db.WithoutTransaction())
	return storeInstance.UpdateKV(ctx, chaintypes.ChainKeyPrefix+chain.ID, value)
}

func (s *service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apiframework.MissingParameter("id")
	}

	storeInstance := chaintypes.New(s.db.WithoutTransaction())
	err := storeInstance.DeleteKV(ctx, chaintypes.ChainKeyPrefix+id)
	if errors.Is(err, libdb.ErrNotFound) {
		return fmt.Errorf("chain %q: %w", id, apiframework.ErrNotFound)
	}
	return err
}

func (s *service) List(ctx context.Context, cursor *time.Time, limit int) ([]*chaintypes.ChainDefinition, error) {
	storeInstance := chaintypes.New(s.db.WithoutTransaction())
	kvs, err := storeInstance.ListKVPrefix(ctx, chaintypes.ChainKeyPrefix, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chains: %w", err)
	}

	chains := make([]*chaintypes.ChainDefinition, 0, len(kvs))
	for _, kv := range kvs {
		var chain chaintypes.ChainDefinition
		if err := json.Unmarshal(kv.Value, &chain); err != nil {
			// Skip entries that no longer parse instead of failing the listing.
			continue
		}
		chains = append(chains, &chain)
	}

	return chains, nil
}

func validate(chain *chaintypes.ChainDefinition) error {
	if chain == nil {
		return apiframework.MissingParameter("chain")
	}
	if chain.ID == "" {
		return fmt.Errorf("%w %w: id is required", apiframework.ErrBadRequest, ErrInvalidChainDefinition)
	}
	if chain.Name == "" {
		return fmt.Errorf("%w %w: name is required", apiframework.ErrBadRequest, ErrInvalidChainDefinition)
	}
	if len(chain.Steps) == 0 {
		return fmt.Errorf("%w %w: a chain needs at least one step", apiframework.ErrBadRequest, ErrInvalidChainDefinition)
	}

	positions := make(map[int]struct{}, len(chain.Steps))
	stepIDs := make(map[string]struct{}, len(chain.Steps))
	for _, step := range chain.Steps {
		if step.ID == "" {
			return fmt.Errorf("%w %w: every step needs an id", apiframework.ErrBadRequest, ErrInvalidChainDefinition)
		}
		if step.ModelID == "" {
			return fmt.Errorf("%w %w: step %q has no model", apiframework.ErrBadRequest, ErrInvalidChainDefinition, step.Name)
		}
		if _, ok := positions[step.Position]; ok {
			return fmt.Errorf("%w %w: duplicate step position %d", apiframework.ErrBadRequest, ErrInvalidChainDefinition, step.Position)
		}
		positions[step.Position] = struct{}{}
		if _, ok := stepIDs[step.ID]; ok {
			return fmt.Errorf("%w %w: duplicate step id %q", apiframework.ErrBadRequest, ErrInvalidChainDefinition, step.ID)
		}
		stepIDs[step.ID] = struct{}{}
	}

	fieldNames := make(map[string]struct{}, len(chain.InputFields))
	for _, field := range chain.InputFields {
		if !fieldNamePattern.MatchString(field.Name) {
			return fmt.Errorf("%w %w: invalid input field name %q", apiframework.ErrBadRequest, ErrInvalidChainDefinition, field.Name)
		}
		if _, ok := fieldNames[field.Name]; ok {
			return fmt.Errorf("%w %w: duplicate input field %q", apiframework.ErrBadRequest, ErrInvalidChainDefinition, field.Name)
		}
		fieldNames[field.Name] = struct{}{}
	}

	return nil
}
