// Package chainengine is the core of the chain execution engine: it resolves
// chain definitions into run-ready snapshots, validates capability requests
// against the model catalogue, substitutes variables into step templates, and
// aggregates asynchronous step outcomes into a single execution status.
package chainengine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/chainwork/chainwork/apiframework"
	"github.com/chainwork/chainwork/chaintypes"
	libdb "github.com/chainwork/chainwork/libdbexec"
)

// Resolver loads chain definitions from the persistence layer and normalizes
// them for execution.
type Resolver struct {
	store chaintypes.Store
}

func NewResolver(store chaintypes.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve loads the chain and returns a snapshot with steps and input fields
// ordered ascending by position. Position ties are broken by identity so the
// execution order never depends on storage order.
func (r *Resolver) Resolve(ctx context.Context, chainID string) (*chaintypes.ChainDefinition, error) {
	if chainID == "" {
		return nil, apiframework.MissingParameter("chainId")
	}

	var chain chaintypes.ChainDefinition
	err := r.store.GetKV(ctx, chaintypes.ChainKeyPrefix+chainID, &chain)
	if errors.Is(err, libdb.ErrNotFound) {
		return nil, fmt.Errorf("chain %q: %w", chainID, apiframework.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chain %q: %w", chainID, err)
	}

	sort.SliceStable(chain.Steps, func(i, j int) bool {
		if chain.Steps[i].Position != chain.Steps[j].Position {
			return chain.Steps[i].Position < chain.Steps[j].Position
		}
		return chain.Steps[i].ID < chain.Steps[j].ID
	})
	sort.SliceStable(chain.InputFields, func(i, j int) bool {
		if chain.InputFields[i].Position != chain.InputFields[j].Position {
			return chain.InputFields[i].Position < chain.InputFields[j].Position
		}
		return chain.InputFields[i].Name < chain.InputFields[j].Name
	})

	return &chain, nil
}

// CollectCapabilities computes the distinct, execution-ordered union of
// capability names requested across steps. First occurrence wins; blank and
// whitespace-only names are discarded. Pure function over the step list.
func CollectCapabilities(steps []chaintypes.StepDefinition) []string {
	seen := make(map[string]struct{})
	var ordered []string
	for _, step := range steps {
		for _, name := range step.Capabilities {
			if strings.TrimSpace(name) == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			ordered = append(ordered, name)
		}
	}
	return ordered
}
