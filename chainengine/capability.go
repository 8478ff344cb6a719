package chainengine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/chainwork/chainwork/apiframework"
	"github.com/chainwork/chainwork/chaintypes"
	libdb "github.com/chainwork/chainwork/libdbexec"
)

// CapabilityReason states why capability names were rejected.
type CapabilityReason string

const (
	ReasonModelUnavailable   CapabilityReason = "model unavailable"
	ReasonUnknownCapability  CapabilityReason = "unknown capability"
	ReasonUnsupportedByModel CapabilityReason = "unsupported by model"
)

// CapabilityError carries the rejected names and the reason as structured
// data so callers branch on fields, never on message text.
type CapabilityError struct {
	ModelID  string
	Reason   CapabilityReason
	Rejected []string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability validation failed for model %s: %s: %s",
		e.ModelID, e.Reason, strings.Join(e.Rejected, ", "))
}

func (e *CapabilityError) Unwrap() error {
	return apiframework.ErrUnprocessableEntity
}

// Validator checks requested tool capabilities against the model catalogue.
type Validator struct {
	store chaintypes.Store
}

func NewValidator(store chaintypes.Store) *Validator {
	return &Validator{store: store}
}

// ValidateCapabilities runs the two-phase capability check. Blank names are
// discarded up front, the same way CollectCapabilities drops them from the
// dispatch payload, so they can never fail a run they would not ride on. An
// empty request is always valid. A missing or inactive model rejects the
// entire request. Names absent from the global catalogue are rejected as
// unknown; names known globally but not granted to the model are rejected as
// unsupported. The two phases stay separate so callers get distinct,
// actionable messages.
func (v *Validator) ValidateCapabilities(ctx context.Context, requested []string, modelID string) error {
	requested = slices.DeleteFunc(slices.Clone(requested), func(name string) bool {
		return strings.TrimSpace(name) == ""
	})
	if len(requested) == 0 {
		return nil
	}

	model, err := v.store.GetModel(ctx, modelID)
	if errors.Is(err, libdb.ErrNotFound) {
		return &CapabilityError{ModelID: modelID, Reason: ReasonModelUnavailable, Rejected: slices.Clone(requested)}
	}
	if err != nil {
		return fmt.Errorf("failed to look up model %q: %w", modelID, err)
	}
	if !model.Active {
		return &CapabilityError{ModelID: modelID, Reason: ReasonModelUnavailable, Rejected: slices.Clone(requested)}
	}

	catalogue, err := v.store.ListCapabilities(ctx)
	if err != nil {
		return fmt.Errorf("failed to list capability catalogue: %w", err)
	}
	known := make(map[string]struct{}, len(catalogue))
	for _, capability := range catalogue {
		known[capability.Name] = struct{}{}
	}

	var unknown []string
	for _, name := range requested {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return &CapabilityError{ModelID: modelID, Reason: ReasonUnknownCapability, Rejected: unknown}
	}

	granted, err := v.store.ListCapabilitiesForModel(ctx, modelID)
	if err != nil {
		return fmt.Errorf("failed to list capabilities for model %q: %w", modelID, err)
	}
	available := make(map[string]struct{}, len(granted))
	for _, capability := range granted {
		available[capability.Name] = struct{}{}
	}

	var unsupported []string
	for _, name := range requested {
		if _, ok := available[name]; !ok {
			unsupported = append(unsupported, name)
		}
	}
	if len(unsupported) > 0 {
		return &CapabilityError{ModelID: modelID, Reason: ReasonUnsupportedByModel, Rejected: unsupported}
	}

	return nil
}
