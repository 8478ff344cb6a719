// Package chaindispatch is the boundary between the execution core and the
// asynchronous workers. The gateway serializes resolved runs onto the message
// bus; the listener feeds worker signals back into the state machine.
package chaindispatch

import (
	"context"
)

// Subjects shared between the orchestrator and the workers.
const (
	SubjectJobs    = "chains.jobs"
	SubjectCancel  = "chains.cancel"
	SubjectResults = "chains.results"
)

// JobStep is one fully resolved step handed to a worker. User-supplied
// sources are already substituted into the prompt; prior-step sources ride
// along as literal ${key} placeholders plus the InputMapping that binds each
// placeholder to its source step, so the worker can realize them once the
// referenced outputs exist.
type JobStep struct {
	StepID                string            `json:"stepId"`
	StepName              string            `json:"stepName"`
	Position              int               `json:"position"`
	ResolvedPrompt        string            `json:"resolvedPrompt"`
	ResolvedSystemContext string            `json:"resolvedSystemContext,omitempty"`
	InputMapping          map[string]string `json:"inputMapping,omitempty"`
	ModelID               string            `json:"modelId"`
	RepositoryIDs         []int64           `json:"repositoryIds,omitempty"`
}

// JobPayload is the wire format for one dispatched run.
type JobPayload struct {
	JobID                 string    `json:"jobId"`
	ExecutionID           string    `json:"executionId"`
	ChainID               string    `json:"chainId"`
	UserID                string    `json:"userId"`
	Steps                 []JobStep `json:"steps"`
	RequestedCapabilities []string  `json:"requestedCapabilities,omitempty"`
}

// CancelNotice asks workers to stop further work on an execution.
type CancelNotice struct {
	ExecutionID string `json:"executionId"`
}

// Gateway hands resolved runs to the worker fleet. Dispatch returns the job
// id assigned to the enqueued run. CancelDispatch is best-effort: a step
// already mid-flight may still complete and its late signal is discarded by
// the state machine.
type Gateway interface {
	Dispatch(ctx context.Context, payload *JobPayload) (string, error)
	CancelDispatch(ctx context.Context, executionID string) error
}
