package chaintypes

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the lifecycle state of one chain run.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// StepStatus is the lifecycle state of one step within a run.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepCancelled StepStatus = "cancelled"
)

func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepCancelled
}

// FieldType is the declared type of a chain input field.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeList    FieldType = "list"
	FieldTypeObject  FieldType = "object"
)

// InputFieldDefinition declares one user-supplied value a chain expects.
type InputFieldDefinition struct {
	Name     string    `json:"name" example:"topic"`
	Type     FieldType `json:"type" example:"string"`
	Options  []string  `json:"options,omitempty" example:"[\"short\",\"long\"]"`
	Position int       `json:"position" example:"0"`
}

// StepDefinition is one prompt step within a chain. InputMapping maps
// placeholder names to either "input.<fieldName>" or a prior step's name.
type StepDefinition struct {
	ID             string            `json:"id" example:"s1a2b3c4-d5e6-f7a8-b9c0-d1e2f3a4b5c6"`
	Name           string            `json:"name" example:"summarize"`
	PromptTemplate string            `json:"promptTemplate" example:"Summarize the following text: ${text}"`
	SystemTemplate string            `json:"systemTemplate,omitempty" example:"You are a concise technical writer."`
	ModelID        string            `json:"modelId" example:"m7d8e9f0-a1b2-c3d4-e5f6-a7b8c9d0e1f2"`
	Position       int               `json:"position" example:"0"`
	InputMapping   map[string]string `json:"inputMapping,omitempty" example:"text:input.topic"`
	RepositoryIDs  []int64           `json:"repositoryIds,omitempty" example:"[12,47]"`
	Capabilities   []string          `json:"capabilities,omitempty" example:"[\"web_search\"]"`
}

// ChainKeyPrefix namespaces chain definitions inside the kv table.
const ChainKeyPrefix = "chain:"

// ChainDefinition is an ordered collection of prompt steps that together
// define one assistant tool. Stored as a JSON blob in the kv table; a run
// always operates on the snapshot loaded at dispatch time.
type ChainDefinition struct {
	ID          string                 `json:"id" example:"c7d9e1a3-8f0c-4a7d-9b1e-2f3a4b5c6d7e"`
	Name        string                 `json:"name" example:"blog-writer"`
	Description string                 `json:"description,omitempty" example:"Drafts a blog post from a topic"`
	Steps       []StepDefinition       `json:"steps"`
	InputFields []InputFieldDefinition `json:"inputFields,omitempty"`

	CreatedAt time.Time `json:"createdAt" example:"2023-11-15T14:30:45Z"`
	UpdatedAt time.Time `json:"updatedAt" example:"2023-11-15T14:30:45Z"`
}

// Model is an entry in the model catalogue steps bind to.
type Model struct {
	ID     string `json:"id" example:"m7d8e9f0-a1b2-c3d4-e5f6-a7b8c9d0e1f2"`
	Name   string `json:"name" example:"mistral:instruct"`
	Active bool   `json:"active" example:"true"`

	CreatedAt time.Time `json:"createdAt" example:"2023-11-15T14:30:45Z"`
	UpdatedAt time.Time `json:"updatedAt" example:"2023-11-15T14:30:45Z"`
}

// Capability is a named optional behavior a model may support.
type Capability struct {
	Name        string    `json:"name" example:"web_search"`
	Description string    `json:"description,omitempty" example:"Lets the model issue web queries"`
	CreatedAt   time.Time `json:"createdAt" example:"2023-11-15T14:30:45Z"`
}

// Execution is one run of a chain with concrete user inputs.
type Execution struct {
	ID      string          `json:"id" example:"e1a2b3c4-d5e6-f7a8-b9c0-d1e2f3a4b5c6"`
	UserID  string          `json:"userId" example:"u9a8b7c6-d5e4-f3a2-b1c0-d9e8f7a6b5c4"`
	ChainID string          `json:"chainId" example:"c7d9e1a3-8f0c-4a7d-9b1e-2f3a4b5c6d7e"`
	Status  ExecutionStatus `json:"status" example:"running"`
	Request json.RawMessage `json:"request" example:"{\"topic\":\"observability\"}"`
	JobID   string          `json:"jobId,omitempty" example:"j1a2b3c4-d5e6-f7a8-b9c0-d1e2f3a4b5c6"`
	// Reason is the human-readable explanation recorded once terminal.
	Reason string `json:"reason,omitempty" example:"step summarize failed: model timeout"`

	CreatedAt   time.Time  `json:"createdAt" example:"2023-11-15T14:30:45Z"`
	StartedAt   *time.Time `json:"startedAt,omitempty" example:"2023-11-15T14:30:46Z"`
	CompletedAt *time.Time `json:"completedAt,omitempty" example:"2023-11-15T14:31:12Z"`
}

// StepResult is the per-step outcome record belonging to one Execution.
type StepResult struct {
	ID          string     `json:"id" example:"r1a2b3c4-d5e6-f7a8-b9c0-d1e2f3a4b5c6"`
	ExecutionID string     `json:"executionId" example:"e1a2b3c4-d5e6-f7a8-b9c0-d1e2f3a4b5c6"`
	StepID      string     `json:"stepId" example:"s1a2b3c4-d5e6-f7a8-b9c0-d1e2f3a4b5c6"`
	StepName    string     `json:"stepName" example:"summarize"`
	Position    int        `json:"position" example:"0"`
	Status      StepStatus `json:"status" example:"completed"`
	// Prompt and SystemContext hold the resolved input context handed to the worker.
	Prompt        string  `json:"prompt" example:"Summarize the following text: observability"`
	SystemContext string  `json:"systemContext,omitempty" example:"You are a concise technical writer."`
	Output        *string `json:"output,omitempty" example:"Observability is..."`
	ErrorMessage  *string `json:"errorMessage,omitempty" example:"model timeout"`
	ElapsedMs     int64   `json:"elapsedMs,omitempty" example:"1742"`

	CreatedAt   time.Time  `json:"createdAt" example:"2023-11-15T14:30:45Z"`
	StartedAt   *time.Time `json:"startedAt,omitempty" example:"2023-11-15T14:30:46Z"`
	CompletedAt *time.Time `json:"completedAt,omitempty" example:"2023-11-15T14:30:48Z"`
}

// KV represents a key-value pair in the database.
type KV struct {
	Key       string          `json:"key" example:"chain:blog-writer"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"createdAt" example:"2023-11-15T14:30:45Z"`
	UpdatedAt time.Time       `json:"updatedAt" example:"2023-11-15T14:30:45Z"`
}
