package chaintypes

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	libdb "github.com/chainwork/chainwork/libdbexec"
	"github.com/stretchr/testify/require"
)

const MAXLIMIT = 1000

var ErrLimitParamExceeded = fmt.Errorf("limit exceeds maximum allowed value")

type Store interface {
	AppendModel(ctx context.Context, model *Model) error
	GetModel(ctx context.Context, id string) (*Model, error)
	GetModelByName(ctx context.Context, name string) (*Model, error)
	UpdateModel(ctx context.Context, model *Model) error
	DeleteModel(ctx context.Context, id string) error
	ListModels(ctx context.Context, createdAtCursor *time.Time, limit int) ([]*Model, error)
	EstimateModelCount(ctx context.Context) (int64, error)

	CreateCapability(ctx context.Context, capability *Capability) error
	DeleteCapability(ctx context.Context, name string) error
	ListCapabilities(ctx context.Context) ([]*Capability, error)
	AssignCapabilityToModel(ctx context.Context, modelID string, capabilityName string) error
	RemoveCapabilityFromModel(ctx context.Context, modelID string, capabilityName string) error
	ListCapabilitiesForModel(ctx context.Context, modelID string) ([]*Capability, error)
	ListModelsForCapability(ctx context.Context, capabilityName string) ([]*Model, error)

	CreateExecution(ctx context.Context, execution *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	ListExecutionsByUser(ctx context.Context, userID string, createdAtCursor *time.Time, limit int) ([]*Execution, error)
	MarkExecutionRunning(ctx context.Context, id string, jobID string) (bool, error)
	MarkExecutionTerminal(ctx context.Context, id string, status ExecutionStatus, reason string) (bool, error)
	EstimateExecutionCount(ctx context.Context) (int64, error)

	CreateStepResults(ctx context.Context, results ...*StepResult) error
	GetStepResult(ctx context.Context, executionID string, stepID string) (*StepResult, error)
	ListStepResults(ctx context.Context, executionID string) ([]*StepResult, error)
	MarkStepRunning(ctx context.Context, executionID string, stepID string) (bool, error)
	MarkStepTerminal(ctx context.Context, executionID string, stepID string, status StepStatus, output *string, errorMessage *string, elapsedMs int64) (bool, error)
	CancelOpenStepResults(ctx context.Context, executionID string) error
	CountStepResultsByStatus(ctx context.Context, executionID string) (map[StepStatus]int, error)

	SetKV(ctx context.Context, key string, value json.RawMessage) error
	UpdateKV(ctx context.Context, key string, value json.RawMessage) error
	GetKV(ctx context.Context, key string, out any) error
	DeleteKV(ctx context.Context, key string) error
	ListKVPrefix(ctx context.Context, prefix string, createdAtCursor *time.Time, limit int) ([]*KV, error)
	EstimateKVCount(ctx context.Context) (int64, error)
}

//go:embed schema.sql
var Schema string

//go:embed schema_sqlite.sql
var SchemaSQLite string

type store struct {
	libdb.Exec
}

func New(exec libdb.Exec) Store {
	if exec == nil {
		panic("SERVER BUG: store.New called with nil exec")
	}
	return &store{exec}
}

// estimateCount prefers the planner estimate when the backend provides one
// and falls back to COUNT(*) on SQLite.
func (s *store) estimateCount(ctx context.Context, table string) (int64, error) {
	var count int64
	err := s.Exec.QueryRowContext(ctx, `SELECT estimate_row_count($1)`, table).Scan(&count)
	if err == nil {
		return count, nil
	}
	if !countableTables[table] {
		return 0, err
	}
	err = s.Exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count)
	return count, err
}

// countableTables is the whitelist for the COUNT(*) fallback.
var countableTables = map[string]bool{
	"models": true, "executions": true, "kv": true,
}

// SetupStore initializes a throwaway SQLite-backed store for tests.
func SetupStore(t *testing.T) (context.Context, Store) {
	t.Helper()

	ctx := context.TODO()
	path := filepath.Join(t.TempDir(), "chainwork-test.db")
	dbManager, err := libdb.NewSQLiteDBManager(ctx, path, SchemaSQLite)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, dbManager.Close())
	})

	return ctx, New(dbManager.WithoutTransaction())
}
