package chaintypes

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	libdb "github.com/chainwork/chainwork/libdbexec"
	"github.com/google/uuid"
)

func (s *store) AppendModel(ctx context.Context, model *Model) error {
	now := time.Now().UTC()
	model.CreatedAt = now
	model.UpdatedAt = now
	if model.ID == "" {
		model.ID = uuid.New().String()
	}
	if model.Name == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	_, err := s.Exec.ExecContext(ctx, `
		INSERT INTO models
		(id, name, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		model.ID,
		model.Name,
		model.Active,
		model.CreatedAt,
		model.UpdatedAt,
	)
	return err
}

func (s *store) GetModel(ctx context.Context, id string) (*Model, error) {
	var model Model
	err := s.Exec.QueryRowContext(ctx, `
        SELECT id, name, active, created_at, updated_at
        FROM models
        WHERE id = $1`,
		id,
	).Scan(
		&model.ID,
		&model.Name,
		&model.Active,
		&model.CreatedAt,
		&model.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	return &model, nil
}

func (s *store) GetModelByName(ctx context.Context, name string) (*Model, error) {
	var model Model
	err := s.Exec.QueryRowContext(ctx, `
        SELECT id, name, active, created_at, updated_at
        FROM models
        WHERE name = $1`,
		name,
	).Scan(
		&model.ID,
		&model.Name,
		&model.Active,
		&model.CreatedAt,
		&model.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get model by name: %w", err)
	}
	return &model, nil
}

func (s *store) UpdateModel(ctx context.Context, model *Model) error {
	model.UpdatedAt = time.Now().UTC()
	result, err := s.Exec.ExecContext(ctx, `
        UPDATE models
        SET name = $2, active = $3, updated_at = $4
        WHERE id = $1`,
		model.ID,
		model.Name,
		model.Active,
		model.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update model: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *store) DeleteModel(ctx context.Context, id string) error {
	result, err := s.Exec.ExecContext(ctx, `
		DELETE FROM models
		WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *store) ListModels(ctx context.Context, createdAtCursor *time.Time, limit int) ([]*Model, error) {
	cursor := time.Now().UTC()
	if createdAtCursor != nil {
		cursor = *createdAtCursor
	}
	if limit > MAXLIMIT {
		return nil, ErrLimitParamExceeded
	}
	rows, err := s.Exec.QueryContext(ctx, `
        SELECT id, name, active, created_at, updated_at
        FROM models
        WHERE created_at < $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2`,
		cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}
	defer rows.Close()

	var models []*Model
	for rows.Next() {
		var model Model
		if err := rows.Scan(
			&model.ID,
			&model.Name,
			&model.Active,
			&model.CreatedAt,
			&model.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		models = append(models, &model)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return models, nil
}

func (s *store) EstimateModelCount(ctx context.Context) (int64, error) {
	return s.estimateCount(ctx, "models")
}

func (s *store) CreateCapability(ctx context.Context, capability *Capability) error {
	if capability.Name == "" {
		return fmt.Errorf("capability name cannot be empty")
	}
	capability.CreatedAt = time.Now().UTC()
	_, err := s.Exec.ExecContext(ctx, `
		INSERT INTO capabilities
		(name, description, created_at)
		VALUES ($1, $2, $3)`,
		capability.Name,
		capability.Description,
		capability.CreatedAt,
	)
	return err
}

func (s *store) DeleteCapability(ctx context.Context, name string) error {
	result, err := s.Exec.ExecContext(ctx, `
		DELETE FROM capabilities
		WHERE name = $1`,
		name,
	)
	if err != nil {
		return fmt.Errorf("failed to delete capability: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *store) ListCapabilities(ctx context.Context) ([]*Capability, error) {
	rows, err := s.Exec.QueryContext(ctx, `
        SELECT name, description, created_at
        FROM capabilities
        ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query capabilities: %w", err)
	}
	defer rows.Close()

	return scanCapabilities(rows)
}

func (s *store) AssignCapabilityToModel(ctx context.Context, modelID string, capabilityName string) error {
	_, err := s.Exec.ExecContext(ctx, `
		INSERT INTO model_capabilities (model_id, capability_name)
		VALUES ($1, $2)`,
		modelID, capabilityName,
	)
	return err
}

func (s *store) RemoveCapabilityFromModel(ctx context.Context, modelID string, capabilityName string) error {
	result, err := s.Exec.ExecContext(ctx, `
		DELETE FROM model_capabilities
		WHERE model_id = $1 AND capability_name = $2`,
		modelID, capabilityName,
	)
	if err != nil {
		return fmt.Errorf("failed to remove capability from model: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *store) ListCapabilitiesForModel(ctx context.Context, modelID string) ([]*Capability, error) {
	rows, err := s.Exec.QueryContext(ctx, `
        SELECT c.name, c.description, c.created_at
        FROM capabilities c
        JOIN model_capabilities mc ON mc.capability_name = c.name
        WHERE mc.model_id = $1
        ORDER BY c.name`,
		modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to query model capabilities: %w", err)
	}
	defer rows.Close()

	return scanCapabilities(rows)
}

func (s *store) ListModelsForCapability(ctx context.Context, capabilityName string) ([]*Model, error) {
	rows, err := s.Exec.QueryContext(ctx, `
        SELECT m.id, m.name, m.active, m.created_at, m.updated_at
        FROM models m
        JOIN model_capabilities mc ON mc.model_id = m.id
        WHERE mc.capability_name = $1
        ORDER BY m.name`,
		capabilityName)
	if err != nil {
		return nil, fmt.Errorf("failed to query models for capability: %w", err)
	}
	defer rows.Close()

	var models []*Model
	for rows.Next() {
		var model Model
		if err := rows.Scan(
			&model.ID,
			&model.Name,
			&model.Active,
			&model.CreatedAt,
			&model.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		models = append(models, &model)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return models, nil
}

func scanCapabilities(rows *sql.Rows) ([]*Capability, error) {
	var capabilities []*Capability
	for rows.Next() {
		var capability Capability
		if err := rows.Scan(
			&capability.Name,
			&capability.Description,
			&capability.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan capability: %w", err)
		}
		capabilities = append(capabilities, &capability)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return capabilities, nil
}

func checkRowsAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return libdb.ErrNotFound
	}
	return nil
}
