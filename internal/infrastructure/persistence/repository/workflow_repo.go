package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/garyjia/admissions-workflow/internal/application/port"
	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
	"github.com/garyjia/admissions-workflow/internal/infrastructure/persistence/sqlite"
)

type workflowRow struct {
	ID              string    `db:"id"`
	Name            string    `db:"name"`
	ApplicationType string    `db:"application_type"`
	IsActive        bool      `db:"is_active"`
	Version         int       `db:"version"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

type stageRow struct {
	ID                    string `db:"id"`
	Name                  string `db:"name"`
	Sequence              int    `db:"sequence"`
	RequiredDocumentTypes string `db:"required_document_types"`
	RequiredActions       string `db:"required_actions"`
	NotificationTriggers  string `db:"notification_triggers"`
	AssignedRole          string `db:"assigned_role"`
}

type transitionRow struct {
	ID                  string `db:"id"`
	SourceStageID       string `db:"source_stage_id"`
	TargetStageID       string `db:"target_stage_id"`
	Name                string `db:"name"`
	Conditions          string `db:"conditions"`
	RequiredPermissions string `db:"required_permissions"`
	IsAutomatic         bool   `db:"is_automatic"`
}

// WorkflowRepository implements port.WorkflowRepository
type WorkflowRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sqlite.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a definition with all of its stages and transitions
func (r *WorkflowRepository) Create(ctx context.Context, def *workflow.Definition) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO workflow_definitions (
				id, name, application_type, is_active, version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		_, err := sqlite.ExecutorFor(ctx, r.db.DB).ExecContext(ctx, query,
			def.ID,
			def.Name,
			string(def.ApplicationType),
			def.IsActive,
			def.Version,
			def.CreatedAt,
			def.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return &workflow.ConflictError{Reason: fmt.Sprintf("workflow name %q already exists", def.Name)}
			}
			r.logger.Error("Failed to create workflow", zap.String("name", def.Name), zap.Error(err))
			return fmt.Errorf("failed to create workflow: %w", err)
		}
		return r.insertGraph(ctx, def)
	})
}

// Replace overwrites the definition row and its full stage graph
func (r *WorkflowRepository) Replace(ctx context.Context, def *workflow.Definition) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		exec := sqlite.ExecutorFor(ctx, r.db.DB)
		query := `
			UPDATE workflow_definitions
			SET name = ?, application_type = ?, is_active = ?, version = ?, updated_at = ?
			WHERE id = ?
		`
		res, err := exec.ExecContext(ctx, query,
			def.Name,
			string(def.ApplicationType),
			def.IsActive,
			def.Version,
			def.UpdatedAt,
			def.ID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return &workflow.ConflictError{Reason: fmt.Sprintf("workflow name %q already exists", def.Name)}
			}
			r.logger.Error("Failed to update workflow", zap.String("id", def.ID), zap.Error(err))
			return fmt.Errorf("failed to update workflow: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("workflow %s: %w", def.ID, workflow.ErrNotFound)
		}

		if _, err := exec.ExecContext(ctx, `DELETE FROM workflow_transitions WHERE workflow_id = ?`, def.ID); err != nil {
			return fmt.Errorf("failed to clear transitions: %w", err)
		}
		if _, err := exec.ExecContext(ctx, `DELETE FROM workflow_stages WHERE workflow_id = ?`, def.ID); err != nil {
			return fmt.Errorf("failed to clear stages: %w", err)
		}
		return r.insertGraph(ctx, def)
	})
}

func (r *WorkflowRepository) insertGraph(ctx context.Context, def *workflow.Definition) error {
	exec := sqlite.ExecutorFor(ctx, r.db.DB)

	stageQuery := `
		INSERT INTO workflow_stages (
			workflow_id, id, position, name, sequence,
			required_document_types, required_actions, notification_triggers, assigned_role
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i, s := range def.Stages {
		docs, err := encodeJSON(s.RequiredDocumentTypes)
		if err != nil {
			return err
		}
		actions, err := encodeJSON(s.RequiredActions)
		if err != nil {
			return err
		}
		triggers, err := encodeJSON(s.NotificationTriggers)
		if err != nil {
			return err
		}
		if _, err := exec.ExecContext(ctx, stageQuery,
			def.ID, s.ID, i, s.Name, s.Sequence, docs, actions, triggers, s.AssignedRole,
		); err != nil {
			r.logger.Error("Failed to insert stage", zap.String("workflow_id", def.ID), zap.String("stage_id", s.ID), zap.Error(err))
			return fmt.Errorf("failed to insert stage %s: %w", s.ID, err)
		}
	}

	transitionQuery := `
		INSERT INTO workflow_transitions (
			workflow_id, id, position, source_stage_id, target_stage_id, name,
			conditions, required_permissions, is_automatic
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i, t := range def.Transitions {
		conds, err := encodeJSON(t.Conditions)
		if err != nil {
			return err
		}
		perms, err := encodeJSON(t.RequiredPermissions)
		if err != nil {
			return err
		}
		if _, err := exec.ExecContext(ctx, transitionQuery,
			def.ID, t.ID, i, t.SourceStageID, t.TargetStageID, t.Name, conds, perms, t.IsAutomatic,
		); err != nil {
			r.logger.Error("Failed to insert transition", zap.String("workflow_id", def.ID), zap.String("transition_id", t.ID), zap.Error(err))
			return fmt.Errorf("failed to insert transition %s: %w", t.ID, err)
		}
	}

	return nil
}

// GetByID retrieves a definition by id
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*workflow.Definition, error) {
	return r.getOne(ctx, `SELECT id, name, application_type, is_active, version, created_at, updated_at FROM workflow_definitions WHERE id = ?`, id)
}

// GetByName retrieves a definition by its unique name
func (r *WorkflowRepository) GetByName(ctx context.Context, name string) (*workflow.Definition, error) {
	return r.getOne(ctx, `SELECT id, name, application_type, is_active, version, created_at, updated_at FROM workflow_definitions WHERE name = ?`, name)
}

func (r *WorkflowRepository) getOne(ctx context.Context, query string, arg string) (*workflow.Definition, error) {
	var row workflowRow
	err := sqlx.GetContext(ctx, sqlite.ExecutorFor(ctx, r.db.DB), &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow", zap.String("key", arg), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return r.load(ctx, row)
}

// List returns every definition ordered by name
func (r *WorkflowRepository) List(ctx context.Context, activeOnly bool) ([]*workflow.Definition, error) {
	query := `SELECT id, name, application_type, is_active, version, created_at, updated_at FROM workflow_definitions`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name`

	var rows []workflowRow
	if err := sqlx.SelectContext(ctx, sqlite.ExecutorFor(ctx, r.db.DB), &rows, query); err != nil {
		r.logger.Error("Failed to list workflows", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	defs := make([]*workflow.Definition, 0, len(rows))
	for _, row := range rows {
		def, err := r.load(ctx, row)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// SetActive toggles the soft-delete flag
func (r *WorkflowRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	res, err := sqlite.ExecutorFor(ctx, r.db.DB).ExecContext(ctx,
		`UPDATE workflow_definitions SET is_active = ?, updated_at = ? WHERE id = ?`, active, at, id)
	if err != nil {
		r.logger.Error("Failed to set workflow active flag", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("workflow %s: %w", id, workflow.ErrNotFound)
	}
	return nil
}

func (r *WorkflowRepository) load(ctx context.Context, row workflowRow) (*workflow.Definition, error) {
	exec := sqlite.ExecutorFor(ctx, r.db.DB)

	var stages []stageRow
	if err := sqlx.SelectContext(ctx, exec, &stages, `
		SELECT id, name, sequence, required_document_types, required_actions, notification_triggers, assigned_role
		FROM workflow_stages WHERE workflow_id = ? ORDER BY position`, row.ID); err != nil {
		return nil, fmt.Errorf("failed to load stages: %w", err)
	}

	var transitions []transitionRow
	if err := sqlx.SelectContext(ctx, exec, &transitions, `
		SELECT id, source_stage_id, target_stage_id, name, conditions, required_permissions, is_automatic
		FROM workflow_transitions WHERE workflow_id = ? ORDER BY position`, row.ID); err != nil {
		return nil, fmt.Errorf("failed to load transitions: %w", err)
	}

	def := &workflow.Definition{
		ID:              row.ID,
		Name:            row.Name,
		ApplicationType: workflow.ApplicationType(row.ApplicationType),
		IsActive:        row.IsActive,
		Version:         row.Version,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		Stages:          make([]workflow.Stage, 0, len(stages)),
		Transitions:     make([]workflow.Transition, 0, len(transitions)),
	}

	for _, s := range stages {
		stage := workflow.Stage{ID: s.ID, Name: s.Name, Sequence: s.Sequence, AssignedRole: s.AssignedRole}
		var err error
		if stage.RequiredDocumentTypes, err = decodeStrings(s.RequiredDocumentTypes); err != nil {
			return nil, err
		}
		if stage.RequiredActions, err = decodeStrings(s.RequiredActions); err != nil {
			return nil, err
		}
		if stage.NotificationTriggers, err = decodeStrings(s.NotificationTriggers); err != nil {
			return nil, err
		}
		def.Stages = append(def.Stages, stage)
	}

	for _, t := range transitions {
		tr := workflow.Transition{
			ID:            t.ID,
			SourceStageID: t.SourceStageID,
			TargetStageID: t.TargetStageID,
			Name:          t.Name,
			IsAutomatic:   t.IsAutomatic,
		}
		if err := json.Unmarshal([]byte(t.Conditions), &tr.Conditions); err != nil {
			return nil, fmt.Errorf("failed to decode conditions of %s: %w", t.ID, err)
		}
		if len(tr.Conditions) == 0 {
			tr.Conditions = nil
		}
		var err error
		if tr.RequiredPermissions, err = decodeStrings(t.RequiredPermissions); err != nil {
			return nil, err
		}
		def.Transitions = append(def.Transitions, tr)
	}

	return def, nil
}
