package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/garyjia/admissions-workflow/internal/application/port"
	"github.com/garyjia/admissions-workflow/internal/domain/entity"
	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
	"github.com/garyjia/admissions-workflow/internal/infrastructure/persistence/sqlite"
)

type applicationRow struct {
	ID             string    `db:"id"`
	WorkflowID     string    `db:"workflow_id"`
	ApplicantID    string    `db:"applicant_id"`
	CurrentStageID string    `db:"current_stage_id"`
	Terminal       bool      `db:"terminal"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (row applicationRow) toEntity() *entity.Application {
	return &entity.Application{
		ID:             row.ID,
		WorkflowID:     row.WorkflowID,
		ApplicantID:    row.ApplicantID,
		CurrentStageID: row.CurrentStageID,
		Terminal:       row.Terminal,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

const applicationColumns = `id, workflow_id, applicant_id, current_stage_id, terminal, created_at, updated_at`

// ApplicationRepository implements port.ApplicationRepository
type ApplicationRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewApplicationRepository creates a new application repository
func NewApplicationRepository(db *sqlite.DB, logger *zap.Logger) port.ApplicationRepository {
	return &ApplicationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new application
func (r *ApplicationRepository) Create(ctx context.Context, app *entity.Application) error {
	query := `
		INSERT INTO applications (
			id, workflow_id, applicant_id, current_stage_id, terminal, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := sqlite.ExecutorFor(ctx, r.db.DB).ExecContext(ctx, query,
		app.ID,
		app.WorkflowID,
		app.ApplicantID,
		app.CurrentStageID,
		app.Terminal,
		app.CreatedAt,
		app.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create application", zap.String("id", app.ID), zap.Error(err))
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

// GetByID retrieves an application by id
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*entity.Application, error) {
	var row applicationRow
	err := sqlx.GetContext(ctx, sqlite.ExecutorFor(ctx, r.db.DB), &row,
		`SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get application by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return row.toEntity(), nil
}

// AdvanceStage is the compare half of compare-and-append: it only moves the
// application if it still sits at expectedStageID.
func (r *ApplicationRepository) AdvanceStage(ctx context.Context, id, expectedStageID, newStageID string, terminal bool, at time.Time) error {
	exec := sqlite.ExecutorFor(ctx, r.db.DB)
	res, err := exec.ExecContext(ctx, `
		UPDATE applications
		SET current_stage_id = ?, terminal = ?, updated_at = ?
		WHERE id = ? AND current_stage_id = ?`,
		newStageID, terminal, at, id, expectedStageID,
	)
	if err != nil {
		r.logger.Error("Failed to advance application", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to advance application: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	if err := sqlx.GetContext(ctx, exec, &exists, `SELECT COUNT(*) FROM applications WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to check application: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("application %s: %w", id, workflow.ErrNotFound)
	}
	return port.ErrStaleStage
}

// CountByStage counts applications of a workflow currently at any of stageIDs
func (r *ApplicationRepository) CountByStage(ctx context.Context, workflowID string, stageIDs []string) (map[string]int, error) {
	counts := make(map[string]int)
	if len(stageIDs) == 0 {
		return counts, nil
	}

	query, args, err := sqlx.In(`
		SELECT current_stage_id, COUNT(*) AS n
		FROM applications
		WHERE workflow_id = ? AND current_stage_id IN (?)
		GROUP BY current_stage_id`, workflowID, stageIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build stage count query: %w", err)
	}

	exec := sqlite.ExecutorFor(ctx, r.db.DB)
	var rows []struct {
		StageID string `db:"current_stage_id"`
		N       int    `db:"n"`
	}
	if err := sqlx.SelectContext(ctx, exec, &rows, exec.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to count applications by stage", zap.String("workflow_id", workflowID), zap.Error(err))
		return nil, fmt.Errorf("failed to count applications: %w", err)
	}
	for _, row := range rows {
		counts[row.StageID] = row.N
	}
	return counts, nil
}

// ListOpen pages through non-terminal applications ordered by id
func (r *ApplicationRepository) ListOpen(ctx context.Context, afterID string, limit int) ([]*entity.Application, error) {
	var rows []applicationRow
	err := sqlx.SelectContext(ctx, sqlite.ExecutorFor(ctx, r.db.DB), &rows, `
		SELECT `+applicationColumns+`
		FROM applications
		WHERE terminal = 0 AND id > ?
		ORDER BY id
		LIMIT ?`, afterID, limit)
	if err != nil {
		r.logger.Error("Failed to list open applications", zap.Error(err))
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}

	apps := make([]*entity.Application, len(rows))
	for i, row := range rows {
		apps[i] = row.toEntity()
	}
	return apps, nil
}
