package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/garyjia/admissions-workflow/internal/application/port"
	"github.com/garyjia/admissions-workflow/internal/domain/entity"
	"github.com/garyjia/admissions-workflow/internal/infrastructure/persistence/sqlite"
)

// AuditRepository implements port.AuditRepository
type AuditRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sqlite.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an audit record
func (r *AuditRepository) Create(ctx context.Context, rec *entity.AuditRecord) error {
	query := `
		INSERT INTO workflow_audit_log (
			event_id, event_type, application_id, workflow_id, actor, detail, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.ExecutorFor(ctx, r.db.DB).ExecContext(ctx, query,
		rec.EventID,
		rec.EventType,
		rec.ApplicationID,
		rec.WorkflowID,
		rec.Actor,
		rec.Detail,
		rec.OccurredAt,
	)
	if err != nil {
		r.logger.Error("Failed to create audit record", zap.String("event_id", rec.EventID), zap.Error(err))
		return fmt.Errorf("failed to create audit record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// ListByApplication returns the audit trail of an application oldest first
func (r *AuditRepository) ListByApplication(ctx context.Context, applicationID string) ([]*entity.AuditRecord, error) {
	var records []*entity.AuditRecord
	err := sqlx.SelectContext(ctx, sqlite.ExecutorFor(ctx, r.db.DB), &records, `
		SELECT id, event_id, event_type, application_id, workflow_id, actor, detail, occurred_at, created_at
		FROM workflow_audit_log
		WHERE application_id = ?
		ORDER BY id ASC`, applicationID)
	if err != nil {
		r.logger.Error("Failed to list audit records", zap.String("application_id", applicationID), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	return records, nil
}
