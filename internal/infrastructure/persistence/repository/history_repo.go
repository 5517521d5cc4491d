package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/garyjia/admissions-workflow/internal/application/port"
	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
	"github.com/garyjia/admissions-workflow/internal/infrastructure/persistence/sqlite"
)

type historyRow struct {
	ID            string    `db:"id"`
	ApplicationID string    `db:"application_id"`
	Position      int       `db:"position"`
	StageID       string    `db:"stage_id"`
	EnteredAt     time.Time `db:"entered_at"`
	ActorKind     string    `db:"actor_kind"`
	ActorID       string    `db:"actor_id"`
	TransitionID  string    `db:"transition_id"`
	Note          string    `db:"note"`
}

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sqlite.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts the next history entry. A position collision means another
// writer appended first and is reported as port.ErrStaleStage.
func (r *HistoryRepository) Append(ctx context.Context, entry *workflow.HistoryEntry) error {
	if !entry.EnteredBy.IsValid() {
		return fmt.Errorf("invalid actor %q for history entry", entry.EnteredBy)
	}

	query := `
		INSERT INTO status_history (
			id, application_id, position, stage_id, entered_at,
			actor_kind, actor_id, transition_id, note
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := sqlite.ExecutorFor(ctx, r.db.DB).ExecContext(ctx, query,
		entry.ID,
		entry.ApplicationID,
		entry.Position,
		entry.StageID,
		entry.EnteredAt,
		string(entry.EnteredBy.Kind),
		entry.EnteredBy.ID,
		entry.TransitionID,
		entry.Note,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return port.ErrStaleStage
		}
		r.logger.Error("Failed to append history entry", zap.String("application_id", entry.ApplicationID), zap.Error(err))
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// ListByApplication returns the full history of an application in order
func (r *HistoryRepository) ListByApplication(ctx context.Context, applicationID string) (workflow.History, error) {
	var rows []historyRow
	err := sqlx.SelectContext(ctx, sqlite.ExecutorFor(ctx, r.db.DB), &rows, `
		SELECT id, application_id, position, stage_id, entered_at, actor_kind, actor_id, transition_id, note
		FROM status_history
		WHERE application_id = ?
		ORDER BY position ASC`, applicationID)
	if err != nil {
		r.logger.Error("Failed to get history by application ID", zap.String("application_id", applicationID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	history := make(workflow.History, len(rows))
	for i, row := range rows {
		history[i] = workflow.HistoryEntry{
			ID:            row.ID,
			ApplicationID: row.ApplicationID,
			Position:      row.Position,
			StageID:       row.StageID,
			EnteredAt:     row.EnteredAt,
			EnteredBy:     workflow.Actor{Kind: workflow.ActorKind(row.ActorKind), ID: row.ActorID},
			TransitionID:  row.TransitionID,
			Note:          row.Note,
		}
	}
	return history, nil
}

// UsedTransitions derives each recorded transition's source from the entry
// preceding it.
func (r *HistoryRepository) UsedTransitions(ctx context.Context, workflowID string) ([]port.TransitionUsage, error) {
	var rows []struct {
		TransitionID  string `db:"transition_id"`
		SourceStageID string `db:"source_stage_id"`
		TargetStageID string `db:"target_stage_id"`
	}
	err := sqlx.SelectContext(ctx, sqlite.ExecutorFor(ctx, r.db.DB), &rows, `
		SELECT DISTINCT h.transition_id AS transition_id,
			prev.stage_id AS source_stage_id,
			h.stage_id AS target_stage_id
		FROM status_history h
		JOIN applications a ON a.id = h.application_id
		JOIN status_history prev ON prev.application_id = h.application_id AND prev.position = h.position - 1
		WHERE a.workflow_id = ? AND h.transition_id <> ''
		ORDER BY h.transition_id`, workflowID)
	if err != nil {
		r.logger.Error("Failed to list used transitions", zap.String("workflow_id", workflowID), zap.Error(err))
		return nil, fmt.Errorf("failed to list used transitions: %w", err)
	}

	usage := make([]port.TransitionUsage, len(rows))
	for i, row := range rows {
		usage[i] = port.TransitionUsage{
			TransitionID:  row.TransitionID,
			SourceStageID: row.SourceStageID,
			TargetStageID: row.TargetStageID,
		}
	}
	return usage, nil
}
