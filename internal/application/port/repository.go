package port

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/admissions-workflow/internal/domain/entity"
	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
)

// ErrStaleStage is returned by AdvanceStage when the application no longer
// sits at the expected stage.
var ErrStaleStage = fmt.Errorf("%w: application stage changed concurrently", workflow.ErrConflict)

// WorkflowRepository persists workflow definitions with their stages and
// transitions as one unit. Getters return nil, nil when nothing matches.
type WorkflowRepository interface {
	Create(ctx context.Context, def *workflow.Definition) error
	Replace(ctx context.Context, def *workflow.Definition) error
	GetByID(ctx context.Context, id string) (*workflow.Definition, error)
	GetByName(ctx context.Context, name string) (*workflow.Definition, error)
	List(ctx context.Context, activeOnly bool) ([]*workflow.Definition, error)
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
}

// ApplicationRepository persists applications and their denormalized current stage
type ApplicationRepository interface {
	Create(ctx context.Context, app *entity.Application) error
	GetByID(ctx context.Context, id string) (*entity.Application, error)
	// AdvanceStage moves the application from expectedStageID to newStageID,
	// failing with ErrStaleStage if it has moved meanwhile.
	AdvanceStage(ctx context.Context, id, expectedStageID, newStageID string, terminal bool, at time.Time) error
	// CountByStage returns the number of applications of workflowID currently
	// at each of stageIDs. Stages with no applications are omitted.
	CountByStage(ctx context.Context, workflowID string, stageIDs []string) (map[string]int, error)
	// ListOpen pages through non-terminal applications ordered by id
	ListOpen(ctx context.Context, afterID string, limit int) ([]*entity.Application, error)
}

// TransitionUsage is a transition as it was recorded in history
type TransitionUsage struct {
	TransitionID  string
	SourceStageID string
	TargetStageID string
}

// HistoryRepository is the append-only status history store
type HistoryRepository interface {
	Append(ctx context.Context, entry *workflow.HistoryEntry) error
	ListByApplication(ctx context.Context, applicationID string) (workflow.History, error)
	// UsedTransitions returns the distinct transitions, with the stages they
	// connected, referenced by the history of any application of workflowID.
	UsedTransitions(ctx context.Context, workflowID string) ([]TransitionUsage, error)
}

// FactRepository stores per-application facts for the default fact provider
type FactRepository interface {
	Get(ctx context.Context, applicationID string) (workflow.Facts, error)
	Upsert(ctx context.Context, applicationID string, facts workflow.Facts) error
}

// AuditRepository is the append-only audit log the audit sink writes to
type AuditRepository interface {
	Create(ctx context.Context, rec *entity.AuditRecord) error
	ListByApplication(ctx context.Context, applicationID string) ([]*entity.AuditRecord, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
