package port

import (
	"context"
	"io"

	"github.com/garyjia/admissions-workflow/internal/domain/entity"
	"github.com/garyjia/admissions-workflow/internal/domain/event"
	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
)

// FactProvider supplies the read-only facts transition conditions are evaluated against
type FactProvider interface {
	Facts(ctx context.Context, applicationID string) (workflow.Facts, error)
}

// Identity is an authenticated caller as presented by the transport
type Identity struct {
	ActorID string
	Roles   []string
}

// PermissionProvider resolves the capability tags an identity holds
type PermissionProvider interface {
	Permissions(ctx context.Context, id Identity) ([]string, error)
}

// StatusNotifier delivers status changes to people, e.g. a chat group
type StatusNotifier interface {
	NotifyStatusChanged(ctx context.Context, fact event.StatusChanged, def *workflow.Definition) error
}

// HistoryExporter renders an application's history as a document
type HistoryExporter interface {
	Export(w io.Writer, app *entity.Application, def *workflow.Definition, history workflow.History) error
}
