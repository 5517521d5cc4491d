package dispatcher

import (
	"context"

	"github.com/garyjia/admissions-workflow/internal/domain/event"
)

// Handler consumes one workflow event. A returned error is logged; the event
// is not redelivered.
type Handler func(ctx context.Context, evt *event.Event) error
