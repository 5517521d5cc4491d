package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/admissions-workflow/internal/application/dispatcher"
	"github.com/garyjia/admissions-workflow/internal/application/port"
	"github.com/garyjia/admissions-workflow/internal/domain/entity"
	"github.com/garyjia/admissions-workflow/internal/domain/event"
)

// Sink handler names as registered on the dispatcher
const (
	AuditSinkName  = "audit-log"
	LogSinkName    = "status-log"
	NotifySinkName = "status-notifier"
)

// NotificationService fans workflow events out to the audit log, the
// structured log and an optional chat notifier.
type NotificationService interface {
	// Register subscribes every configured sink on d
	Register(d dispatcher.Dispatcher)

	HandleAudit(ctx context.Context, evt *event.Event) error
	HandleLog(ctx context.Context, evt *event.Event) error
	HandleNotify(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	auditRepo port.AuditRepository
	workflows port.WorkflowRepository
	notifier  port.StatusNotifier
	logger    Logger
	now       func() time.Time
}

// NewNotificationService creates a new NotificationService. notifier may be nil.
func NewNotificationService(
	auditRepo port.AuditRepository,
	workflows port.WorkflowRepository,
	notifier port.StatusNotifier,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		auditRepo: auditRepo,
		workflows: workflows,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register subscribes the sinks
func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	if s.auditRepo != nil {
		d.Subscribe(event.TypeAny, AuditSinkName, s.HandleAudit)
	}
	d.Subscribe(event.TypeStatusChanged, LogSinkName, s.HandleLog)
	d.Subscribe(event.TypeAutomaticAmbiguity, LogSinkName, s.HandleLog)
	if s.notifier != nil {
		d.Subscribe(event.TypeStatusChanged, NotifySinkName, s.HandleNotify)
	}
}

// HandleAudit appends one audit record per event
func (s *notificationServiceImpl) HandleAudit(ctx context.Context, evt *event.Event) error {
	detail, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("encode audit detail: %w", err)
	}

	actor := "system"
	if kind := evt.GetPayloadString(event.KeyActorKind); kind != "" && kind != "system" {
		actor = fmt.Sprintf("%s:%s", kind, evt.GetPayloadString(event.KeyEnteredBy))
	}

	rec := &entity.AuditRecord{
		EventID:       evt.ID,
		EventType:     evt.Type.String(),
		ApplicationID: evt.ApplicationID,
		WorkflowID:    evt.WorkflowID,
		Actor:         actor,
		Detail:        string(detail),
		OccurredAt:    evt.Timestamp,
		CreatedAt:     s.now(),
	}
	if err := s.auditRepo.Create(ctx, rec); err != nil {
		s.logger.Error("Failed to write audit record", "error", err, "event_id", evt.ID, "event_type", evt.Type)
		return fmt.Errorf("create audit record: %w", err)
	}
	return nil
}

// HandleLog writes status changes and ambiguity reports to the structured log
func (s *notificationServiceImpl) HandleLog(ctx context.Context, evt *event.Event) error {
	switch evt.Type {
	case event.TypeStatusChanged:
		fact, ok := evt.StatusChangedFact()
		if !ok {
			s.logger.Warn("Status changed event has malformed payload",
				"event_id", evt.ID,
				"application_id", evt.ApplicationID,
				"workflow_id", evt.WorkflowID)
			return nil
		}
		s.logger.Info("Status changed",
			"application_id", fact.ApplicationID,
			"workflow_id", fact.WorkflowID,
			"previous_stage_id", fact.PreviousStageID,
			"new_stage_id", fact.NewStageID,
			"transition_id", fact.TransitionID,
			"entered_by", fact.EnteredBy.String(),
			"occurred_at", fact.OccurredAt)
	case event.TypeAutomaticAmbiguity:
		s.logger.Warn("Automatic transition resolved by tie-break",
			"application_id", evt.ApplicationID,
			"workflow_id", evt.WorkflowID,
			"candidates", evt.GetPayloadStrings(event.KeyCandidates),
			"selected", evt.GetPayloadString(event.KeyTransitionID))
	}
	return nil
}

// HandleNotify forwards status changes to the chat notifier
func (s *notificationServiceImpl) HandleNotify(ctx context.Context, evt *event.Event) error {
	fact, ok := evt.StatusChangedFact()
	if !ok {
		return nil
	}

	def, err := s.workflows.GetByID(ctx, fact.WorkflowID)
	if err != nil {
		s.logger.Error("Failed to load workflow for notification", "error", err, "workflow_id", fact.WorkflowID)
		def = nil
	}

	if err := s.notifier.NotifyStatusChanged(ctx, fact, def); err != nil {
		s.logger.Error("Failed to send status notification", "error", err, "application_id", fact.ApplicationID)
		return fmt.Errorf("notify status changed: %w", err)
	}
	return nil
}
