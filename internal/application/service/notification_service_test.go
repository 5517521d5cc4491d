package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/admissions-workflow/internal/domain/event"
	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
)

func statusChangedEvent() *event.Event {
	return event.NewStatusChanged(event.StatusChanged{
		ApplicationID:   "app-1",
		WorkflowID:      "wf-1",
		PreviousStageID: "committee",
		NewStageID:      "admitted",
		TransitionID:    "t-admit",
		EnteredBy:       workflow.Human("dean"),
		OccurredAt:      time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	})
}

func TestNotificationService_Register(t *testing.T) {
	d := newRecordingDispatcher()

	NewNotificationService(&mockAuditRepo{}, newMockWorkflowRepo(), &mockNotifier{}, &mockLogger{}).Register(d)
	assert.Equal(t, []string{AuditSinkName}, d.subs[event.TypeAny])
	assert.Equal(t, []string{LogSinkName, NotifySinkName}, d.subs[event.TypeStatusChanged])
	assert.Equal(t, []string{LogSinkName}, d.subs[event.TypeAutomaticAmbiguity])

	d = newRecordingDispatcher()
	NewNotificationService(nil, newMockWorkflowRepo(), nil, &mockLogger{}).Register(d)
	assert.Empty(t, d.subs[event.TypeAny])
	assert.Equal(t, []string{LogSinkName}, d.subs[event.TypeStatusChanged])
}

func TestNotificationService_HandleAudit(t *testing.T) {
	audit := &mockAuditRepo{}
	svc := NewNotificationService(audit, newMockWorkflowRepo(), nil, &mockLogger{})

	evt := statusChangedEvent()
	require.NoError(t, svc.HandleAudit(context.Background(), evt))

	require.Len(t, audit.records, 1)
	rec := audit.records[0]
	assert.Equal(t, evt.ID, rec.EventID)
	assert.Equal(t, "application.status_changed", rec.EventType)
	assert.Equal(t, "app-1", rec.ApplicationID)
	assert.Equal(t, "wf-1", rec.WorkflowID)
	assert.Equal(t, "human:dean", rec.Actor)
	assert.Equal(t, evt.Timestamp, rec.OccurredAt)

	var detail map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(rec.Detail), &detail))
	assert.Equal(t, "admitted", detail[event.KeyNewStageID])

	require.NoError(t, svc.HandleAudit(context.Background(), event.NewEvent(event.TypeWorkflowDefined, "wf-1", "", nil)))
	assert.Equal(t, "system", audit.records[1].Actor)

	audit.err = errors.New("disk full")
	assert.Error(t, svc.HandleAudit(context.Background(), evt))
}

func TestNotificationService_HandleNotify(t *testing.T) {
	workflows := newMockWorkflowRepo()
	require.NoError(t, workflows.Create(context.Background(), &workflow.Definition{ID: "wf-1", Name: "Graduate 2026"}))

	notifier := &mockNotifier{}
	svc := NewNotificationService(nil, workflows, notifier, &mockLogger{})

	require.NoError(t, svc.HandleNotify(context.Background(), statusChangedEvent()))
	require.Len(t, notifier.facts, 1)
	assert.Equal(t, "admitted", notifier.facts[0].NewStageID)
	assert.Equal(t, workflow.Human("dean"), notifier.facts[0].EnteredBy)
	require.NotNil(t, notifier.defs[0])
	assert.Equal(t, "Graduate 2026", notifier.defs[0].Name)

	// non status events are ignored
	require.NoError(t, svc.HandleNotify(context.Background(), event.NewEvent(event.TypeWorkflowDefined, "wf-1", "", nil)))
	assert.Len(t, notifier.facts, 1)

	notifier.err = errors.New("bot removed from chat")
	assert.Error(t, svc.HandleNotify(context.Background(), statusChangedEvent()))
}

func TestNotificationService_HandleLog(t *testing.T) {
	logger := &mockLogger{}
	svc := NewNotificationService(nil, newMockWorkflowRepo(), nil, logger)

	require.NoError(t, svc.HandleLog(context.Background(), statusChangedEvent()))
	assert.Empty(t, logger.warns)

	amb := event.NewEvent(event.TypeAutomaticAmbiguity, "wf-1", "app-1", map[string]interface{}{
		event.KeyCandidates:   []string{"t-a", "t-b"},
		event.KeyTransitionID: "t-a",
	})
	require.NoError(t, svc.HandleLog(context.Background(), amb))
	assert.Equal(t, []string{"Automatic transition resolved by tie-break"}, logger.warns)
}

func TestNotificationService_MalformedStatusEvent(t *testing.T) {
	logger := &mockLogger{}
	notifier := &mockNotifier{}
	svc := NewNotificationService(nil, newMockWorkflowRepo(), notifier, logger)

	broken := event.NewEvent(event.TypeStatusChanged, "wf-1", "app-1", map[string]interface{}{
		event.KeyPreviousStageID: "committee",
	})

	require.NoError(t, svc.HandleLog(context.Background(), broken))
	assert.Equal(t, []string{"Status changed event has malformed payload"}, logger.warns)

	require.NoError(t, svc.HandleNotify(context.Background(), broken))
	assert.Empty(t, notifier.facts)
}
