package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
)

// Payload keys shared by publishers and sinks
const (
	KeyPreviousStageID = "previous_stage_id"
	KeyNewStageID      = "new_stage_id"
	KeyTransitionID    = "transition_id"
	KeyEnteredBy       = "entered_by"
	KeyActorKind       = "actor_kind"
	KeyNote            = "note"
	KeyCandidates      = "candidates"
	KeyVersion         = "version"
)

// Event represents a domain event
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	ApplicationID string                 `json:"application_id,omitempty"`
	WorkflowID    string                 `json:"workflow_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with auto-generated ID and timestamp
func NewEvent(eventType Type, workflowID, applicationID string, payload map[string]interface{}) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	id := uuid.NewString()
	return &Event{
		ID:            id,
		Type:          eventType,
		ApplicationID: applicationID,
		WorkflowID:    workflowID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: id,
	}
}

// StatusChanged is the fact published after every successful transition
type StatusChanged struct {
	ApplicationID   string
	WorkflowID      string
	PreviousStageID string
	NewStageID      string
	TransitionID    string
	EnteredBy       workflow.Actor
	Note            string
	OccurredAt      time.Time
}

// NewStatusChanged wraps a StatusChanged fact in an event
func NewStatusChanged(fact StatusChanged) *Event {
	evt := NewEvent(TypeStatusChanged, fact.WorkflowID, fact.ApplicationID, map[string]interface{}{
		KeyPreviousStageID: fact.PreviousStageID,
		KeyNewStageID:      fact.NewStageID,
		KeyTransitionID:    fact.TransitionID,
		KeyEnteredBy:       fact.EnteredBy.ID,
		KeyActorKind:       string(fact.EnteredBy.Kind),
		KeyNote:            fact.Note,
	})
	evt.Timestamp = fact.OccurredAt
	return evt
}

// StatusChangedFact decodes the fact carried by a status_changed event. It
// reports false for other event types and for payloads missing the
// application, new stage or transition.
func (e *Event) StatusChangedFact() (StatusChanged, bool) {
	if e.Type != TypeStatusChanged {
		return StatusChanged{}, false
	}
	fact := StatusChanged{
		ApplicationID:   e.ApplicationID,
		WorkflowID:      e.WorkflowID,
		PreviousStageID: e.GetPayloadString(KeyPreviousStageID),
		NewStageID:      e.GetPayloadString(KeyNewStageID),
		TransitionID:    e.GetPayloadString(KeyTransitionID),
		EnteredBy: workflow.Actor{
			Kind: workflow.ActorKind(e.GetPayloadString(KeyActorKind)),
			ID:   e.GetPayloadString(KeyEnteredBy),
		},
		Note:       e.GetPayloadString(KeyNote),
		OccurredAt: e.Timestamp,
	}
	if fact.ApplicationID == "" || fact.NewStageID == "" || fact.TransitionID == "" {
		return StatusChanged{}, false
	}
	return fact, true
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	cp := *e
	cp.Payload = newPayload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

// GetPayloadStrings retrieves a string slice from the payload
func (e *Event) GetPayloadStrings(key string) []string {
	if val, ok := e.Payload[key]; ok {
		if s, ok := val.([]string); ok {
			return s
		}
	}
	return nil
}
