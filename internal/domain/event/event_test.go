package event

import (
	"testing"
	"time"

	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{name: "status changed", eventType: TypeStatusChanged, want: true},
		{name: "ambiguity", eventType: TypeAutomaticAmbiguity, want: true},
		{name: "wildcard is not a concrete type", eventType: TypeAny, want: false},
		{name: "unknown", eventType: Type("instance.created"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEvent(t *testing.T) {
	evt := NewEvent(TypeApplicationStarted, "wf-1", "app-1", nil)

	if evt.ID == "" {
		t.Error("expected generated ID")
	}
	if evt.CorrelationID != evt.ID {
		t.Errorf("CorrelationID = %q, want %q", evt.CorrelationID, evt.ID)
	}
	if evt.Payload == nil {
		t.Error("expected non-nil payload")
	}
	if time.Since(evt.Timestamp) > time.Minute {
		t.Errorf("unexpected timestamp %v", evt.Timestamp)
	}
}

func TestStatusChanged_RoundTrip(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	fact := StatusChanged{
		ApplicationID:   "app-1",
		WorkflowID:      "wf-1",
		PreviousStageID: "review",
		NewStageID:      "decided",
		TransitionID:    "t-decide",
		EnteredBy:       workflow.Human("officer-3"),
		OccurredAt:      at,
	}

	evt := NewStatusChanged(fact)
	if evt.Type != TypeStatusChanged {
		t.Fatalf("Type = %v", evt.Type)
	}

	got, ok := evt.StatusChangedFact()
	if !ok {
		t.Fatal("StatusChangedFact() returned false")
	}
	if got != fact {
		t.Errorf("StatusChangedFact() = %+v, want %+v", got, fact)
	}

	other := NewEvent(TypeWorkflowDefined, "wf-1", "", nil)
	if _, ok := other.StatusChangedFact(); ok {
		t.Error("expected false for non status event")
	}

	for _, key := range []string{KeyNewStageID, KeyTransitionID} {
		broken := evt.WithPayload(key, "")
		if _, ok := broken.StatusChangedFact(); ok {
			t.Errorf("expected false when %s is empty", key)
		}
	}
	if _, ok := NewEvent(TypeStatusChanged, "wf-1", "", nil).StatusChangedFact(); ok {
		t.Error("expected false for status event without payload")
	}
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeStatusChanged, "wf", "app", map[string]interface{}{"a": "1"})
	updated := original.WithPayload("b", 2)

	if _, ok := original.Payload["b"]; ok {
		t.Error("original payload was mutated")
	}
	if updated.GetPayloadInt("b") != 2 {
		t.Errorf("GetPayloadInt(b) = %d", updated.GetPayloadInt("b"))
	}
	if updated.GetPayloadString("a") != "1" {
		t.Errorf("GetPayloadString(a) = %q", updated.GetPayloadString("a"))
	}
	if updated.ID != original.ID {
		t.Error("WithPayload must keep the event ID")
	}
}
