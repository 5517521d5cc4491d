package event

// Type identifies the type of domain event
type Type string

const (
	TypeWorkflowDefined     Type = "workflow.defined"
	TypeWorkflowUpdated     Type = "workflow.updated"
	TypeWorkflowDeactivated Type = "workflow.deactivated"
	TypeApplicationStarted  Type = "application.started"
	TypeStatusChanged       Type = "application.status_changed"
	TypeAutomaticAmbiguity  Type = "automatic.ambiguity"

	// TypeAny subscribes a handler to every event type
	TypeAny Type = "*"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeWorkflowDefined,
		TypeWorkflowUpdated,
		TypeWorkflowDeactivated,
		TypeApplicationStarted,
		TypeStatusChanged,
		TypeAutomaticAmbiguity:
		return true
	default:
		return false
	}
}
