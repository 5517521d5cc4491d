package workflow

import "fmt"

// ActorKind discriminates who produced a history entry
type ActorKind string

const (
	ActorHuman  ActorKind = "human"
	ActorSystem ActorKind = "system"
)

// Actor is either Human(id) or System. The zero value is invalid.
type Actor struct {
	Kind ActorKind `json:"kind"`
	ID   string    `json:"id,omitempty"`
}

// Human returns an actor for the person identified by id
func Human(id string) Actor {
	return Actor{Kind: ActorHuman, ID: id}
}

// System returns the actor used for automatic transitions
func System() Actor {
	return Actor{Kind: ActorSystem}
}

// IsSystem returns true for the automatic actor
func (a Actor) IsSystem() bool {
	return a.Kind == ActorSystem
}

// IsValid returns true for a well-formed variant
func (a Actor) IsValid() bool {
	switch a.Kind {
	case ActorSystem:
		return a.ID == ""
	case ActorHuman:
		return a.ID != ""
	default:
		return false
	}
}

func (a Actor) String() string {
	if a.Kind == ActorSystem {
		return "system"
	}
	return fmt.Sprintf("human:%s", a.ID)
}

// Principal is a human actor together with the capabilities it holds
type Principal struct {
	ID          string
	Permissions []string
}

// HasAll reports whether the principal holds every required capability and
// returns the ones it lacks.
func (p Principal) HasAll(required []string) (bool, []string) {
	held := make(map[string]bool, len(p.Permissions))
	for _, perm := range p.Permissions {
		held[perm] = true
	}
	var missing []string
	for _, r := range required {
		if !held[r] {
			missing = append(missing, r)
		}
	}
	return len(missing) == 0, missing
}
