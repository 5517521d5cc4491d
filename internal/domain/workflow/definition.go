package workflow

import (
	"sort"
	"time"
)

// ApplicationType is the closed set of admission tracks a workflow can serve
type ApplicationType string

const (
	ApplicationTypeUndergraduate ApplicationType = "undergraduate"
	ApplicationTypeGraduate      ApplicationType = "graduate"
	ApplicationTypeTransfer      ApplicationType = "transfer"
	ApplicationTypeInternational ApplicationType = "international"
	ApplicationTypeScholarship   ApplicationType = "scholarship"
)

var validApplicationTypes = map[ApplicationType]bool{
	ApplicationTypeUndergraduate: true,
	ApplicationTypeGraduate:      true,
	ApplicationTypeTransfer:      true,
	ApplicationTypeInternational: true,
	ApplicationTypeScholarship:   true,
}

// IsValid returns true if the type is one of the supported admission tracks
func (t ApplicationType) IsValid() bool {
	return validApplicationTypes[t]
}

// String returns the string representation of the application type
func (t ApplicationType) String() string {
	return string(t)
}

// MaxNameLength bounds stage and workflow names
const MaxNameLength = 100

// Stage is a named step an application occupies
type Stage struct {
	ID                    string   `json:"id" yaml:"id"`
	TempID                string   `json:"temp_id,omitempty" yaml:"temp_id,omitempty"`
	Name                  string   `json:"name" yaml:"name"`
	Sequence              int      `json:"sequence" yaml:"sequence"`
	RequiredDocumentTypes []string `json:"required_document_types,omitempty" yaml:"required_document_types,omitempty"`
	RequiredActions       []string `json:"required_actions,omitempty" yaml:"required_actions,omitempty"`
	NotificationTriggers  []string `json:"notification_triggers,omitempty" yaml:"notification_triggers,omitempty"`
	AssignedRole          string   `json:"assigned_role,omitempty" yaml:"assigned_role,omitempty"`
}

// Transition is a directed edge between two stages of the same workflow
type Transition struct {
	ID                  string      `json:"id" yaml:"id"`
	SourceStageID       string      `json:"source_stage_id" yaml:"source_stage_id"`
	TargetStageID       string      `json:"target_stage_id" yaml:"target_stage_id"`
	Name                string      `json:"name" yaml:"name"`
	Conditions          []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	RequiredPermissions []string    `json:"required_permissions,omitempty" yaml:"required_permissions,omitempty"`
	IsAutomatic         bool        `json:"is_automatic" yaml:"is_automatic"`
}

// Definition is a persisted, validated stage graph for one application type
type Definition struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	ApplicationType ApplicationType `json:"application_type"`
	IsActive        bool            `json:"is_active"`
	Version         int             `json:"version"`
	Stages          []Stage         `json:"stages"`
	Transitions     []Transition    `json:"transitions"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Stage looks up a stage by id
func (d *Definition) Stage(id string) (Stage, bool) {
	for _, s := range d.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return Stage{}, false
}

// Transition looks up a transition by id
func (d *Definition) Transition(id string) (Transition, bool) {
	for _, t := range d.Transitions {
		if t.ID == id {
			return t, true
		}
	}
	return Transition{}, false
}

// Outgoing returns the transitions leaving stageID in definition order
func (d *Definition) Outgoing(stageID string) []Transition {
	var out []Transition
	for _, t := range d.Transitions {
		if t.SourceStageID == stageID {
			out = append(out, t)
		}
	}
	return out
}

// IsTerminal returns true if no transition leaves stageID
func (d *Definition) IsTerminal(stageID string) bool {
	for _, t := range d.Transitions {
		if t.SourceStageID == stageID {
			return false
		}
	}
	return true
}

// InitialStage returns the lowest-sequence stage that either has sequence 1
// or no incoming transition.
func (d *Definition) InitialStage() (Stage, bool) {
	incoming := make(map[string]bool, len(d.Transitions))
	for _, t := range d.Transitions {
		if t.SourceStageID != t.TargetStageID {
			incoming[t.TargetStageID] = true
		}
	}

	candidates := make([]Stage, 0, len(d.Stages))
	for _, s := range d.Stages {
		if s.Sequence == 1 || !incoming[s.ID] {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return Stage{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Sequence < candidates[j].Sequence
	})
	return candidates[0], true
}

// StageIDs returns the ids of all stages in definition order
func (d *Definition) StageIDs() []string {
	ids := make([]string, len(d.Stages))
	for i, s := range d.Stages {
		ids[i] = s.ID
	}
	return ids
}
