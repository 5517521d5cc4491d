package workflow

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Engine decides transition legality for one application at a time. It holds
// no per-application state; the clock and id generator are its only inputs
// besides the arguments.
type Engine struct {
	now   func() time.Time
	newID func() string
}

// EngineOption configures the engine
type EngineOption func(*Engine)

// WithClock sets the time source used for EnteredAt
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator sets the generator used for history entry ids
func WithIDGenerator(newID func() string) EngineOption {
	return func(e *Engine) {
		e.newID = newID
	}
}

// NewEngine creates a transition engine
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AutomaticResult is the outcome of an automatic evaluation that produced an entry
type AutomaticResult struct {
	Entry      HistoryEntry
	Transition Transition
	// Candidates lists every qualifying transition id in tie-break order
	Candidates []string
	Ambiguous  bool
}

// Start produces the first history entry of an application at the
// definition's initial stage.
func (e *Engine) Start(def *Definition, applicationID string, by Actor) (HistoryEntry, error) {
	initial, ok := def.InitialStage()
	if !ok {
		return HistoryEntry{}, fmt.Errorf("workflow %s has no initial stage: %w", def.ID, ErrValidationFailed)
	}
	return HistoryEntry{
		ID:            e.newID(),
		ApplicationID: applicationID,
		Position:      1,
		StageID:       initial.ID,
		EnteredAt:     e.now(),
		EnteredBy:     by,
	}, nil
}

// LegalTransitions returns the transitions leaving the current stage whose
// conditions all hold against facts.
func (e *Engine) LegalTransitions(def *Definition, history History, facts Facts) ([]Transition, error) {
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}
	current := history.CurrentStageID()

	legal := make([]Transition, 0)
	for _, t := range def.Outgoing(current) {
		if len(FailingConditions(t.Conditions, facts)) == 0 {
			legal = append(legal, t)
		}
	}
	return legal, nil
}

// ApplyManualTransition checks that transitionID may be taken by principal
// from the current stage and returns the entry that records it.
func (e *Engine) ApplyManualTransition(def *Definition, history History, transitionID string, principal Principal, facts Facts) (HistoryEntry, error) {
	last, ok := history.Last()
	if !ok {
		return HistoryEntry{}, ErrEmptyHistory
	}

	t, ok := def.Transition(transitionID)
	if !ok {
		return HistoryEntry{}, &TransitionError{
			Kind:           ErrNotFound,
			CurrentStageID: last.StageID,
			TransitionID:   transitionID,
		}
	}

	if t.SourceStageID != last.StageID {
		kind := ErrIllegalTransition
		if def.IsTerminal(last.StageID) {
			kind = ErrAlreadyTerminal
		}
		return HistoryEntry{}, &TransitionError{
			Kind:           kind,
			CurrentStageID: last.StageID,
			TransitionID:   transitionID,
		}
	}

	if failed := FailingConditions(t.Conditions, facts); len(failed) > 0 {
		return HistoryEntry{}, &TransitionError{
			Kind:             ErrConditionNotMet,
			CurrentStageID:   last.StageID,
			TransitionID:     transitionID,
			FailedConditions: failed,
		}
	}

	if ok, missing := principal.HasAll(t.RequiredPermissions); !ok {
		return HistoryEntry{}, &TransitionError{
			Kind:           ErrPermissionDenied,
			CurrentStageID: last.StageID,
			TransitionID:   transitionID,
			MissingPerms:   missing,
		}
	}

	return e.next(last, t, Human(principal.ID), ""), nil
}

// EvaluateAutomaticTransitions selects the automatic transition to apply from
// the current stage. It returns nil when none qualifies. When several qualify
// the lowest id wins and the entry carries a note naming the candidates.
func (e *Engine) EvaluateAutomaticTransitions(def *Definition, history History, facts Facts) (*AutomaticResult, error) {
	last, ok := history.Last()
	if !ok {
		return nil, ErrEmptyHistory
	}

	var qualifying []Transition
	for _, t := range def.Outgoing(last.StageID) {
		if t.IsAutomatic && len(FailingConditions(t.Conditions, facts)) == 0 {
			qualifying = append(qualifying, t)
		}
	}
	if len(qualifying) == 0 {
		return nil, nil
	}

	sort.SliceStable(qualifying, func(i, j int) bool {
		return qualifying[i].ID < qualifying[j].ID
	})

	candidates := make([]string, len(qualifying))
	for i, t := range qualifying {
		candidates[i] = t.ID
	}

	chosen := qualifying[0]
	ambiguous := len(qualifying) > 1
	note := ""
	if ambiguous {
		note = fmt.Sprintf("automatic transitions %s all qualified; selected %s by lowest id",
			strings.Join(candidates, ", "), chosen.ID)
	}

	return &AutomaticResult{
		Entry:      e.next(last, chosen, System(), note),
		Transition: chosen,
		Candidates: candidates,
		Ambiguous:  ambiguous,
	}, nil
}

// next builds the entry following last. EnteredAt is kept strictly after the
// previous entry even if the clock has not advanced.
func (e *Engine) next(last HistoryEntry, t Transition, by Actor, note string) HistoryEntry {
	at := e.now()
	if !at.After(last.EnteredAt) {
		at = last.EnteredAt.Add(time.Microsecond)
	}
	return HistoryEntry{
		ID:            e.newID(),
		ApplicationID: last.ApplicationID,
		Position:      last.Position + 1,
		StageID:       t.TargetStageID,
		EnteredAt:     at,
		EnteredBy:     by,
		TransitionID:  t.ID,
		Note:          note,
	}
}
