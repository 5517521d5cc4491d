package workflow

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Validation error codes
const (
	CodeRequired           = "REQUIRED"
	CodeDuplicateSequence  = "DUPLICATE_SEQUENCE"
	CodeInvalidSequence    = "INVALID_SEQUENCE"
	CodeDuplicateName      = "DUPLICATE_NAME"
	CodeNameTooLong        = "NAME_TOO_LONG"
	CodeDuplicateID        = "DUPLICATE_ID"
	CodeDuplicateTempID    = "DUPLICATE_TEMP_ID"
	CodeTempIDConflict     = "TEMP_ID_CONFLICT"
	CodeRefNotFound        = "REF_NOT_FOUND"
	CodeSelfLoop           = "SELF_LOOP"
	CodeCycle              = "CYCLE"
	CodeNoInitialStage     = "NO_INITIAL_STAGE"
	CodeInvalidEnum        = "INVALID_ENUM"
	CodeInvalidValue       = "INVALID_VALUE"
	CodeAmbiguousAutomatic = "AMBIGUOUS_AUTOMATIC"
)

// ValidationError describes a single problem found in a workflow submission.
type ValidationError struct {
	Path     string   `json:"path"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	StageIDs []string `json:"stage_ids,omitempty"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationResult is the outcome of validating a stage graph. Warnings never
// make a result fail.
type ValidationResult struct {
	Errors   []ValidationError `json:"errors"`
	Warnings []ValidationError `json:"warnings,omitempty"`
}

// OK returns true when no errors were found
func (r ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// HasCode reports whether any error carries code
func (r ValidationResult) HasCode(code string) bool {
	return countCode(r.Errors, code) > 0
}

// Count returns the number of errors carrying code
func (r ValidationResult) Count(code string) int {
	return countCode(r.Errors, code)
}

func countCode(errs []ValidationError, code string) int {
	n := 0
	for _, e := range errs {
		if e.Code == code {
			n++
		}
	}
	return n
}

// Visitation colours for cycle detection
const (
	white uint8 = iota
	grey
	black
)

// graph is the flat arena the structural checks run over. Nodes are stage
// indexes; duplicate stage ids resolve to the first stage carrying them.
type graph struct {
	stages   []Stage
	index    map[string]int
	adj      [][]int
	edgeOf   [][]int
	incoming []int
}

// Validate checks a complete candidate stage and transition set. It collects
// every problem it finds and never panics on malformed input.
func Validate(stages []Stage, transitions []Transition) ValidationResult {
	var res ValidationResult

	if len(stages) == 0 {
		res.Errors = append(res.Errors, ValidationError{
			Path:    "stages",
			Code:    CodeRequired,
			Message: "at least one stage is required",
		})
		return res
	}

	g := &graph{
		stages:   stages,
		index:    make(map[string]int, len(stages)),
		adj:      make([][]int, len(stages)),
		edgeOf:   make([][]int, len(stages)),
		incoming: make([]int, len(stages)),
	}

	res.Errors = append(res.Errors, g.checkStages()...)
	res.Errors = append(res.Errors, g.checkTransitions(transitions)...)
	res.Errors = append(res.Errors, g.checkCycles(transitions)...)

	if !g.hasInitialStage() {
		res.Errors = append(res.Errors, ValidationError{
			Path:    "stages",
			Code:    CodeNoInitialStage,
			Message: "no initial stage: every stage has an incoming transition and none has sequence 1",
		})
	}

	res.Warnings = ambiguousAutomatic(g, transitions)
	return res
}

func (g *graph) checkStages() []ValidationError {
	var errs []ValidationError
	names := make(map[string]int, len(g.stages))
	bySequence := make(map[int][]int)

	for i, s := range g.stages {
		sp := fmt.Sprintf("stages[%d]", i)

		if s.ID == "" {
			errs = append(errs, ValidationError{Path: sp + ".id", Code: CodeRequired, Message: "stage id is required"})
		} else if first, dup := g.index[s.ID]; dup {
			errs = append(errs, ValidationError{
				Path:     sp + ".id",
				Code:     CodeDuplicateID,
				Message:  fmt.Sprintf("stage id %q already used by stages[%d]", s.ID, first),
				StageIDs: []string{s.ID},
			})
		} else {
			g.index[s.ID] = i
		}

		name := strings.TrimSpace(s.Name)
		switch {
		case name == "":
			errs = append(errs, ValidationError{Path: sp + ".name", Code: CodeRequired, Message: "stage name is required"})
		case utf8.RuneCountInString(s.Name) > MaxNameLength:
			errs = append(errs, ValidationError{
				Path:    sp + ".name",
				Code:    CodeNameTooLong,
				Message: fmt.Sprintf("stage name exceeds %d characters", MaxNameLength),
			})
		}
		if name != "" {
			if first, dup := names[name]; dup {
				errs = append(errs, ValidationError{
					Path:    sp + ".name",
					Code:    CodeDuplicateName,
					Message: fmt.Sprintf("stage name %q already used by stages[%d]", s.Name, first),
				})
			} else {
				names[name] = i
			}
		}

		if s.Sequence <= 0 {
			errs = append(errs, ValidationError{
				Path:    sp + ".sequence",
				Code:    CodeInvalidSequence,
				Message: fmt.Sprintf("sequence must be a positive integer, got %d", s.Sequence),
			})
		} else {
			bySequence[s.Sequence] = append(bySequence[s.Sequence], i)
		}
	}

	seqs := make([]int, 0, len(bySequence))
	for seq, idx := range bySequence {
		if len(idx) > 1 {
			seqs = append(seqs, seq)
		}
	}
	sort.Ints(seqs)
	for _, seq := range seqs {
		idx := bySequence[seq]
		refs := make([]string, len(idx))
		ids := make([]string, len(idx))
		for k, i := range idx {
			refs[k] = fmt.Sprintf("stages[%d]", i)
			ids[k] = g.stages[i].ID
		}
		errs = append(errs, ValidationError{
			Path:     fmt.Sprintf("stages[%d].sequence", idx[1]),
			Code:     CodeDuplicateSequence,
			Message:  fmt.Sprintf("sequence %d is used by %s", seq, strings.Join(refs, ", ")),
			StageIDs: ids,
		})
	}

	return errs
}

// checkTransitions validates each transition and records the valid ones as
// edges in the arena.
func (g *graph) checkTransitions(transitions []Transition) []ValidationError {
	var errs []ValidationError
	ids := make(map[string]int, len(transitions))

	for k, t := range transitions {
		tp := fmt.Sprintf("transitions[%d]", k)

		if t.ID == "" {
			errs = append(errs, ValidationError{Path: tp + ".id", Code: CodeRequired, Message: "transition id is required"})
		} else if first, dup := ids[t.ID]; dup {
			errs = append(errs, ValidationError{
				Path:    tp + ".id",
				Code:    CodeDuplicateID,
				Message: fmt.Sprintf("transition id %q already used by transitions[%d]", t.ID, first),
			})
		} else {
			ids[t.ID] = k
		}

		if utf8.RuneCountInString(t.Name) > MaxNameLength {
			errs = append(errs, ValidationError{
				Path:    tp + ".name",
				Code:    CodeNameTooLong,
				Message: fmt.Sprintf("transition name exceeds %d characters", MaxNameLength),
			})
		}

		src, srcOK := g.resolve(t.SourceStageID)
		dst, dstOK := g.resolve(t.TargetStageID)

		if t.SourceStageID == "" {
			errs = append(errs, ValidationError{Path: tp + ".source_stage_id", Code: CodeRequired, Message: "source stage is required"})
		} else if !srcOK {
			errs = append(errs, ValidationError{
				Path:    tp + ".source_stage_id",
				Code:    CodeRefNotFound,
				Message: fmt.Sprintf("stage %q not found", t.SourceStageID),
			})
		}
		if t.TargetStageID == "" {
			errs = append(errs, ValidationError{Path: tp + ".target_stage_id", Code: CodeRequired, Message: "target stage is required"})
		} else if !dstOK {
			errs = append(errs, ValidationError{
				Path:    tp + ".target_stage_id",
				Code:    CodeRefNotFound,
				Message: fmt.Sprintf("stage %q not found", t.TargetStageID),
			})
		}

		for i, c := range t.Conditions {
			if c.Name == "" {
				errs = append(errs, ValidationError{
					Path:    fmt.Sprintf("%s.conditions[%d].name", tp, i),
					Code:    CodeRequired,
					Message: "condition name is required",
				})
			}
		}

		if t.SourceStageID != "" && t.SourceStageID == t.TargetStageID {
			errs = append(errs, ValidationError{
				Path:     tp,
				Code:     CodeSelfLoop,
				Message:  fmt.Sprintf("transition %q starts and ends at stage %q", t.ID, t.SourceStageID),
				StageIDs: []string{t.SourceStageID},
			})
			continue
		}

		if srcOK && dstOK {
			g.adj[src] = append(g.adj[src], dst)
			g.edgeOf[src] = append(g.edgeOf[src], k)
			g.incoming[dst]++
		}
	}

	return errs
}

func (g *graph) resolve(id string) (int, bool) {
	if id == "" {
		return 0, false
	}
	i, ok := g.index[id]
	return i, ok
}

// frame is one entry of the explicit DFS stack
type frame struct {
	node int
	next int
}

// checkCycles runs an iterative three-colour DFS over the arena. Every back
// edge into a grey node yields one error listing the cycle's stages.
func (g *graph) checkCycles(transitions []Transition) []ValidationError {
	var errs []ValidationError
	color := make([]uint8, len(g.stages))
	onStack := make([]int, len(g.stages))

	for root := range g.stages {
		if color[root] != white {
			continue
		}

		stack := []frame{{node: root}}
		color[root] = grey
		onStack[root] = 0

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next >= len(g.adj[top.node]) {
				color[top.node] = black
				stack = stack[:len(stack)-1]
				continue
			}

			edge := top.next
			top.next++
			to := g.adj[top.node][edge]

			switch color[to] {
			case white:
				color[to] = grey
				onStack[to] = len(stack)
				stack = append(stack, frame{node: to})
			case grey:
				cycle := make([]string, 0, len(stack)-onStack[to]+1)
				for _, f := range stack[onStack[to]:] {
					cycle = append(cycle, g.stages[f.node].ID)
				}
				tk := g.edgeOf[top.node][edge]
				errs = append(errs, ValidationError{
					Path:     fmt.Sprintf("transitions[%d]", tk),
					Code:     CodeCycle,
					Message:  fmt.Sprintf("transition %q closes a cycle: %s -> %s", transitions[tk].ID, strings.Join(cycle, " -> "), g.stages[to].ID),
					StageIDs: cycle,
				})
			}
		}
	}

	return errs
}

func (g *graph) hasInitialStage() bool {
	for i, s := range g.stages {
		if s.Sequence == 1 || g.incoming[i] == 0 {
			return true
		}
	}
	return false
}

// ambiguousAutomatic flags sources with two or more unconditional automatic
// transitions.
func ambiguousAutomatic(g *graph, transitions []Transition) []ValidationError {
	bySource := make(map[string][]int)
	var order []string
	for k, t := range transitions {
		if !t.IsAutomatic || len(t.Conditions) > 0 {
			continue
		}
		if _, ok := g.resolve(t.SourceStageID); !ok {
			continue
		}
		if _, seen := bySource[t.SourceStageID]; !seen {
			order = append(order, t.SourceStageID)
		}
		bySource[t.SourceStageID] = append(bySource[t.SourceStageID], k)
	}

	var warnings []ValidationError
	for _, src := range order {
		idx := bySource[src]
		if len(idx) < 2 {
			continue
		}
		ids := make([]string, len(idx))
		for i, k := range idx {
			ids[i] = transitions[k].ID
		}
		warnings = append(warnings, ValidationError{
			Path:     fmt.Sprintf("transitions[%d]", idx[1]),
			Code:     CodeAmbiguousAutomatic,
			Message:  fmt.Sprintf("stage %q has %d unconditional automatic transitions (%s); the lowest id wins", src, len(idx), strings.Join(ids, ", ")),
			StageIDs: []string{src},
		})
	}
	return warnings
}
