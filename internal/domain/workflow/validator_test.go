package workflow

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stage(id string, seq int) Stage {
	return Stage{ID: id, Name: strings.ToUpper(id), Sequence: seq}
}

func edge(id, from, to string) Transition {
	return Transition{ID: id, SourceStageID: from, TargetStageID: to, Name: id}
}

func TestValidate_LinearWorkflowIsValid(t *testing.T) {
	res := Validate(
		[]Stage{stage("submitted", 1), stage("review", 2), stage("decided", 3)},
		[]Transition{edge("t1", "submitted", "review"), edge("t2", "review", "decided")},
	)

	assert.True(t, res.OK(), "unexpected errors: %v", res.Errors)
	assert.Empty(t, res.Warnings)
}

func TestValidate_DuplicateSequence(t *testing.T) {
	t.Run("one error per duplicated value and no cycle error", func(t *testing.T) {
		res := Validate(
			[]Stage{{ID: "a", Name: "A", Sequence: 1}, {ID: "b", Name: "B", Sequence: 1}},
			[]Transition{edge("t1", "a", "b")},
		)

		require.False(t, res.OK())
		assert.Equal(t, 1, res.Count(CodeDuplicateSequence))
		assert.Equal(t, 0, res.Count(CodeCycle))

		var dup ValidationError
		for _, e := range res.Errors {
			if e.Code == CodeDuplicateSequence {
				dup = e
			}
		}
		assert.Equal(t, "stages[1].sequence", dup.Path)
		assert.ElementsMatch(t, []string{"a", "b"}, dup.StageIDs)
	})

	t.Run("three stages sharing a value still yield one error", func(t *testing.T) {
		res := Validate([]Stage{stage("a", 2), stage("b", 2), stage("c", 2), stage("d", 1)}, nil)
		assert.Equal(t, 1, res.Count(CodeDuplicateSequence))
	})

	t.Run("independent of other errors", func(t *testing.T) {
		res := Validate(
			[]Stage{stage("a", 1), stage("b", 1)},
			[]Transition{edge("t1", "a", "missing"), edge("t2", "b", "b")},
		)
		assert.Equal(t, 1, res.Count(CodeDuplicateSequence))
		assert.Equal(t, 1, res.Count(CodeRefNotFound))
		assert.Equal(t, 1, res.Count(CodeSelfLoop))
	})
}

func TestValidate_StageFields(t *testing.T) {
	tests := []struct {
		name  string
		stage Stage
		code  string
		path  string
	}{
		{"missing id", Stage{Name: "X", Sequence: 2}, CodeRequired, "stages[1].id"},
		{"missing name", Stage{ID: "x", Sequence: 2}, CodeRequired, "stages[1].name"},
		{"name too long", Stage{ID: "x", Name: strings.Repeat("n", 101), Sequence: 2}, CodeNameTooLong, "stages[1].name"},
		{"zero sequence", Stage{ID: "x", Name: "X"}, CodeInvalidSequence, "stages[1].sequence"},
		{"negative sequence", Stage{ID: "x", Name: "X", Sequence: -4}, CodeInvalidSequence, "stages[1].sequence"},
		{"duplicate name", Stage{ID: "x", Name: "A", Sequence: 2}, CodeDuplicateName, "stages[1].name"},
		{"duplicate id", Stage{ID: "a", Name: "X", Sequence: 2}, CodeDuplicateID, "stages[1].id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate([]Stage{stage("a", 1), tt.stage}, nil)
			require.False(t, res.OK())
			require.True(t, res.HasCode(tt.code), "errors: %v", res.Errors)

			for _, e := range res.Errors {
				if e.Code == tt.code {
					assert.Equal(t, tt.path, e.Path)
				}
			}
		})
	}
}

func TestValidate_NameAtLimitIsAccepted(t *testing.T) {
	res := Validate([]Stage{{ID: "a", Name: strings.Repeat("é", 100), Sequence: 1}}, nil)
	assert.True(t, res.OK(), "errors: %v", res.Errors)
}

func TestValidate_EmptyStages(t *testing.T) {
	res := Validate(nil, []Transition{edge("t1", "a", "b")})

	require.Len(t, res.Errors, 1)
	assert.Equal(t, "stages", res.Errors[0].Path)
	assert.Equal(t, CodeRequired, res.Errors[0].Code)
}

func TestValidate_ReferenceIntegrity(t *testing.T) {
	res := Validate(
		[]Stage{stage("a", 1), stage("b", 2)},
		[]Transition{
			edge("t1", "a", "b"),
			edge("t2", "ghost", "b"),
			edge("t3", "a", ""),
		},
	)

	require.False(t, res.OK())
	paths := map[string]string{}
	for _, e := range res.Errors {
		paths[e.Path] = e.Code
	}
	assert.Equal(t, CodeRefNotFound, paths["transitions[1].source_stage_id"])
	assert.Equal(t, CodeRequired, paths["transitions[2].target_stage_id"])
	assert.Len(t, res.Errors, 2)
}

func TestValidate_TransitionIDs(t *testing.T) {
	res := Validate(
		[]Stage{stage("a", 1), stage("b", 2), stage("c", 3)},
		[]Transition{edge("t1", "a", "b"), edge("t1", "b", "c"), edge("", "a", "c")},
	)

	assert.Equal(t, 1, res.Count(CodeDuplicateID))
	assert.Equal(t, 1, res.Count(CodeRequired))
}

func TestValidate_SelfLoop(t *testing.T) {
	res := Validate(
		[]Stage{stage("a", 1), stage("b", 2)},
		[]Transition{edge("t1", "a", "b"), edge("loop", "b", "b")},
	)

	require.Equal(t, 1, res.Count(CodeSelfLoop))
	assert.Equal(t, 0, res.Count(CodeCycle), "self-loops are excluded from cycle detection")
}

func TestValidate_Cycles(t *testing.T) {
	t.Run("two stage cycle", func(t *testing.T) {
		res := Validate(
			[]Stage{stage("a", 1), stage("b", 2)},
			[]Transition{edge("t1", "a", "b"), edge("t2", "b", "a")},
		)
		require.Equal(t, 1, res.Count(CodeCycle))
		for _, e := range res.Errors {
			if e.Code == CodeCycle {
				assert.Equal(t, []string{"a", "b"}, e.StageIDs)
				assert.Equal(t, "transitions[1]", e.Path)
				assert.Contains(t, e.Message, "a -> b -> a")
			}
		}
	})

	t.Run("cycle behind an acyclic prefix", func(t *testing.T) {
		res := Validate(
			[]Stage{stage("a", 1), stage("b", 2), stage("c", 3), stage("d", 4)},
			[]Transition{
				edge("t1", "a", "b"),
				edge("t2", "b", "c"),
				edge("t3", "c", "d"),
				edge("t4", "d", "b"),
			},
		)
		require.Equal(t, 1, res.Count(CodeCycle))
		for _, e := range res.Errors {
			if e.Code == CodeCycle {
				assert.Equal(t, []string{"b", "c", "d"}, e.StageIDs)
			}
		}
	})

	t.Run("diamond is acyclic", func(t *testing.T) {
		res := Validate(
			[]Stage{stage("a", 1), stage("b", 2), stage("c", 3), stage("d", 4)},
			[]Transition{
				edge("t1", "a", "b"),
				edge("t2", "a", "c"),
				edge("t3", "b", "d"),
				edge("t4", "c", "d"),
			},
		)
		assert.True(t, res.OK(), "errors: %v", res.Errors)
	})

	t.Run("edges with dangling refs are ignored", func(t *testing.T) {
		res := Validate(
			[]Stage{stage("a", 1), stage("b", 2)},
			[]Transition{edge("t1", "a", "b"), edge("t2", "b", "ghost"), edge("t3", "ghost", "a")},
		)
		assert.Equal(t, 0, res.Count(CodeCycle))
	})
}

func TestValidate_DeepChainDoesNotOverflow(t *testing.T) {
	const n = 20000
	stages := make([]Stage, n)
	transitions := make([]Transition, 0, n)
	for i := 0; i < n; i++ {
		stages[i] = Stage{ID: fmt.Sprintf("s%d", i), Name: fmt.Sprintf("S%d", i), Sequence: i + 1}
		if i > 0 {
			transitions = append(transitions, edge(fmt.Sprintf("t%d", i), stages[i-1].ID, stages[i].ID))
		}
	}

	res := Validate(stages, transitions)
	assert.True(t, res.OK())

	transitions = append(transitions, edge("back", stages[n-1].ID, stages[0].ID))
	res = Validate(stages, transitions)
	require.Equal(t, 1, res.Count(CodeCycle))
	for _, e := range res.Errors {
		if e.Code == CodeCycle {
			assert.Len(t, e.StageIDs, n)
		}
	}
}

func TestValidate_AcyclicGraphsNeverReportCycles(t *testing.T) {
	// Edges only go from lower to higher index, so every generated graph is a DAG.
	for n := 2; n <= 8; n++ {
		stages := make([]Stage, n)
		for i := range stages {
			stages[i] = stage(fmt.Sprintf("s%d", i), i+1)
		}
		var transitions []Transition
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if (i*7+j*3)%4 != 0 {
					transitions = append(transitions, edge(fmt.Sprintf("t%d_%d", i, j), stages[i].ID, stages[j].ID))
				}
			}
		}
		res := Validate(stages, transitions)
		assert.Equal(t, 0, res.Count(CodeCycle), "n=%d", n)
	}
}

func TestValidate_InitialStage(t *testing.T) {
	t.Run("every stage has incoming and none has sequence one", func(t *testing.T) {
		res := Validate(
			[]Stage{stage("a", 2), stage("b", 3)},
			[]Transition{edge("t1", "a", "b"), edge("t2", "b", "a")},
		)
		assert.True(t, res.HasCode(CodeNoInitialStage))
	})

	t.Run("sequence one with incoming still counts", func(t *testing.T) {
		res := Validate(
			[]Stage{stage("a", 1), stage("b", 2)},
			[]Transition{edge("t1", "a", "b"), edge("t2", "b", "a")},
		)
		assert.False(t, res.HasCode(CodeNoInitialStage))
	})

	t.Run("no incoming without sequence one", func(t *testing.T) {
		res := Validate(
			[]Stage{stage("a", 5), stage("b", 6)},
			[]Transition{edge("t1", "a", "b")},
		)
		assert.True(t, res.OK())
	})
}

func TestValidate_AmbiguousAutomaticIsWarning(t *testing.T) {
	auto := func(id, from, to string) Transition {
		tr := edge(id, from, to)
		tr.IsAutomatic = true
		return tr
	}
	conditioned := auto("t3", "a", "d")
	conditioned.Conditions = []Condition{{Name: "docs_complete"}}

	res := Validate(
		[]Stage{stage("a", 1), stage("b", 2), stage("c", 3), stage("d", 4)},
		[]Transition{auto("t1", "a", "b"), auto("t2", "a", "c"), conditioned},
	)

	assert.True(t, res.OK())
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, CodeAmbiguousAutomatic, res.Warnings[0].Code)
	assert.Equal(t, []string{"a"}, res.Warnings[0].StageIDs)
}

func TestValidate_ConditionNameRequired(t *testing.T) {
	tr := edge("t1", "a", "b")
	tr.Conditions = []Condition{{Fact: "gpa"}}

	res := Validate([]Stage{stage("a", 1), stage("b", 2)}, []Transition{tr})

	require.Len(t, res.Errors, 1)
	assert.Equal(t, "transitions[0].conditions[0].name", res.Errors[0].Path)
}
