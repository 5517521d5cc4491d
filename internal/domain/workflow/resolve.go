package workflow

import "fmt"

// Resolve returns copies of stages and transitions with every missing id
// assigned by newID and every stage temp id reference in transitions replaced
// by the stage's stable id. TempID is cleared on the returned stages and
// numeric condition values are widened to float64.
func Resolve(stages []Stage, transitions []Transition, newID func() string) ([]Stage, []Transition, []ValidationError) {
	var errs []ValidationError

	ids := make(map[string]int, len(stages))
	for i, s := range stages {
		if s.ID != "" {
			if _, seen := ids[s.ID]; !seen {
				ids[s.ID] = i
			}
		}
	}

	outStages := make([]Stage, len(stages))
	tokens := make(map[string]string, len(stages))
	tokenOwner := make(map[string]int, len(stages))

	for i, s := range stages {
		c := copyStage(s)
		if c.ID == "" {
			c.ID = newID()
		}
		if s.TempID != "" {
			sp := fmt.Sprintf("stages[%d].temp_id", i)
			if first, dup := tokenOwner[s.TempID]; dup {
				errs = append(errs, ValidationError{
					Path:    sp,
					Code:    CodeDuplicateTempID,
					Message: fmt.Sprintf("temp id %q already used by stages[%d]", s.TempID, first),
				})
			} else if owner, clash := ids[s.TempID]; clash && owner != i {
				errs = append(errs, ValidationError{
					Path:    sp,
					Code:    CodeTempIDConflict,
					Message: fmt.Sprintf("temp id %q is also the id of stages[%d]", s.TempID, owner),
				})
			} else {
				tokenOwner[s.TempID] = i
				tokens[s.TempID] = c.ID
			}
		}
		c.TempID = ""
		outStages[i] = c
	}

	outTransitions := make([]Transition, len(transitions))
	for k, t := range transitions {
		c := copyTransition(t)
		if c.ID == "" {
			c.ID = newID()
		}
		if id, ok := tokens[c.SourceStageID]; ok {
			c.SourceStageID = id
		}
		if id, ok := tokens[c.TargetStageID]; ok {
			c.TargetStageID = id
		}
		outTransitions[k] = c
	}

	return outStages, outTransitions, errs
}

func copyStage(s Stage) Stage {
	c := s
	c.RequiredDocumentTypes = cloneStrings(s.RequiredDocumentTypes)
	c.RequiredActions = cloneStrings(s.RequiredActions)
	c.NotificationTriggers = cloneStrings(s.NotificationTriggers)
	return c
}

func copyTransition(t Transition) Transition {
	c := t
	if t.Conditions != nil {
		c.Conditions = make([]Condition, len(t.Conditions))
		for i, cond := range t.Conditions {
			c.Conditions[i] = cond.Normalized()
		}
	}
	c.RequiredPermissions = cloneStrings(t.RequiredPermissions)
	return c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
