package workflow

import "time"

// HistoryEntry records that an application entered a stage
type HistoryEntry struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	Position      int       `json:"position"`
	StageID       string    `json:"stage_id"`
	EnteredAt     time.Time `json:"entered_at"`
	EnteredBy     Actor     `json:"entered_by"`
	TransitionID  string    `json:"transition_id,omitempty"`
	Note          string    `json:"note,omitempty"`
}

// History is the ordered stage-occupancy log of one application
type History []HistoryEntry

// Last returns the most recent entry
func (h History) Last() (HistoryEntry, bool) {
	if len(h) == 0 {
		return HistoryEntry{}, false
	}
	return h[len(h)-1], true
}

// CurrentStageID returns the stage of the most recent entry, or "" when empty
func (h History) CurrentStageID() string {
	last, ok := h.Last()
	if !ok {
		return ""
	}
	return last.StageID
}
