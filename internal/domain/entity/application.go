package entity

import "time"

// Application is one applicant's instance of a workflow. CurrentStageID
// mirrors the stage of the latest status history entry.
type Application struct {
	ID             string    `json:"id"`
	WorkflowID     string    `json:"workflow_id"`
	ApplicantID    string    `json:"applicant_id"`
	CurrentStageID string    `json:"current_stage_id"`
	Terminal       bool      `json:"terminal"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
