package entity

import "time"

// AuditRecord is an append-only log line written for every workflow event
type AuditRecord struct {
	ID            int64     `json:"id" db:"id"`
	EventID       string    `json:"event_id" db:"event_id"`
	EventType     string    `json:"event_type" db:"event_type"`
	ApplicationID string    `json:"application_id" db:"application_id"`
	WorkflowID    string    `json:"workflow_id" db:"workflow_id"`
	Actor         string    `json:"actor" db:"actor"`
	Detail        string    `json:"detail" db:"detail"`
	OccurredAt    time.Time `json:"occurred_at" db:"occurred_at"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
