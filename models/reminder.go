package models

import "time"

const (
	JobPending = "pending"
	JobDone    = "done"
	JobFailed  = "failed"
)

// ReminderJob is the persisted form of a scheduled one-shot job.
type ReminderJob struct {
	ID         string          `bson:"_id" json:"id"`
	Kind       string          `bson:"kind" json:"kind"`
	FireAt     time.Time       `bson:"fire_at" json:"fire_at"`
	Payload    ReminderPayload `bson:"payload" json:"payload"`
	Status     string          `bson:"status" json:"status"`
	LastError  string          `bson:"last_error,omitempty" json:"last_error,omitempty"`
	CreatedAt  time.Time       `bson:"created_at" json:"created_at"`
	FinishedAt *time.Time      `bson:"finished_at,omitempty" json:"finished_at,omitempty"`
}

// ReminderPayload is the recipient snapshot taken when the listing was created.
type ReminderPayload struct {
	ListingID    string   `bson:"listing_id" json:"listing_id"`
	Organization string   `bson:"organization" json:"organization"`
	EventName    string   `bson:"event_name" json:"event_name"`
	Recipients   []string `bson:"recipients" json:"recipients"`
}
