package chat

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is an asynchronous send: the prompt is persisted here, a worker runs
// the same send coordinator with an always-live client, and the outcome is
// recorded on the row.
type Job struct {
	ID             string `gorm:"primaryKey;size:26" json:"id"` // ULID
	ConversationID string `gorm:"size:26;index;not null" json:"conversationId"`
	Prompt         string `gorm:"type:text;not null" json:"-"`

	Status JobStatus `gorm:"size:16;index;not null" json:"status"`

	// Filled when succeeded
	ResultMessageID *uint64 `gorm:"index" json:"resultMessageId"`
	// Filled when failed
	Error *string `gorm:"type:text" json:"error"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Job) TableName() string { return "chat_jobs" }
