package chat

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content bounds for a user message, in characters.
const (
	MinContentLen = 1
	MaxContentLen = 10000
)

type Conversation struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id"` // ULID
	Title     string    `gorm:"size:64;not null" json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	// Nil until the first message lands.
	LastMessageAt *time.Time `gorm:"index" json:"lastMessageAt"`
}

func (Conversation) TableName() string { return "conversations" }

type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string    `gorm:"size:26;not null;index:idx_msg_conv_created,priority:1" json:"conversationId"`
	Role           string    `gorm:"size:16;not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"index:idx_msg_conv_created,priority:2" json:"createdAt"`
}

func (Message) TableName() string { return "messages" }
