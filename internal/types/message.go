package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message rows are append-only: a streamed assistant reply is written once,
// in full, after the stream completes. Seq is claimed from the session's
// next_seq counter so insertion order is the conversation order.
type Message struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_message_session_seq,priority:1" json:"session_id"`
	Role      string    `gorm:"not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Seq       int64     `gorm:"not null;uniqueIndex:uq_message_session_seq,priority:2" json:"seq"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Message) TableName() string {
	return "message"
}
