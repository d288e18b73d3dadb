package types

import (
	"time"

	"github.com/google/uuid"
)

type ChatSession struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	NextSeq   int64     `gorm:"not null;default:0" json:"-"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (ChatSession) TableName() string {
	return "chat_session"
}
