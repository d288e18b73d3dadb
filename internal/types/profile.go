package types

import (
	"time"

	"github.com/google/uuid"
)

// HealthProfile is one row per session. Writes are full replaces: saving an
// empty profile clears every field.
type HealthProfile struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"session_id"`
	Diet      string    `gorm:"default:''" json:"diet"`
	Allergens string    `gorm:"default:''" json:"allergens"`
	Goals     string    `gorm:"default:''" json:"goals"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (HealthProfile) TableName() string {
	return "health_profile"
}
