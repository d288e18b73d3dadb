package types

import (
	"time"

	"gorm.io/datatypes"
)

// RecipeCacheEntry backs the DB flavor of the recipe cache, used when no
// redis is configured. Staleness is judged against CreatedAt at read time.
type RecipeCacheEntry struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	QueryKey  string         `gorm:"not null;index" json:"query_key"`
	Results   datatypes.JSON `json:"results"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
}

func (RecipeCacheEntry) TableName() string {
	return "recipe_cache"
}
