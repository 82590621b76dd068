package models

import (
	"time"

	"gorm.io/datatypes"
)

// ModelMappingSnapshot persists one complete standard-model to channel
// mapping. Snapshots are replaced wholesale; at most one row exists.
type ModelMappingSnapshot struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Trigger string         `gorm:"type:varchar(32);not null"`        // "manual" or "auto".
	Mapping datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // standardModel -> entry payload.

	ChannelCount int `gorm:"not null;default:0"` // Enabled channels considered.
	MappingCount int `gorm:"not null;default:0"` // Entries emitted.

	GeneratedAt time.Time `gorm:"not null"`                // When the mapping was computed.
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
