package models

import (
	"time"

	"gorm.io/datatypes"
)

// Setting stores one runtime-tunable configuration value as JSON.
type Setting struct {
	// Value holds JSON-encoded payloads, including bare scalars such as
	// numbers and booleans; the column stays text so sqlite's type affinity
	// cannot coerce a stored scalar into a driver-native integer.
	Key   string         `gorm:"type:varchar(255);primaryKey"`    // Setting key.
	Value datatypes.JSON `gorm:"type:text;not null;default:'{}'"` // JSON value payload.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
