package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncExecution records one completed channel synchronization batch. The
// newest row is the "last execution" consumed by retry-failed-only.
type SyncExecution struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	RunID   string `gorm:"type:varchar(64);not null;uniqueIndex"` // Opaque run identifier.
	Trigger string `gorm:"type:varchar(32);not null"`             // "manual" or "auto".

	Items datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Per-channel outcome records.

	Total        int `gorm:"not null;default:0"` // Channels in the batch.
	SuccessCount int `gorm:"not null;default:0"` // Channels fetched successfully.
	FailureCount int `gorm:"not null;default:0"` // Channels that exhausted retries.

	StartedAt  time.Time `gorm:"not null"`                // When the batch started.
	FinishedAt time.Time `gorm:"not null;index"`          // When the batch finished.
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
