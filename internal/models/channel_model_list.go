package models

import (
	"time"

	"gorm.io/datatypes"
)

// ChannelModelList caches the most recent model list fetched from one
// upstream channel. A failed fetch keeps the previous list in place and
// records why, so mapping generation can fall back to last-known models.
type ChannelModelList struct {
	ChannelID int64 `gorm:"primaryKey"` // Upstream channel identifier.

	ChannelName string         `gorm:"type:varchar(255);not null"`       // Channel display name at fetch time.
	Models      datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Raw model name list.

	OK         bool   `gorm:"not null;default:false"` // Whether the last fetch succeeded.
	LastError  string `gorm:"type:text"`              // Final error message of the last fetch.
	HTTPStatus int    `gorm:"not null;default:0"`     // HTTP status of the final attempt, if any.
	Attempts   int    `gorm:"not null;default:0"`     // Attempts used by the last fetch.

	FetchedAt time.Time `gorm:"not null;index"`          // When the last fetch finished.
	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
