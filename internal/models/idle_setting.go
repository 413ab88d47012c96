package models

import "time"

// IdleTimeoutSetting stores the idle countdown configuration for a session,
// independently of conversation snapshots.
type IdleTimeoutSetting struct {
	ID                      uint   `gorm:"primaryKey;autoIncrement"`
	SessionID               string `gorm:"size:128;uniqueIndex;not null"`
	DurationSeconds         int    `gorm:"not null;default:300"`
	WarningThresholdSeconds int    `gorm:"not null;default:60"`
	Enabled                 bool   `gorm:"not null;default:true"`
	UpdatedAt               time.Time
}
