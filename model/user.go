package model

import "time"

// User account status values.
const (
	UserStatusBanned = 0
	UserStatusActive = 1
)

// User represents a registered learner account with its gamification stats.
type User struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"uniqueIndex;size:32;not null" json:"username"`
	Email        string `gorm:"uniqueIndex;size:128;not null" json:"email"`
	PasswordHash string `gorm:"size:64;not null" json:"-"`
	Status       int    `gorm:"default:1" json:"status"` // 0=banned 1=normal

	// Gamification stats. Level is always derived from XP, never set directly.
	XP             int        `gorm:"default:0" json:"xp"`
	Level          int        `gorm:"default:1" json:"level"`
	CurrentStreak  int        `gorm:"default:0" json:"current_streak"`
	LastActivityAt *time.Time `json:"last_activity_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
