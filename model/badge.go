package model

import "time"

// Badge condition types.
const (
	BadgeXPThreshold     = "xp_threshold"
	BadgeQuestCompletion = "quest_completion"
	BadgeStreak          = "streak"
	BadgePerfectScore    = "perfect_score"
)

// Badge is a one-time achievement definition. Static reference data.
type Badge struct {
	ID             int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Description    string `gorm:"type:text" json:"description"`
	Icon           string `gorm:"size:16" json:"icon"`
	ConditionType  string `gorm:"size:32;not null" json:"condition_type"`
	ConditionValue int64  `gorm:"not null" json:"condition_value"`
}

// UserBadge records a badge grant. The composite unique index enforces
// at most one row per (user, badge) pair; grants are never revoked.
type UserBadge struct {
	ID       int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID   int64     `gorm:"uniqueIndex:idx_user_badge;not null" json:"user_id"`
	BadgeID  int64     `gorm:"uniqueIndex:idx_user_badge;not null" json:"badge_id"`
	EarnedAt time.Time `gorm:"autoCreateTime" json:"earned_at"`
}
