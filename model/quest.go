package model

import "gorm.io/datatypes"

// Track groups quests into an ordered learning path
// (e.g. "Regression Basics" → "Classification Mastery").
type Track struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `gorm:"size:64;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Order       int    `gorm:"uniqueIndex;not null" json:"order"`
	RequiredXP  int    `gorm:"default:0" json:"required_xp"`
}

// Quest is one scoring challenge: dataset + metric + threshold + reward.
// Immutable once created; the submission workflow only reads it.
type Quest struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TrackID     int64  `gorm:"index:idx_quest_track;not null" json:"track_id"`
	Title       string `gorm:"size:128;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	TaskType    string `gorm:"size:32;not null" json:"task_type"` // regression | classification
	Order       int    `gorm:"not null" json:"order"`
	XPReward    int    `gorm:"default:100" json:"xp_reward"`

	// Evaluation criteria.
	DatasetName string         `gorm:"size:128;not null" json:"dataset_name"`
	MetricName  string         `gorm:"size:32;not null" json:"metric_name"`
	Threshold   float64        `gorm:"not null" json:"threshold"`
	Config      datatypes.JSON `json:"config"` // {"target_column": "price", "test_size": 0.2, "random_state": 42}
}
