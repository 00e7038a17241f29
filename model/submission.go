package model

import "time"

// Submission is an immutable record of one evaluation attempt.
// Rows are append-only: history stays complete even for failed attempts,
// and "has this user ever passed this quest" is answered from here.
type Submission struct {
	ID      int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID  int64 `gorm:"index:idx_sub_user_quest;not null" json:"user_id"`
	QuestID int64 `gorm:"index:idx_sub_user_quest;not null" json:"quest_id"`

	// ModelPath is where the uploaded artifact was persisted.
	ModelPath string `gorm:"size:256;not null" json:"model_path"`

	// Score is nil when the evaluator failed outright.
	Score          *float64 `json:"score"`
	Passed         bool     `gorm:"default:false" json:"passed"`
	EvaluationLogs string   `gorm:"type:text" json:"evaluation_logs"`

	// XPAwarded is non-zero only on the first passing submission
	// for a (user, quest) pair.
	XPAwarded int `gorm:"default:0" json:"xp_awarded"`

	CreatedAt time.Time `gorm:"index:idx_sub_created;autoCreateTime" json:"created_at"`
}
