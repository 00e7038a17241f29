package submission

// Pub/sub channels carrying gamification events to SSE streams.
const (
	ChannelSubmissions = "events:submissions"
	ChannelBadges      = "events:badges"
)

// SubmissionEvent is published after every recorded submission.
type SubmissionEvent struct {
	SubmissionID int64    `json:"submission_id"`
	UserID       int64    `json:"user_id"`
	QuestID      int64    `json:"quest_id"`
	Passed       bool     `json:"passed"`
	Score        *float64 `json:"score"`
	XPAwarded    int      `json:"xp_awarded"`
	Level        int      `json:"level"`
	Streak       int      `json:"streak"`
}

// BadgeEvent is published once per newly earned badge.
type BadgeEvent struct {
	UserID    int64  `json:"user_id"`
	BadgeID   int64  `json:"badge_id"`
	BadgeName string `json:"badge_name"`
}
