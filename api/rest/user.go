package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/modelquest/server/game/leaderboard"
	"github.com/modelquest/server/game/submission"
	mw "github.com/modelquest/server/middleware"
	"github.com/modelquest/server/model"
)

// UserHandler handles profile and progress REST endpoints.
type UserHandler struct {
	db     *gorm.DB
	subs   *submission.Service
	board  *leaderboard.Service
	logger *zap.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(db *gorm.DB, subs *submission.Service, board *leaderboard.Service, logger *zap.Logger) *UserHandler {
	return &UserHandler{db: db, subs: subs, board: board, logger: logger}
}

// Me handles GET /api/user/me.
func (h *UserHandler) Me(c *gin.Context) {
	userID := mw.GetUserID(c)

	var user model.User
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	rank, err := h.board.RankOf(c.Request.Context(), userID)
	if err != nil {
		rank = 0
	}

	// XP remaining until the next level boundary.
	next := user.Level * user.Level * 100

	c.JSON(http.StatusOK, gin.H{
		"user":          user,
		"rank":          rank,
		"next_level_xp": next,
	})
}

type trackProgress struct {
	TrackID     int64  `json:"track_id"`
	Name        string `json:"name"`
	Order       int    `json:"order"`
	RequiredXP  int    `json:"required_xp"`
	Unlocked    bool   `json:"unlocked"`
	TotalQuests int    `json:"total_quests"`
	Completed   int    `json:"completed"`
}

// Progress handles GET /api/user/progress.
// Returns per-track completion counts and unlock state.
func (h *UserHandler) Progress(c *gin.Context) {
	userID := mw.GetUserID(c)

	var user model.User
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	var tracks []model.Track
	if err := h.db.Order("`order` ASC").Find(&tracks).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	var quests []model.Quest
	if err := h.db.Select("id, track_id").Find(&quests).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	completed, err := h.subs.CompletedQuestIDs(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	total := make(map[int64]int)
	done := make(map[int64]int)
	for _, q := range quests {
		total[q.TrackID]++
		if completed[q.ID] {
			done[q.TrackID]++
		}
	}

	out := make([]trackProgress, len(tracks))
	for i, tr := range tracks {
		out[i] = trackProgress{
			TrackID:     tr.ID,
			Name:        tr.Name,
			Order:       tr.Order,
			RequiredXP:  tr.RequiredXP,
			Unlocked:    user.XP >= tr.RequiredXP,
			TotalQuests: total[tr.ID],
			Completed:   done[tr.ID],
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"xp":             user.XP,
		"level":          user.Level,
		"current_streak": user.CurrentStreak,
		"tracks":         out,
	})
}

type badgeView struct {
	model.Badge
	EarnedAt string `json:"earned_at,omitempty"`
	Earned   bool   `json:"earned"`
}

// Badges handles GET /api/user/badges.
// Lists every badge, marking the ones the caller has earned.
func (h *UserHandler) Badges(c *gin.Context) {
	userID := mw.GetUserID(c)

	var badges []model.Badge
	if err := h.db.Order("id ASC").Find(&badges).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	var owned []model.UserBadge
	if err := h.db.Where("user_id = ?", userID).Find(&owned).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	earnedAt := make(map[int64]string, len(owned))
	for _, ub := range owned {
		earnedAt[ub.BadgeID] = ub.EarnedAt.Format("2006-01-02T15:04:05Z07:00")
	}

	out := make([]badgeView, len(badges))
	for i, b := range badges {
		out[i] = badgeView{Badge: b}
		if at, ok := earnedAt[b.ID]; ok {
			out[i].Earned = true
			out[i].EarnedAt = at
		}
	}
	c.JSON(http.StatusOK, gin.H{"badges": out})
}
