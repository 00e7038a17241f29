package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/modelquest/server/game/leaderboard"
	mw "github.com/modelquest/server/middleware"
)

// LeaderboardHandler handles leaderboard REST endpoints.
type LeaderboardHandler struct {
	board *leaderboard.Service
}

// NewLeaderboardHandler creates a new LeaderboardHandler.
func NewLeaderboardHandler(board *leaderboard.Service) *LeaderboardHandler {
	return &LeaderboardHandler{board: board}
}

// Top handles GET /api/leaderboard?limit=20.
func (h *LeaderboardHandler) Top(c *gin.Context) {
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
		limit = l
	}
	entries, err := h.board.Entries(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

// Me handles GET /api/leaderboard/me.
// Returns the caller's position counted among users with strictly more XP.
func (h *LeaderboardHandler) Me(c *gin.Context) {
	rank, err := h.board.RankOf(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rank": rank})
}

// Refresh handles POST /api/admin/leaderboard/refresh.
func (h *LeaderboardHandler) Refresh(c *gin.Context) {
	n, err := h.board.Refresh(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": n})
}
