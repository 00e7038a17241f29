package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/modelquest/server/cache"
	"github.com/modelquest/server/game/leaderboard"
	"github.com/modelquest/server/model"
	"github.com/modelquest/server/scheduler"
)

// AdminHandler handles operator endpoints.
type AdminHandler struct {
	db     *gorm.DB
	board  *leaderboard.Service
	sched  *scheduler.Scheduler
	pubsub cache.PubSub
	logger *zap.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(db *gorm.DB, board *leaderboard.Service, sched *scheduler.Scheduler, ps cache.PubSub, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, board: board, sched: sched, pubsub: ps, logger: logger}
}

// RequireAdminKey guards the admin route group with a shared key header.
func RequireAdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" || c.GetHeader("X-Admin-Key") != key {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// ListScheduler handles GET /api/admin/scheduler.
func (h *AdminHandler) ListScheduler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tickers": h.sched.ListTickers()})
}

// BanUser handles POST /api/admin/users/:id/ban.
// Bans the account and drops it from the cached leaderboard.
func (h *AdminHandler) BanUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	res := h.db.Model(&model.User{}).Where("id = ?", userID).
		Update("status", model.UserStatusBanned)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	h.board.RemoveUser(c.Request.Context(), userID)
	h.logger.Warn("user banned", zap.Int64("user_id", userID))
	c.JSON(http.StatusOK, gin.H{"banned": userID})
}

// UnbanUser handles POST /api/admin/users/:id/unban.
func (h *AdminHandler) UnbanUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	res := h.db.Model(&model.User{}).Where("id = ?", userID).
		Update("status", model.UserStatusActive)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unbanned": userID})
}

// DeleteQuest handles DELETE /api/admin/quests/:id.
// Dependent submissions are removed in the same transaction so no orphan
// rows survive.
func (h *AdminHandler) DeleteQuest(c *gin.Context) {
	questID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quest id"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("quest_id = ?", questID).Delete(&model.Submission{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Quest{}, questID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "quest not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": questID})
}

type announceRequest struct {
	Message string `json:"message" binding:"required,max=512"`
}

// Announce handles POST /api/admin/announce.
// Broadcasts a message to every connected SSE client.
func (h *AdminHandler) Announce(c *gin.Context) {
	var req announceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.pubsub.Publish(c.Request.Context(), "announce", req.Message); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "publish failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"announced": true})
}
