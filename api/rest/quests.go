package rest

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/modelquest/server/audit"
	"github.com/modelquest/server/game/submission"
	mw "github.com/modelquest/server/middleware"
	"github.com/modelquest/server/model"
)

// maxArtifactSize caps uploaded model files at 16 MiB.
const maxArtifactSize = 16 << 20

// QuestHandler handles track and quest REST endpoints.
type QuestHandler struct {
	db     *gorm.DB
	subs   *submission.Service
	audit  *audit.Service
	logger *zap.Logger
}

// NewQuestHandler creates a new QuestHandler.
func NewQuestHandler(db *gorm.DB, subs *submission.Service, auditSvc *audit.Service, logger *zap.Logger) *QuestHandler {
	return &QuestHandler{db: db, subs: subs, audit: auditSvc, logger: logger}
}

type questView struct {
	model.Quest
	Completed bool     `json:"completed"`
	Attempts  int64    `json:"attempts"`
	BestScore *float64 `json:"best_score"`
}

type trackView struct {
	model.Track
	Quests []questView `json:"quests"`
}

// ListTracks handles GET /api/tracks.
// Returns every track with its quests, annotated with the caller's
// completion state.
func (h *QuestHandler) ListTracks(c *gin.Context) {
	userID := mw.GetUserID(c)

	var tracks []model.Track
	if err := h.db.Order("`order` ASC").Find(&tracks).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	var quests []model.Quest
	if err := h.db.Order("track_id ASC, `order` ASC").Find(&quests).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	completed, err := h.subs.CompletedQuestIDs(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	byTrack := make(map[int64][]questView)
	for _, q := range quests {
		byTrack[q.TrackID] = append(byTrack[q.TrackID], questView{
			Quest:     q,
			Completed: completed[q.ID],
		})
	}
	out := make([]trackView, len(tracks))
	for i, tr := range tracks {
		out[i] = trackView{Track: tr, Quests: byTrack[tr.ID]}
		if out[i].Quests == nil {
			out[i].Quests = []questView{}
		}
	}
	c.JSON(http.StatusOK, gin.H{"tracks": out})
}

// GetQuest handles GET /api/quests/:id.
func (h *QuestHandler) GetQuest(c *gin.Context) {
	questID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quest id"})
		return
	}

	var quest model.Quest
	if err := h.db.First(&quest, questID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "quest not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		}
		return
	}

	userID := mw.GetUserID(c)
	status, err := h.subs.Status(c.Request.Context(), userID, questID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"quest": questView{
		Quest:     quest,
		Completed: status.Completed,
		Attempts:  status.Attempts,
		BestScore: status.BestScore,
	}})
}

// Submit handles POST /api/quests/:id/submissions.
// Accepts a multipart upload with the model artifact in the "model_file"
// field, evaluates it and returns the recorded submission.
func (h *QuestHandler) Submit(c *gin.Context) {
	questID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quest id"})
		return
	}
	userID := mw.GetUserID(c)

	fileHeader, err := c.FormFile("model_file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model_file is required"})
		return
	}
	if fileHeader.Size > maxArtifactSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "model file too large"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read model file"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxArtifactSize+1))
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read model file"})
		return
	}
	if len(data) > maxArtifactSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "model file too large"})
		return
	}

	out, err := h.subs.Submit(c.Request.Context(), userID, questID, fileHeader.Filename, data)
	if err != nil {
		switch {
		case errors.Is(err, submission.ErrQuestNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "quest not found"})
		case errors.Is(err, submission.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			h.logger.Error("submit failed",
				zap.Int64("user_id", userID),
				zap.Int64("quest_id", questID),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "submission failed"})
		}
		return
	}

	h.audit.Log(audit.AuditEntry{
		TraceID:  mw.GetTraceID(c),
		UserID:   &userID,
		Action:   "submission",
		Request:  gin.H{"quest_id": questID, "file": fileHeader.Filename},
		Response: gin.H{"passed": out.Submission.Passed, "xp_awarded": out.Submission.XPAwarded},
		IP:       c.ClientIP(),
	})

	badgeNames := make([]string, len(out.NewBadges))
	for i, b := range out.NewBadges {
		badgeNames[i] = b.Name
	}
	c.JSON(http.StatusCreated, gin.H{
		"submission": out.Submission,
		"new_badges": badgeNames,
	})
}

// ListSubmissions handles GET /api/quests/:id/submissions.
// Returns the caller's submission history for the quest, newest first.
func (h *QuestHandler) ListSubmissions(c *gin.Context) {
	questID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quest id"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	subs, err := h.subs.History(c.Request.Context(), mw.GetUserID(c), questID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs})
}
