package rest

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/modelquest/server/audit"
	"github.com/modelquest/server/cache"
	"github.com/modelquest/server/config"
	"github.com/modelquest/server/game/leaderboard"
	"github.com/modelquest/server/game/submission"
	mw "github.com/modelquest/server/middleware"
	"github.com/modelquest/server/scheduler"
)

// Deps bundles everything the REST routes need.
type Deps struct {
	DB          *gorm.DB
	Cache       cache.Cache
	PubSub      cache.PubSub
	Submissions *submission.Service
	Leaderboard *leaderboard.Service
	Audit       *audit.Service
	Scheduler   *scheduler.Scheduler
	Security    config.SecurityConfig
	AdminKey    string
	AdminIPs    []string
	Logger      *zap.Logger
}

// RegisterRoutes mounts every REST endpoint on the engine.
func RegisterRoutes(r *gin.Engine, d Deps) {
	authH := NewAuthHandler(d.DB, d.Cache, d.Security)
	questH := NewQuestHandler(d.DB, d.Submissions, d.Audit, d.Logger)
	userH := NewUserHandler(d.DB, d.Submissions, d.Leaderboard, d.Logger)
	boardH := NewLeaderboardHandler(d.Leaderboard)
	adminH := NewAdminHandler(d.DB, d.Leaderboard, d.Scheduler, d.PubSub, d.Logger)

	api := r.Group("/api")

	api.POST("/auth/register", authH.Register)
	api.POST("/auth/login", authH.Login)
	api.POST("/auth/logout", authH.Logout)

	authed := api.Group("", mw.Auth(d.Security, d.Cache))
	authed.POST("/auth/refresh", authH.Refresh)

	authed.GET("/tracks", questH.ListTracks)
	authed.GET("/quests/:id", questH.GetQuest)
	authed.POST("/quests/:id/submissions", questH.Submit)
	authed.GET("/quests/:id/submissions", questH.ListSubmissions)

	authed.GET("/user/me", userH.Me)
	authed.GET("/user/progress", userH.Progress)
	authed.GET("/user/badges", userH.Badges)

	authed.GET("/leaderboard", boardH.Top)
	authed.GET("/leaderboard/me", boardH.Me)

	admin := api.Group("/admin", mw.IPWhitelist(d.AdminIPs), RequireAdminKey(d.AdminKey))
	admin.GET("/scheduler", adminH.ListScheduler)
	admin.POST("/users/:id/ban", adminH.BanUser)
	admin.POST("/users/:id/unban", adminH.UnbanUser)
	admin.DELETE("/quests/:id", adminH.DeleteQuest)
	admin.POST("/leaderboard/refresh", boardH.Refresh)
	admin.POST("/announce", adminH.Announce)
}
