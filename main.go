package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apirest "github.com/modelquest/server/api/rest"
	"github.com/modelquest/server/api/sse"
	"github.com/modelquest/server/audit"
	"github.com/modelquest/server/cache"
	"github.com/modelquest/server/config"
	dbadapter "github.com/modelquest/server/db"
	"github.com/modelquest/server/game/badge"
	"github.com/modelquest/server/game/leaderboard"
	"github.com/modelquest/server/game/submission"
	"github.com/modelquest/server/mlengine"
	mw "github.com/modelquest/server/middleware"
	"github.com/modelquest/server/model"
	"github.com/modelquest/server/resource"
	"github.com/modelquest/server/scheduler"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Seed content ----
	seed, err := resource.Load(cfg.Seed.DataPath)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	if err := seed.Apply(db, logger); err != nil {
		log.Fatalf("seed apply: %v", err)
	}

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Services ----
	board := leaderboard.NewService(db, c, logger)
	subs := submission.NewService(submission.Options{
		DB:          db,
		Evaluator:   mlengine.NewEvaluator(cfg.Eval.DatasetsPath, logger),
		Badges:      badge.NewService(db, logger),
		Leaderboard: board,
		PubSub:      pubsub,
		Logger:      logger,
		UploadsPath: cfg.Eval.UploadsPath,
		Workers:     cfg.Eval.Workers,
		Timeout:     cfg.Eval.Timeout,
	})

	// ---- Periodic Scheduler Tasks ----
	sched.AddTicker("leaderboard_refresh", cfg.Eval.LeaderboardRefresh, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := board.Refresh(ctx); err != nil {
			logger.Error("leaderboard refresh failed", zap.Error(err))
		}
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	apirest.RegisterRoutes(r, apirest.Deps{
		DB:          db,
		Cache:       c,
		PubSub:      pubsub,
		Submissions: subs,
		Leaderboard: board,
		Audit:       auditSvc,
		Scheduler:   sched,
		Security:    cfg.Security,
		AdminKey:    cfg.Server.AdminKey,
		AdminIPs:    cfg.Server.AdminIPs,
		Logger:      logger,
	})

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
