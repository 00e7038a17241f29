// Package submission runs the submission workflow: persist the uploaded
// model artifact, evaluate it against the quest's dataset, record the
// attempt and apply progression exactly once per first pass.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/modelquest/server/cache"
	"github.com/modelquest/server/game/badge"
	"github.com/modelquest/server/game/leaderboard"
	"github.com/modelquest/server/game/progression"
	"github.com/modelquest/server/mlengine"
	"github.com/modelquest/server/model"
)

var (
	ErrQuestNotFound = errors.New("submission: quest not found")
	ErrUserNotFound  = errors.New("submission: user not found")
)

// Options collects the service dependencies.
type Options struct {
	DB          *gorm.DB
	Evaluator   *mlengine.Evaluator
	Badges      *badge.Service
	Leaderboard *leaderboard.Service
	PubSub      cache.PubSub
	Logger      *zap.Logger
	UploadsPath string
	Workers     int
	Timeout     time.Duration
}

// Service orchestrates submissions. Evaluations run through a bounded
// worker pool; XP is applied under a per-(user, quest) lock plus an
// in-transaction recheck so concurrent passing submissions award it once.
type Service struct {
	db          *gorm.DB
	eval        *mlengine.Evaluator
	badges      *badge.Service
	board       *leaderboard.Service
	pubsub      cache.PubSub
	logger      *zap.Logger
	uploadsPath string
	timeout     time.Duration
	pool        *workerPool
	locks       sync.Map // "userID:questID" -> *sync.Mutex
}

func NewService(opts Options) *Service {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		db:          opts.DB,
		eval:        opts.Evaluator,
		badges:      opts.Badges,
		board:       opts.Leaderboard,
		pubsub:      opts.PubSub,
		logger:      opts.Logger,
		uploadsPath: opts.UploadsPath,
		timeout:     timeout,
		pool:        newWorkerPool(opts.Workers),
	}
}

// Outcome is the full result of one submission.
type Outcome struct {
	Submission model.Submission
	NewBadges  []model.Badge
}

// Submit runs the whole workflow for one uploaded model artifact.
// Unknown quest or user fails fast with nothing recorded. Every other
// fault, evaluator failures included, still produces a submission row.
func (s *Service) Submit(ctx context.Context, userID, questID int64, filename string, data []byte) (*Outcome, error) {
	var quest model.Quest
	if err := s.db.WithContext(ctx).First(&quest, questID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestNotFound
		}
		return nil, fmt.Errorf("load quest %d: %w", questID, err)
	}
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}

	modelPath, err := s.storeArtifact(userID, questID, filename, data)
	if err != nil {
		return nil, err
	}

	result := s.evaluate(ctx, modelPath, &quest)
	passed := result.Success && result.Score >= quest.Threshold

	sub, awarded, err := s.record(ctx, userID, &quest, modelPath, result, passed)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Submission: *sub}
	if passed {
		granted, berr := s.badges.CheckAndAward(ctx, userID)
		if berr != nil {
			s.logger.Error("badge check failed",
				zap.Int64("user_id", userID), zap.Error(berr))
		}
		outcome.NewBadges = granted
		for _, b := range granted {
			s.publish(ctx, ChannelBadges, BadgeEvent{
				UserID: userID, BadgeID: b.ID, BadgeName: b.Name,
			})
		}
	}
	if awarded != nil {
		s.board.RecordXP(ctx, userID, awarded.XP)
	}

	ev := SubmissionEvent{
		SubmissionID: sub.ID,
		UserID:       userID,
		QuestID:      questID,
		Passed:       sub.Passed,
		Score:        sub.Score,
		XPAwarded:    sub.XPAwarded,
	}
	if awarded != nil {
		ev.Level = awarded.Level
		ev.Streak = awarded.CurrentStreak
	}
	s.publish(ctx, ChannelSubmissions, ev)

	s.logger.Info("submission recorded",
		zap.Int64("submission_id", sub.ID),
		zap.Int64("user_id", userID),
		zap.Int64("quest_id", questID),
		zap.Bool("passed", sub.Passed),
		zap.Int("xp_awarded", sub.XPAwarded),
	)
	return outcome, nil
}

func (s *Service) storeArtifact(userID, questID int64, filename string, data []byte) (string, error) {
	if err := os.MkdirAll(s.uploadsPath, 0o755); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "model.bin"
	}
	name := fmt.Sprintf("u%d_q%d_%s_%s", userID, questID, uuid.NewString()[:8], base)
	path := filepath.Join(s.uploadsPath, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("store artifact: %w", err)
	}
	return path, nil
}

// evaluate runs the evaluator through the worker pool with a deadline. A
// run that overshoots the deadline is abandoned; its slot is reclaimed
// when it eventually finishes.
func (s *Service) evaluate(ctx context.Context, modelPath string, quest *model.Quest) mlengine.Result {
	if err := s.pool.acquire(ctx); err != nil {
		return mlengine.Result{Logs: "Evaluation failed: " + err.Error()}
	}

	done := make(chan mlengine.Result, 1)
	go func() {
		done <- s.eval.Run(modelPath, quest.DatasetName, quest.MetricName, quest.Config)
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		s.pool.release()
		return res
	case <-timer.C:
		go func() {
			<-done
			s.pool.release()
		}()
		s.logger.Warn("evaluation timed out",
			zap.String("model", modelPath),
			zap.Duration("timeout", s.timeout))
		return mlengine.Result{Logs: fmt.Sprintf("Evaluation failed: timed out after %s", s.timeout)}
	}
}

// record writes the submission row and, on a first pass, applies XP and
// streak inside the same transaction. Returns the updated user snapshot
// when XP or streak changed.
func (s *Service) record(ctx context.Context, userID int64, quest *model.Quest, modelPath string, result mlengine.Result, passed bool) (*model.Submission, *model.User, error) {
	key := fmt.Sprintf("%d:%d", userID, quest.ID)
	muIface, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	var sub *model.Submission
	var updated *model.User
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		sub, updated, err = s.recordTx(ctx, userID, quest, modelPath, result, passed)
		if err == nil {
			return sub, updated, nil
		}
		s.logger.Warn("submission transaction failed, retrying",
			zap.Int64("user_id", userID),
			zap.Int64("quest_id", quest.ID),
			zap.Error(err))
	}
	return nil, nil, fmt.Errorf("record submission: %w", err)
}

func (s *Service) recordTx(ctx context.Context, userID int64, quest *model.Quest, modelPath string, result mlengine.Result, passed bool) (*model.Submission, *model.User, error) {
	var sub model.Submission
	var updated *model.User

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		xpAwarded := 0
		if passed {
			var prior int64
			if err := tx.Model(&model.Submission{}).
				Where("user_id = ? AND quest_id = ? AND passed = ?", userID, quest.ID, true).
				Count(&prior).Error; err != nil {
				return err
			}
			// Progression moves only on the first clear of a quest.
			// Repeat passes leave xp, level and streak untouched.
			if prior == 0 {
				var user model.User
				if err := tx.First(&user, userID).Error; err != nil {
					return err
				}
				xpAwarded = quest.XPReward
				if err := progression.AddXP(&user, xpAwarded); err != nil {
					return err
				}
				progression.UpdateStreak(&user, time.Now())
				if err := tx.Model(&model.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
					"xp":               user.XP,
					"level":            user.Level,
					"current_streak":   user.CurrentStreak,
					"last_activity_at": user.LastActivityAt,
				}).Error; err != nil {
					return err
				}
				updated = &user
			}
		}

		var score *float64
		if result.Success {
			v := result.Score
			score = &v
		}
		sub = model.Submission{
			UserID:         userID,
			QuestID:        quest.ID,
			ModelPath:      modelPath,
			Score:          score,
			Passed:         passed,
			EvaluationLogs: result.Logs,
			XPAwarded:      xpAwarded,
		}
		return tx.Create(&sub).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &sub, updated, nil
}

func (s *Service) publish(ctx context.Context, channel string, payload interface{}) {
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.pubsub.Publish(ctx, channel, string(b)); err != nil {
		s.logger.Debug("event publish failed",
			zap.String("channel", channel), zap.Error(err))
	}
}

// QuestStatus summarizes a user's standing on one quest.
type QuestStatus struct {
	Attempts  int64    `json:"attempts"`
	Completed bool     `json:"completed"`
	BestScore *float64 `json:"best_score"`
}

// Status reports attempts, completion and best score for a (user, quest)
// pair.
func (s *Service) Status(ctx context.Context, userID, questID int64) (QuestStatus, error) {
	var st QuestStatus
	base := s.db.WithContext(ctx).Model(&model.Submission{}).
		Where("user_id = ? AND quest_id = ?", userID, questID)

	if err := base.Session(&gorm.Session{}).Count(&st.Attempts).Error; err != nil {
		return st, fmt.Errorf("count attempts: %w", err)
	}
	var passes int64
	if err := base.Session(&gorm.Session{}).Where("passed = ?", true).Count(&passes).Error; err != nil {
		return st, fmt.Errorf("count passes: %w", err)
	}
	st.Completed = passes > 0

	var best *float64
	row := s.db.WithContext(ctx).Model(&model.Submission{}).
		Where("user_id = ? AND quest_id = ? AND score IS NOT NULL", userID, questID).
		Select("MAX(score)").Row()
	if err := row.Scan(&best); err == nil {
		st.BestScore = best
	}
	return st, nil
}

// History returns the user's submissions for a quest, newest first.
func (s *Service) History(ctx context.Context, userID, questID int64, limit int) ([]model.Submission, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var subs []model.Submission
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND quest_id = ?", userID, questID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}
	return subs, nil
}

// CompletedQuestIDs returns the set of quests the user has passed.
func (s *Service) CompletedQuestIDs(ctx context.Context, userID int64) (map[int64]bool, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&model.Submission{}).
		Where("user_id = ? AND passed = ?", userID, true).
		Distinct().Pluck("quest_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load completed quests: %w", err)
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}
