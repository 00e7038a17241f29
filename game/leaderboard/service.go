// Package leaderboard ranks users by XP.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/modelquest/server/cache"
	"github.com/modelquest/server/model"
)

const zKey = "leaderboard:xp"
const maxEntries = 100

// Entry is one row of the leaderboard.
type Entry struct {
	Rank            int    `json:"rank"`
	UserID          int64  `json:"user_id"`
	Username        string `json:"username"`
	XP              int    `json:"xp"`
	Level           int    `json:"level"`
	CompletedQuests int    `json:"completed_quests"`
}

// Service produces leaderboard views. A sorted set in the cache holds the
// XP ordering as a fast path; rows are always enriched and tie-broken from
// the DB so two users with equal XP rank by completed quest count, then by
// the lower user id.
type Service struct {
	db     *gorm.DB
	cache  cache.Cache
	logger *zap.Logger
}

func NewService(db *gorm.DB, c cache.Cache, logger *zap.Logger) *Service {
	return &Service{db: db, cache: c, logger: logger}
}

type row struct {
	ID        int64
	Username  string
	XP        int
	Level     int
	Completed int
}

// Entries returns the top users. The cache sorted set supplies the
// candidate ids when populated; otherwise the DB answers directly and the
// cache is backfilled.
func (s *Service) Entries(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > maxEntries {
		limit = maxEntries
	}

	members, err := s.cache.ZRevRange(ctx, zKey, 0, int64(limit-1))
	if err == nil && len(members) > 0 {
		ids := make([]int64, 0, len(members))
		for _, m := range members {
			id, perr := strconv.ParseInt(m, 10, 64)
			if perr != nil {
				continue
			}
			ids = append(ids, id)
		}
		rows, err := s.loadRows(ctx, ids)
		if err != nil {
			return nil, err
		}
		return rank(rows), nil
	}

	rows, err := s.topRows(ctx, limit)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		_ = s.cache.ZAdd(ctx, zKey, float64(r.XP), strconv.FormatInt(r.ID, 10))
	}
	return rank(rows), nil
}

// RankOf returns the user's position counted as one plus the number of
// users with strictly more XP. Users tied on XP therefore all report the
// same position, which can differ from their row order in Entries.
func (s *Service) RankOf(ctx context.Context, userID int64) (int, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return 0, fmt.Errorf("load user %d: %w", userID, err)
	}
	var ahead int64
	err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("status = ? AND xp > ?", model.UserStatusActive, user.XP).
		Count(&ahead).Error
	if err != nil {
		return 0, fmt.Errorf("count rank: %w", err)
	}
	return int(ahead) + 1, nil
}

// Refresh rebuilds the cache sorted set from the DB. Called on a scheduler
// tick and exposed to admins.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	rows, err := s.topRows(ctx, maxEntries)
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		if err := s.cache.ZAdd(ctx, zKey, float64(r.XP), strconv.FormatInt(r.ID, 10)); err != nil {
			return 0, err
		}
	}
	s.logger.Debug("leaderboard refreshed", zap.Int("entries", len(rows)))
	return len(rows), nil
}

// RecordXP updates a single user's score in the cache after an XP award.
func (s *Service) RecordXP(ctx context.Context, userID int64, xp int) {
	if err := s.cache.ZAdd(ctx, zKey, float64(xp), strconv.FormatInt(userID, 10)); err != nil {
		s.logger.Warn("leaderboard cache update failed",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}

// RemoveUser drops a user from the cached ranking, used when an account is
// banned.
func (s *Service) RemoveUser(ctx context.Context, userID int64) {
	if err := s.cache.ZRem(ctx, zKey, strconv.FormatInt(userID, 10)); err != nil {
		s.logger.Warn("leaderboard cache remove failed",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}

const completedExpr = "COUNT(DISTINCT CASE WHEN submissions.passed THEN submissions.quest_id END)"

func (s *Service) topRows(ctx context.Context, limit int) ([]row, error) {
	var rows []row
	err := s.db.WithContext(ctx).Table("users").
		Select("users.id, users.username, users.xp, users.level, "+completedExpr+" AS completed").
		Joins("LEFT JOIN submissions ON submissions.user_id = users.id").
		Where("users.status = ?", model.UserStatusActive).
		Group("users.id, users.username, users.xp, users.level").
		Order("users.xp DESC, completed DESC, users.id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("leaderboard query: %w", err)
	}
	return rows, nil
}

func (s *Service) loadRows(ctx context.Context, ids []int64) ([]row, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []row
	err := s.db.WithContext(ctx).Table("users").
		Select("users.id, users.username, users.xp, users.level, "+completedExpr+" AS completed").
		Joins("LEFT JOIN submissions ON submissions.user_id = users.id").
		Where("users.id IN ? AND users.status = ?", ids, model.UserStatusActive).
		Group("users.id, users.username, users.xp, users.level").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("leaderboard enrich: %w", err)
	}
	return rows, nil
}

func rank(rows []row) []Entry {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].XP != rows[j].XP {
			return rows[i].XP > rows[j].XP
		}
		if rows[i].Completed != rows[j].Completed {
			return rows[i].Completed > rows[j].Completed
		}
		return rows[i].ID < rows[j].ID
	})
	entries := make([]Entry, len(rows))
	for i, r := range rows {
		entries[i] = Entry{
			Rank:            i + 1,
			UserID:          r.ID,
			Username:        r.Username,
			XP:              r.XP,
			Level:           r.Level,
			CompletedQuests: r.Completed,
		}
	}
	return entries
}
