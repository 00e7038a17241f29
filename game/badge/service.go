// Package badge awards achievement badges based on progression state.
package badge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/modelquest/server/model"
)

// PerfectScoreFloor is the minimum submission score that counts as perfect.
const PerfectScoreFloor = 0.99

// Service evaluates badge conditions against a user's current stats and
// grants whatever is newly earned. All checks are idempotent: a badge a
// user already holds is never granted twice, enforced both by the owned
// set lookup and by the unique index on (user_id, badge_id).
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// CheckAndAward runs every defined badge condition for the user and grants
// the ones newly satisfied. Returns the badges granted by this call.
func (s *Service) CheckAndAward(ctx context.Context, userID int64) ([]model.Badge, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}

	var badges []model.Badge
	if err := s.db.WithContext(ctx).Find(&badges).Error; err != nil {
		return nil, fmt.Errorf("load badges: %w", err)
	}

	owned := map[int64]bool{}
	var held []model.UserBadge
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&held).Error; err != nil {
		return nil, fmt.Errorf("load user badges: %w", err)
	}
	for _, ub := range held {
		owned[ub.BadgeID] = true
	}

	var granted []model.Badge
	for _, b := range badges {
		if owned[b.ID] {
			continue
		}
		ok, err := s.conditionMet(ctx, &user, &b)
		if err != nil {
			return granted, err
		}
		if !ok {
			continue
		}
		ub := model.UserBadge{UserID: userID, BadgeID: b.ID, EarnedAt: time.Now()}
		if err := s.db.WithContext(ctx).Create(&ub).Error; err != nil {
			if isUniqueViolation(err) {
				// lost a race with a concurrent grant, already held
				continue
			}
			return granted, fmt.Errorf("grant badge %q: %w", b.Name, err)
		}
		s.logger.Info("badge earned",
			zap.Int64("user_id", userID),
			zap.String("badge", b.Name))
		granted = append(granted, b)
	}
	return granted, nil
}

func (s *Service) conditionMet(ctx context.Context, user *model.User, b *model.Badge) (bool, error) {
	switch b.ConditionType {
	case model.BadgeXPThreshold:
		return int64(user.XP) >= b.ConditionValue, nil
	case model.BadgeStreak:
		return int64(user.CurrentStreak) >= b.ConditionValue, nil
	case model.BadgeQuestCompletion:
		var n int64
		err := s.db.WithContext(ctx).Model(&model.Submission{}).
			Where("user_id = ? AND passed = ?", user.ID, true).
			Distinct("quest_id").Count(&n).Error
		if err != nil {
			return false, fmt.Errorf("count completed quests: %w", err)
		}
		return n >= b.ConditionValue, nil
	case model.BadgePerfectScore:
		var n int64
		err := s.db.WithContext(ctx).Model(&model.Submission{}).
			Where("user_id = ? AND passed = ? AND score >= ?", user.ID, true, PerfectScoreFloor).
			Count(&n).Error
		if err != nil {
			return false, fmt.Errorf("count perfect scores: %w", err)
		}
		return n >= b.ConditionValue, nil
	default:
		s.logger.Warn("unknown badge condition, skipping",
			zap.Int64("badge_id", b.ID),
			zap.String("condition", b.ConditionType))
		return false, nil
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "Duplicate entry")
}
