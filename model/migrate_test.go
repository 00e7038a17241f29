package model_test

import (
	"testing"
	"time"

	"github.com/modelquest/server/model"
	"github.com/modelquest/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	// User
	user := &model.User{Username: "test_user", Email: "test@example.com", PasswordHash: "hash", Status: 1}
	require.NoError(t, db.Create(user).Error)
	assert.Greater(t, user.ID, int64(0))

	var found model.User
	require.NoError(t, db.First(&found, user.ID).Error)
	assert.Equal(t, "test_user", found.Username)
	assert.Equal(t, 1, found.Level)

	// Track + Quest
	track := &model.Track{Name: "Regression Basics", Order: 1}
	require.NoError(t, db.Create(track).Error)

	quest := &model.Quest{
		TrackID:     track.ID,
		Title:       "Linear Regression Challenge",
		TaskType:    "regression",
		Order:       1,
		XPReward:    100,
		DatasetName: "housing_train.csv",
		MetricName:  "r2_score",
		Threshold:   0.80,
		Config:      datatypes.JSON([]byte(`{"target_column":"price","test_size":0.2,"random_state":42}`)),
	}
	require.NoError(t, db.Create(quest).Error)

	// Submission
	score := 0.82
	sub := &model.Submission{
		UserID:    user.ID,
		QuestID:   quest.ID,
		ModelPath: "/tmp/model.json",
		Score:     &score,
		Passed:    true,
		XPAwarded: 100,
	}
	require.NoError(t, db.Create(sub).Error)

	// Badge + UserBadge
	badge := &model.Badge{Name: "First Steps", ConditionType: model.BadgeQuestCompletion, ConditionValue: 1}
	require.NoError(t, db.Create(badge).Error)
	require.NoError(t, db.Create(&model.UserBadge{UserID: user.ID, BadgeID: badge.ID}).Error)

	// AuditLog
	al := &model.AuditLog{
		TraceID: "trace-001", Action: "submission",
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.Create(al).Error)
}

func TestUserBadge_UniquePerPair(t *testing.T) {
	db := testutil.SetupTestDB(t)

	user := &model.User{Username: "dupe", Email: "dupe@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(user).Error)
	badge := &model.Badge{Name: "Streak Master", ConditionType: model.BadgeStreak, ConditionValue: 7}
	require.NoError(t, db.Create(badge).Error)

	require.NoError(t, db.Create(&model.UserBadge{UserID: user.ID, BadgeID: badge.ID}).Error)
	err := db.Create(&model.UserBadge{UserID: user.ID, BadgeID: badge.ID}).Error
	assert.Error(t, err, "second grant for the same (user, badge) must hit the unique index")
}
