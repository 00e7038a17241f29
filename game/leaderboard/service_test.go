package leaderboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/modelquest/server/model"
	"github.com/modelquest/server/testutil"
)

func setup(t *testing.T) (*Service, *gorm.DB) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	return NewService(db, c, zap.NewNop()), db
}

func addUser(t *testing.T, db *gorm.DB, name string, xp int) model.User {
	u := model.User{Username: name, Email: name + "@example.com", XP: xp, Level: 1, Status: model.UserStatusActive}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func addPasses(t *testing.T, db *gorm.DB, userID int64, questIDs ...int64) {
	score := 0.9
	for _, q := range questIDs {
		require.NoError(t, db.Create(&model.Submission{
			UserID: userID, QuestID: q, Passed: true, Score: &score,
		}).Error)
	}
}

func seedQuests(t *testing.T, db *gorm.DB, n int) []int64 {
	track := model.Track{Name: "Basics", Order: 1}
	require.NoError(t, db.Create(&track).Error)
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		q := model.Quest{TrackID: track.ID, Title: "q", MetricName: "accuracy", Order: i + 1}
		require.NoError(t, db.Create(&q).Error)
		ids[i] = q.ID
	}
	return ids
}

func TestEntries_OrderAndTieBreak(t *testing.T) {
	svc, db := setup(t)
	quests := seedQuests(t, db, 5)

	alice := addUser(t, db, "alice", 500)
	bob := addUser(t, db, "bob", 300)
	carol := addUser(t, db, "carol", 300)

	addPasses(t, db, alice.ID, quests[0])
	addPasses(t, db, bob.ID, quests[0], quests[1], quests[2], quests[3], quests[4])
	addPasses(t, db, carol.ID, quests[0], quests[1])

	entries, err := svc.Entries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "alice", entries[0].Username)
	assert.Equal(t, 1, entries[0].Rank)
	// equal XP: more completed quests wins
	assert.Equal(t, "bob", entries[1].Username)
	assert.Equal(t, 5, entries[1].CompletedQuests)
	assert.Equal(t, "carol", entries[2].Username)
	assert.Equal(t, 3, entries[2].Rank)
}

func TestEntries_EqualXPAndCompletedBreaksByID(t *testing.T) {
	svc, db := setup(t)

	first := addUser(t, db, "first", 200)
	second := addUser(t, db, "second", 200)

	entries, err := svc.Entries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.ID, entries[0].UserID)
	assert.Equal(t, second.ID, entries[1].UserID)
}

func TestEntries_CacheFastPath(t *testing.T) {
	svc, db := setup(t)
	addUser(t, db, "alice", 500)
	addUser(t, db, "bob", 300)

	// first call backfills the sorted set
	_, err := svc.Entries(context.Background(), 10)
	require.NoError(t, err)

	// second call serves from the cache and still enriches from the DB
	entries, err := svc.Entries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "alice", entries[0].Username)
	assert.Equal(t, 500, entries[0].XP)
}

func TestEntries_SkipsBannedUsers(t *testing.T) {
	svc, db := setup(t)
	addUser(t, db, "alice", 500)
	banned := addUser(t, db, "cheater", 9000)
	require.NoError(t, db.Model(&banned).Update("status", model.UserStatusBanned).Error)

	entries, err := svc.Entries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Username)
}

func TestRankOf_CountsStrictlyGreater(t *testing.T) {
	svc, db := setup(t)
	quests := seedQuests(t, db, 5)

	alice := addUser(t, db, "alice", 500)
	bob := addUser(t, db, "bob", 300)
	carol := addUser(t, db, "carol", 300)
	addPasses(t, db, bob.ID, quests...)
	addPasses(t, db, carol.ID, quests[0], quests[1])

	for _, c := range []struct {
		id   int64
		rank int
	}{
		{alice.ID, 1},
		{bob.ID, 2},
		// tied on XP with bob: same position, even though the full
		// leaderboard lists carol third
		{carol.ID, 2},
	} {
		r, err := svc.RankOf(context.Background(), c.id)
		require.NoError(t, err)
		assert.Equal(t, c.rank, r, "user %d", c.id)
	}
}

func TestRefreshAndRecordXP(t *testing.T) {
	svc, db := setup(t)
	alice := addUser(t, db, "alice", 100)
	addUser(t, db, "bob", 50)

	n, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// an XP award moves alice up without a full refresh
	require.NoError(t, db.Model(&model.User{}).Where("id = ?", alice.ID).Update("xp", 700).Error)
	svc.RecordXP(context.Background(), alice.ID, 700)

	entries, err := svc.Entries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, alice.ID, entries[0].UserID)
	assert.Equal(t, 700, entries[0].XP)
}

func TestRemoveUser(t *testing.T) {
	svc, db := setup(t)
	alice := addUser(t, db, "alice", 100)
	addUser(t, db, "bob", 50)

	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	require.NoError(t, db.Model(&model.User{}).Where("id = ?", alice.ID).
		Update("status", model.UserStatusBanned).Error)
	svc.RemoveUser(context.Background(), alice.ID)

	entries, err := svc.Entries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bob", entries[0].Username)
}
