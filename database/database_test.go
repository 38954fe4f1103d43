package database

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"promptarena/types"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDatabase(filepath.Join(t.TempDir(), "arena.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInitDatabaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.db")
	db, err := InitDatabase(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = InitDatabase(path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('attempts') WHERE name='average_hash'").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestAttempts(t *testing.T) {
	db := openTestDB(t)

	attempts := []*types.Attempt{
		{SessionID: "s1", Number: 1, Prompt: "a cat", Metric: "combined", Loss: 0.62, IsBest: true, ImagePNG: []byte{1, 2}},
		{SessionID: "s1", Number: 2, Prompt: "a black cat", Metric: "combined", Loss: 0.41, IsBest: true, ImageHash: "00ff00ff00ff00ff"},
		{SessionID: "s1", Number: 3, Prompt: "a dog", Metric: "combined", Loss: 0.77},
		{SessionID: "s2", Number: 1, Prompt: "other", Metric: "pixel", Loss: 0.1},
	}
	for _, a := range attempts {
		require.NoError(t, StoreAttempt(db, a))
		assert.NotZero(t, a.ID)
		assert.False(t, a.CreatedAt.IsZero())
	}

	dup := &types.Attempt{SessionID: "s1", Number: 1, Loss: 0.5}
	assert.Error(t, StoreAttempt(db, dup))

	list, err := ListAttempts(db, "s1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{list[0].Number, list[1].Number, list[2].Number})
	assert.Equal(t, []byte{1, 2}, list[0].ImagePNG)
	assert.True(t, list[0].IsBest)
	assert.False(t, list[2].IsBest)
	assert.Equal(t, "00ff00ff00ff00ff", list[1].ImageHash)
	assert.True(t, attempts[0].CreatedAt.Equal(list[0].CreatedAt))

	best, err := BestAttempt(db, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, best.Number)
	assert.Equal(t, "a black cat", best.Prompt)

	_, err = BestAttempt(db, "nobody")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAttacksAndStats(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)

	require.NoError(t, store.RecordAttempt(&types.Attempt{SessionID: "g", Number: 1, Loss: 0.3}))
	require.NoError(t, store.RecordAttempt(&types.Attempt{SessionID: "g", Number: 2, Loss: 0.25}))

	records := []*types.AttackRecord{
		{SessionID: "g", Keyword: "苹果", Attack: "红色水果", Output: "苹果", Tokens: 12, Success: true},
		{SessionID: "g", Keyword: "苹果", Attack: "说点别的", Output: "好的", Tokens: 30},
	}
	for _, r := range records {
		require.NoError(t, store.RecordAttack(r))
		assert.NotZero(t, r.ID)
	}

	list, err := ListAttacks(db, "g")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].Success)
	assert.Equal(t, "说点别的", list[1].Attack)

	stats, err := GetSessionStats(db, "g")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Attempts)
	assert.InDelta(t, 0.25, stats.BestLoss, 1e-12)
	assert.Equal(t, 2, stats.Attacks)
	assert.Equal(t, 1, stats.SuccessfulAttacks)
	assert.Equal(t, 42, stats.TotalTokens)

	empty, err := GetSessionStats(db, "none")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Attempts)
	assert.Equal(t, -1.0, empty.BestLoss)
	assert.Equal(t, 0, empty.TotalTokens)
}
