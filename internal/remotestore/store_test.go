package remotestore

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/trackmate/server/internal/record"
	apperrors "github.com/trackmate/server/internal/shared/errors"
)

// newTestStore runs against an in-memory database. The redis client points
// at a closed port; publish failures are logged and swallowed, which is the
// production contract too.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := New(db, rdb, zap.NewNop(), nil)
	require.NoError(t, err)
	return store
}

func TestFetch_MissingUser(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Fetch(context.Background(), "nobody")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestWrite_StampsCopyNotCaller(t *testing.T) {
	store := newTestStore(t)

	doc := record.NewUserDocument()
	doc.LastUpdated = 7
	doc.Year("2025").Day("2025-06-02").Note = "hello"

	stamp, err := store.Write(context.Background(), "user-1", doc)
	require.NoError(t, err)
	assert.Greater(t, stamp, int64(7))

	// The caller's document is untouched; stamping happens on a copy so
	// a pipeline holding this pointer as live state never sees a bare
	// write from another goroutine.
	assert.Equal(t, int64(7), doc.LastUpdated)

	stored, err := store.Fetch(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, stamp, stored.LastUpdated)
	assert.Equal(t, "hello", stored.Year("2025").Day("2025-06-02").Note)
}

func TestWrite_Upserts(t *testing.T) {
	store := newTestStore(t)

	doc := record.NewUserDocument()
	doc.Year("2025").Day("2025-06-02").Note = "first"
	_, err := store.Write(context.Background(), "user-1", doc)
	require.NoError(t, err)

	doc.Year("2025").Day("2025-06-02").Note = "second"
	stamp, err := store.Write(context.Background(), "user-1", doc)
	require.NoError(t, err)

	stored, err := store.Fetch(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "second", stored.Year("2025").Day("2025-06-02").Note)
	assert.Equal(t, stamp, stored.LastUpdated)
}

func TestReplace_KeepsTeamFields(t *testing.T) {
	store := newTestStore(t)

	doc := record.NewUserDocument()
	doc.TeamID = "ABCD1234"
	doc.TeamRole = record.TeamRoleMember
	doc.LeaveTypes = []record.LeaveType{{ID: "annual", Name: "Annual", TotalDays: 20}}
	doc.Year("2025").Day("2025-06-02").Note = "gone after reset"
	_, err := store.Write(context.Background(), "user-1", doc)
	require.NoError(t, err)

	_, err = store.Replace(context.Background(), "user-1", nil, nil)
	require.NoError(t, err)

	stored, err := store.Fetch(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, stored.YearlyData)
	assert.Empty(t, stored.LeaveTypes)
	assert.Equal(t, "ABCD1234", stored.TeamID)
	assert.Equal(t, record.TeamRoleMember, stored.TeamRole)
}
