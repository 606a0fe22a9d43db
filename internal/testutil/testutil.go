// Package testutil holds fixtures shared by package tests: an isolated
// in-memory SQLite database per test and a miniredis-backed cache.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
)

// NewDB opens a migrated in-memory SQLite database private to t.
//
// The pool is capped at one connection: SQLite serializes writers anyway, and
// a single connection turns concurrent transactions into queued ones instead
// of "database is locked" errors.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc:        func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	return gdb
}

// NewRedis starts a miniredis and returns a cache bound to it.
func NewRedis(t testing.TB) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.Password = ""
	cfg.Redis.DB = 0

	rc := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = rc.Client.Close() })
	return rc, mr
}

// AddUser inserts a user and its profile. A zero Profile.UserID takes id.
func AddUser(t testing.TB, gdb *gorm.DB, id uint64, p db.Profile) {
	t.Helper()

	now := time.Now().UTC()
	require.NoError(t, gdb.Create(&db.User{
		ID:           id,
		Username:     fmt.Sprintf("user%d", id),
		Email:        fmt.Sprintf("user%d@test.com", id),
		PasswordHash: "x",
		Active:       true,
		LastActiveAt: &now,
	}).Error)

	p.UserID = id
	require.NoError(t, gdb.Create(&p).Error)
}

// AddCompleteUsers inserts completed profiles with a shared answer and interest set.
func AddCompleteUsers(t testing.TB, gdb *gorm.DB, ids ...uint64) {
	t.Helper()
	for _, id := range ids {
		AddUser(t, gdb, id, CompleteProfile(int(id%10)+1, "hiking", "music"))
	}
}

// CompleteProfile builds a completed profile whose single numeric answer is n.
func CompleteProfile(n int, interests ...string) db.Profile {
	return db.Profile{
		Completed: true,
		Age:       30,
		Gender:    "female",
		Interests: interests,
		Answers: []domain.Answer{
			{QuestionID: "q1", Category: domain.CategoryValues, Kind: domain.AnswerNumeric, Numeric: &n},
		},
	}
}

// SetPremium gives userID an open-ended premium subscription.
func SetPremium(t testing.TB, gdb *gorm.DB, userID uint64) {
	t.Helper()
	require.NoError(t, gdb.Create(&db.Subscription{UserID: userID, Tier: "premium"}).Error)
}
