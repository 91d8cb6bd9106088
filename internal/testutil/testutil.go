// Package testutil wires isolated stores for package tests: an in-memory
// SQLite database with the full schema and a miniredis instance per test.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oggyb/matchmaker/internal/app"
	"github.com/oggyb/matchmaker/internal/cache"
	"github.com/oggyb/matchmaker/internal/clock"
	"github.com/oggyb/matchmaker/internal/config"
	"github.com/oggyb/matchmaker/internal/db"
	"github.com/oggyb/matchmaker/internal/logger"
)

// Now is the fixed instant most tests start their fake clock at.
var Now = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

// NewDB spins up a private in-memory SQLite DB and applies migrations.
//
// One open connection: SQLite serialises writers anyway, and goroutines in
// concurrency tests queue on the pool instead of failing with SQLITE_LOCKED.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc:        func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db.Models()...))
	return database
}

// NewRedis starts a miniredis and returns a cache bound to it.
func NewRedis(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	rc := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

// Env is a fully wired AppContext over isolated stores and a fake clock.
type Env struct {
	App   *app.AppContext
	Clock *clock.FakeClock
	Redis *miniredis.Miniredis
}

// NewEnv wires an AppContext for service tests. The clock starts at Now.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	database := NewDB(t)
	rc, mr := NewRedis(t)
	clk := clock.Fake(Now)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.Discovery.DailyCap = 5
	cfg.Discovery.BatchSize = 5
	cfg.Discovery.Timezone = "UTC"
	cfg.Presence.IdleTimeout = 2 * time.Second
	cfg.Sync.Buffer = 64

	return &Env{
		App:   app.New(cfg, database, rc, logger.Discard(), clk),
		Clock: clk,
		Redis: mr,
	}
}

// Profile inserts a profile and returns it with its id.
func Profile(t *testing.T, database *gorm.DB, name string, intent db.Intent, values ...string) db.Profile {
	t.Helper()
	p := db.Profile{
		FullName:  name,
		BirthDate: time.Date(1994, 3, 14, 0, 0, 0, 0, time.UTC),
		Intent:    intent,
		Values:    values,
	}
	require.NoError(t, database.Create(&p).Error)
	return p
}

// AcceptedMatch inserts a mutual match between a (first liker) and b.
func AcceptedMatch(t *testing.T, database *gorm.DB, a, b uint64) db.Match {
	t.Helper()
	at := Now
	m := db.Match{User1: a, User2: b, PairKey: db.PairKey(a, b), Status: db.MatchAccepted, CreatedAt: Now, AcceptedAt: &at}
	require.NoError(t, database.Create(&m).Error)
	return m
}

// PendingMatch inserts a like from a to b.
func PendingMatch(t *testing.T, database *gorm.DB, a, b uint64) db.Match {
	t.Helper()
	m := db.Match{User1: a, User2: b, PairKey: db.PairKey(a, b), Status: db.MatchPending, CreatedAt: Now}
	require.NoError(t, database.Create(&m).Error)
	return m
}

// RequireReceive reads one value from ch within timeout, or fails the test.
func RequireReceive[T any](t testing.TB, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without sending a value: %s", msg)
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, msg)
	}
	panic("unreachable")
}

// RequireNoReceive fails if ch yields a value within wait.
func RequireNoReceive[T any](t testing.TB, ch <-chan T, wait time.Duration, msg string) {
	t.Helper()
	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("unexpected value %+v: %s", v, msg)
		}
	case <-time.After(wait):
	}
}
