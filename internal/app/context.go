package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/matchmaker/internal/cache"
	"github.com/oggyb/matchmaker/internal/clock"
	"github.com/oggyb/matchmaker/internal/config"
	"github.com/oggyb/matchmaker/internal/feed"
)

// AppContext holds shared dependencies (DB, Redis, Logger, Clock, etc.)
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Clock      clock.Clock
	Feed       *feed.Feed
}

// New creates a new AppContext. The change feed publishes through rdb.
// A nil clk means wall time.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger, clk clock.Clock) *AppContext {
	if clk == nil {
		clk = clock.Real()
	}
	return &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Clock:      clk,
		Feed:       feed.New(rdb, logger.With("component", "feed")),
	}
}
