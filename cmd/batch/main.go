// Command batch generates today's selections for every active user once and
// exits, for running from cron or by hand.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/logger"
)

func main() {
	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}

	appCtx, err := app.New(cfg, database, redisCache, log)
	if err != nil {
		log.Error("failed to wire engine", "err", err)
		os.Exit(1)
	}
	defer appCtx.Close()

	report, err := appCtx.Batch.Run(ctx)
	if err != nil {
		log.Error("batch aborted", "err", err)
		os.Exit(1)
	}
	if report.Total > 0 && report.ErrorRate > cfg.Scheduler.ErrorRateThreshold {
		os.Exit(2)
	}
}
