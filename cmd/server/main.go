package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/logger"
	"github.com/oggyb/muzz-matching/internal/scheduler"
	"github.com/oggyb/muzz-matching/internal/scoring"
	"github.com/oggyb/muzz-matching/internal/server"
	"github.com/oggyb/muzz-matching/internal/service/matching"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	// Init Redis
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

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	grpcServer, health := server.NewGRPCServer(log,
		matching.NewRegistrar(appCtx),
		server.RegistrarFunc(func(s *grpc.Server) {
			scoring.Server{Scorer: appCtx.Scorer}.Register(s)
		}),
	)

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(appCtx.Clock, cfg.Location(), log)
		sched.Daily(ctx, "daily_selection", cfg.Scheduler.RunHour, cfg.Scheduler.RunMinute, func(ctx context.Context) error {
			_, err := appCtx.Batch.Run(ctx)
			return err
		})
		sched.Daily(ctx, "retention_cleanup", cfg.Scheduler.CleanupHour, 0, func(ctx context.Context) error {
			_, err := appCtx.Cleaner.Run(ctx)
			return err
		})
		defer sched.Wait()
	}

	ops := server.NewOpsRouter(log,
		server.Check{Name: "mysql", Probe: func(ctx context.Context) error {
			sqlDB, err := database.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}},
		server.Check{Name: "redis", Probe: redisCache.Ping},
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting gRPC server", "addr", cfg.GRPC.Host+":"+cfg.GRPC.Port)
		return server.ServeGRPC(gctx, cfg, grpcServer)
	})
	g.Go(func() error {
		log.Info("starting ops listener", "addr", cfg.HTTP.Addr)
		return server.ServeOps(gctx, cfg.HTTP.Addr, ops)
	})
	g.Go(func() error {
		<-gctx.Done()
		health.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "err", err)
	}
	stop()
	log.Info("shutdown complete")
}
