package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glizzus/mustard/internal/announce"
	"github.com/glizzus/mustard/internal/bootstrap"
	"github.com/glizzus/mustard/internal/cache"
	"github.com/glizzus/mustard/internal/config"
	"github.com/glizzus/mustard/internal/datalayer"
	"github.com/glizzus/mustard/internal/planner"
	"github.com/glizzus/mustard/internal/schedule"
	"github.com/glizzus/mustard/internal/worker"
	"golang.org/x/sync/errgroup"
)

var dryRun = flag.Bool("dry-run", false, "Do not use Discord, just log announcements")

func runWorkerForever(ctx context.Context) error {
	if err := bootstrap.LoadEnv(); err != nil {
		return err
	}

	logger, logCloser, err := bootstrap.Logger()
	if err != nil {
		return err
	}
	defer logCloser.Close()

	workerConfig, err := config.NewWorkerConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load worker config: %w", err)
	}

	store, closeStore, err := bootstrap.OpenStore(ctx, workerConfig.Backend)
	if err != nil {
		return err
	}
	defer closeStore()

	var (
		nextEvents cache.NextEventCache = cache.NewMemoryCache()
		receiver   worker.RefreshReceiver
	)
	if os.Getenv("REDIS_ADDR") != "" {
		redisConfig, err := config.NewRedisConfigFromEnv()
		if err != nil {
			return fmt.Errorf("failed to load redis config: %w", err)
		}
		rdb, err := datalayer.NewRedisClient(ctx, redisConfig)
		if err != nil {
			return err
		}
		defer rdb.Close()

		consumer, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		receiver, err = worker.NewRedisRefreshReceiver(ctx, rdb, consumer)
		if err != nil {
			return err
		}
		nextEvents = cache.NewRedisCache(rdb)
	} else {
		slog.Warn("REDIS_ADDR is not set, refresh requests will not be received")
	}

	var announcer announce.Announcer
	if *dryRun || workerConfig.DryRun {
		announcer = announce.NewLogAnnouncer(logger)
	} else {
		discordConfig, err := config.NewDiscordConfigFromEnv()
		if err != nil {
			return fmt.Errorf("failed to load discord config: %w", err)
		}
		session, err := announce.NewSession(discordConfig.Token)
		if err != nil {
			return err
		}
		if err := session.Open(); err != nil {
			return fmt.Errorf("failed to open discord session: %w", err)
		}
		defer func() {
			if err := session.Close(); err != nil {
				slog.Error("failed to close discord session", "error", err)
			}
		}()
		announcer = announce.NewDiscordAnnouncer(session, discordConfig.ChannelID)
	}

	scheduler := schedule.NewScheduler(schedule.WithLogger(logger))
	plans := planner.New(store, scheduler, announcer,
		planner.WithCache(nextEvents, workerConfig.CacheTTL),
		planner.WithLogger(logger),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(ctx)
	})
	g.Go(func() error {
		return resyncForever(ctx, plans, scheduler, workerConfig.ResyncInterval)
	})
	if receiver != nil {
		g.Go(func() error {
			return receiveForever(ctx, plans, receiver)
		})
	}

	slog.Info("Worker started", "backend", workerConfig.Backend, "dryRun", *dryRun || workerConfig.DryRun)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// resyncForever re-plans every owner at startup and then on every tick.
func resyncForever(ctx context.Context, plans *planner.Planner, scheduler *schedule.Scheduler, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := plans.RefreshAll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("failed to resync owners", "error", err)
		}
		slog.Debug("Resynced owners", "pending", scheduler.Len())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func receiveForever(ctx context.Context, plans *planner.Planner, receiver worker.RefreshReceiver) error {
	for {
		requests, err := receiver.ReceiveRefreshes(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to receive refreshes: %w", err)
		}

		for _, req := range requests {
			if err := plans.Refresh(ctx, req.OwnerID); err != nil {
				slog.Error("failed to refresh owner",
					"ownerID", req.OwnerID,
					"requestedAt", req.RequestedAt,
					"error", err,
				)
				continue
			}
			if err := req.Ack(ctx); err != nil {
				slog.Error("failed to ack refresh", "ownerID", req.OwnerID, "error", err)
			}
		}
	}
}

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runWorkerForever(ctx); err != nil {
		slog.Error("Worker encountered an error", slog.Any("error", err))
		os.Exit(1)
	}
}
