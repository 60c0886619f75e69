package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/glizzus/mustard/internal/backup"
	"github.com/glizzus/mustard/internal/bootstrap"
	"github.com/glizzus/mustard/internal/cache"
	"github.com/glizzus/mustard/internal/config"
	"github.com/glizzus/mustard/internal/datalayer"
	"github.com/glizzus/mustard/internal/generator"
	"github.com/glizzus/mustard/internal/presenters"
	"github.com/glizzus/mustard/internal/repository"
	"github.com/glizzus/mustard/internal/schedule"
	"github.com/glizzus/mustard/internal/worker"
	"github.com/urfave/cli/v2"
)

var ownerFlag = &cli.Int64Flag{
	Name:     "owner",
	Usage:    "ID of the owner to operate on",
	Required: true,
}

// env holds what a command needs; the fields beyond store are nil when not
// configured.
type env struct {
	store     repository.Store
	cache     cache.NextEventCache
	publisher worker.RefreshPublisher
	cacheTTL  time.Duration
}

func (e *env) engine() *backup.Engine {
	opts := []backup.EngineOption{backup.WithLogger(slog.Default())}
	if e.cache != nil {
		opts = append(opts, backup.WithCache(e.cache))
	}
	if e.publisher != nil {
		opts = append(opts, backup.WithRefreshPublisher(e.publisher))
	}
	return backup.NewEngine(e.store, &generator.UUIDV4Generator{}, opts...)
}

// withEnv opens the configured store, and Redis when REDIS_ADDR is set, for
// the duration of fn.
func withEnv(c *cli.Context, fn func(e *env) error) error {
	ctx := c.Context
	workerConfig, err := config.NewWorkerConfigFromEnv()
	if err != nil {
		return cli.Exit("Failed to load config: "+err.Error(), 1)
	}
	backend := workerConfig.Backend
	if c.IsSet("backend") {
		backend = c.String("backend")
	}

	store, closeStore, err := bootstrap.OpenStore(ctx, backend)
	if err != nil {
		return cli.Exit("Failed to open store: "+err.Error(), 1)
	}
	defer closeStore()

	e := &env{store: store, cacheTTL: workerConfig.CacheTTL}
	if os.Getenv("REDIS_ADDR") != "" {
		redisConfig, err := config.NewRedisConfigFromEnv()
		if err != nil {
			return cli.Exit("Failed to load redis config: "+err.Error(), 1)
		}
		rdb, err := datalayer.NewRedisClient(ctx, redisConfig)
		if err != nil {
			return cli.Exit("Failed to connect to redis: "+err.Error(), 1)
		}
		defer rdb.Close()
		e.cache = cache.NewRedisCache(rdb)
		e.publisher = worker.NewRedisRefreshPublisher(rdb)
	}
	return fn(e)
}

func newArchiver(ctx context.Context, engine *backup.Engine) (*backup.Archiver, error) {
	minioConfig, err := config.NewMinioConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load minio config: %w", err)
	}
	storage, err := datalayer.NewMinioStorage(minioConfig)
	if err != nil {
		return nil, err
	}
	if err := storage.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return backup.NewArchiver(engine, storage), nil
}

func restoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Restore an owner's configuration from a backup file",
		ArgsUsage: "<backup.json>",
		Flags:     []cli.Flag{ownerFlag},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return cli.Exit("Please provide the backup file to restore", 1)
			}
			doc, err := os.ReadFile(path)
			if err != nil {
				return cli.Exit("Failed to read backup: "+err.Error(), 1)
			}

			return withEnv(c, func(e *env) error {
				summary, err := e.engine().Restore(c.Context, c.Int64("owner"), doc)
				fmt.Fprint(c.App.Writer, presenters.RenderRestoreReport(summary, err))
				if err != nil {
					return cli.Exit("", 1)
				}
				return nil
			})
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write an owner's configuration as a backup document",
		Flags: []cli.Flag{
			ownerFlag,
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "File to write instead of standard output",
			},
		},
		Action: func(c *cli.Context) error {
			return withEnv(c, func(e *env) error {
				doc, err := e.engine().Export(c.Context, c.Int64("owner"))
				if err != nil {
					return cli.Exit("Failed to export: "+err.Error(), 1)
				}
				if out := c.String("out"); out != "" {
					if err := os.WriteFile(out, doc, 0o644); err != nil {
						return cli.Exit("Failed to write backup: "+err.Error(), 1)
					}
					log.Printf("Backup written to %s", out)
					return nil
				}
				_, err = c.App.Writer.Write(doc)
				return err
			})
		},
	}
}

func archiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "archive",
		Usage: "Store an owner's backup in blob storage, or restore it with --restore",
		Flags: []cli.Flag{
			ownerFlag,
			&cli.BoolFlag{
				Name:  "restore",
				Usage: "Restore the archived backup instead of writing a new one",
			},
		},
		Action: func(c *cli.Context) error {
			return withEnv(c, func(e *env) error {
				archiver, err := newArchiver(c.Context, e.engine())
				if err != nil {
					return cli.Exit("Failed to set up blob storage: "+err.Error(), 1)
				}

				ownerID := c.Int64("owner")
				if c.Bool("restore") {
					summary, err := archiver.RestoreArchived(c.Context, ownerID)
					fmt.Fprint(c.App.Writer, presenters.RenderRestoreReport(summary, err))
					if err != nil {
						return cli.Exit("", 1)
					}
					return nil
				}

				key, err := archiver.Archive(c.Context, ownerID)
				if err != nil {
					return cli.Exit("Failed to archive: "+err.Error(), 1)
				}
				log.Printf("Backup archived at %s", key)
				return nil
			})
		},
	}
}

func nextCommand() *cli.Command {
	return &cli.Command{
		Name:  "next",
		Usage: "Show an owner's next broadcast",
		Flags: []cli.Flag{
			ownerFlag,
			&cli.Int64Flag{
				Name:  "offset",
				Usage: "Seconds to look back (positive) or ahead (negative) from now",
			},
		},
		Action: func(c *cli.Context) error {
			return withEnv(c, func(e *env) error {
				ownerID := c.Int64("owner")
				epoch, err := cache.Resolve(c.Context, e.cache, e.store, ownerID, c.Int64("offset"), e.cacheTTL)
				if err != nil {
					return cli.Exit("Failed to resolve next broadcast: "+err.Error(), 1)
				}
				if epoch == 0 {
					fmt.Fprintln(c.App.Writer, "No broadcasts scheduled.")
					return nil
				}

				cfg, err := repository.LoadSchedule(c.Context, e.store, ownerID)
				if err != nil {
					return cli.Exit("Failed to load schedule: "+err.Error(), 1)
				}
				loc, err := schedule.LoadLocation(cfg.Timezone)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				fmt.Fprint(c.App.Writer, presenters.RenderOccurrences([]time.Time{time.Unix(epoch, 0)}, loc))
				return nil
			})
		},
	}
}

func upcomingCommand() *cli.Command {
	return &cli.Command{
		Name:  "upcoming",
		Usage: "List an owner's upcoming broadcasts",
		Flags: []cli.Flag{
			ownerFlag,
			&cli.IntFlag{
				Name:  "count",
				Usage: "Number of broadcasts to list",
				Value: 5,
			},
		},
		Action: func(c *cli.Context) error {
			return withEnv(c, func(e *env) error {
				cfg, err := repository.LoadSchedule(c.Context, e.store, c.Int64("owner"))
				if err != nil {
					return cli.Exit("Failed to load schedule: "+err.Error(), 1)
				}
				times, err := schedule.UpcomingOccurrences(cfg.Timezone, cfg.Weekly, time.Now(), c.Int("count"))
				if err != nil {
					return cli.Exit("Failed to list broadcasts: "+err.Error(), 1)
				}
				loc := time.UTC
				if len(times) > 0 {
					loc = times[0].Location()
				}
				fmt.Fprint(c.App.Writer, presenters.RenderOccurrences(times, loc))
				return nil
			})
		},
	}
}

func main() {
	if err := bootstrap.LoadEnv(); err != nil {
		log.Fatal(err)
	}
	_, logCloser, err := bootstrap.Logger()
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()

	app := &cli.App{
		Name:        "mustard-cli",
		Description: "Operator tool for Mustard schedules and backups",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Store to use: postgres or sqlite (defaults to MUSTARD_BACKEND)",
			},
		},
		Commands: []*cli.Command{
			restoreCommand(),
			exportCommand(),
			archiveCommand(),
			nextCommand(),
			upcomingCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Printf("Error running CLI: %v", err)
		logCloser.Close()
		os.Exit(1)
	}
}
