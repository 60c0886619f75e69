package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type WorkerConfig struct {
	// Backend selects the store: "postgres" or "sqlite".
	Backend string `env:"MUSTARD_BACKEND, default=postgres"`

	// ResyncInterval is how often every owner's announcement is re-planned,
	// in addition to refreshes requested over Redis.
	ResyncInterval time.Duration `env:"MUSTARD_RESYNC_INTERVAL, default=15m"`

	// CacheTTL bounds how long a resolved next broadcast is reused.
	CacheTTL time.Duration `env:"MUSTARD_CACHE_TTL, default=10m"`

	// DryRun logs announcements instead of posting them.
	DryRun bool `env:"MUSTARD_DRY_RUN"`
}

func NewWorkerConfigFromEnv() (*WorkerConfig, error) {
	var cfg WorkerConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
