package config

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sethvargo/go-envconfig"
)

type SQLiteConfig struct {
	Path        string `env:"SQLITE_PATH, default=mustard.db"`
	BusyTimeout int    `env:"SQLITE_BUSY_TIMEOUT_MS, default=5000"`
}

func NewSQLiteConfigFromEnv() (*SQLiteConfig, error) {
	var cfg SQLiteConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DSN enables foreign keys and makes every transaction take the write lock
// when it begins.
func (c *SQLiteConfig) DSN() string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout))
	q.Set("_txlock", "immediate")
	return "file:" + c.Path + "?" + q.Encode()
}
