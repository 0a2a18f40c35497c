package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/grantd/internal/store/core"
	"github.com/dropDatabas3/grantd/internal/store/memory"
	"github.com/dropDatabas3/grantd/internal/store/pg"
)

type Config struct {
	Driver       string
	DSN          string
	MaxAccessTTL time.Duration
	Postgres     struct {
		MaxConns        int
		MinConns        int
		ConnMaxLifetime time.Duration
	}
}

// Open selects the backend by configuration at process start. The two
// implementations share one contract and identical semantics.
func Open(ctx context.Context, cfg Config) (core.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory", "mem", "":
		return memory.New(cfg.MaxAccessTTL), nil
	case "postgres", "pg", "postgresql":
		return pg.New(ctx, pg.Config{
			DSN:             cfg.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			MaxAccessTTL:    cfg.MaxAccessTTL,
		})
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
}
