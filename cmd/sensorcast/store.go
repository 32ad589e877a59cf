package main

import (
	"context"
	"fmt"

	"github.com/tunogya/sensorcast/pkg/config"
	"github.com/tunogya/sensorcast/pkg/store/duckdb"
	"github.com/tunogya/sensorcast/pkg/store/postgres"
	"github.com/tunogya/sensorcast/pkg/store/sqlite"
	"github.com/tunogya/sensorcast/pkg/store/sqlstore"
)

// openStore connects the configured backend and ensures its schema exists
func openStore(ctx context.Context, cfg *config.Config) (*sqlstore.Repo, func() error, error) {
	switch cfg.StoreDriver {
	case config.DriverDuckDB:
		c, err := duckdb.NewClient(ctx, cfg.StoreDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := duckdb.InitializeSchema(ctx, c); err != nil {
			c.Close()
			return nil, nil, err
		}
		return c.Repo(), c.Close, nil

	case config.DriverPostgres:
		c, err := postgres.NewClient(ctx, cfg.StoreDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := c.InitializeSchema(ctx); err != nil {
			c.Close()
			return nil, nil, err
		}
		return c.Repo(), c.Close, nil

	case config.DriverSQLite:
		c, err := sqlite.NewClient(ctx, cfg.StoreDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := c.InitializeSchema(ctx); err != nil {
			c.Close()
			return nil, nil, err
		}
		return c.Repo(), c.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
}
