package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IliaW/archive-spider/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the store and makes sure every table exists.
func Open(ctx context.Context, cfg *config.StoreConfig) (*sqlx.DB, error) {
	slog.Info("connecting to the database...", slog.String("driver", cfg.Driver))
	dsn := cfg.Location
	if cfg.Driver == "sqlite3" && !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000"
	}
	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	maxRetry := max(cfg.PingRetries, 1)
	for i := 1; i <= maxRetry; i++ {
		slog.Info("ping the database.", slog.String("attempt", fmt.Sprintf("%d/%d", i, maxRetry)))
		pingErr := db.PingContext(ctx)
		if pingErr == nil {
			break
		}
		slog.Error("not responding.", slog.String("err", pingErr.Error()))
		if i == maxRetry {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", pingErr)
		}
		wait := time.Duration(5*i) * time.Second
		slog.Info(fmt.Sprintf("wait %d seconds", 5*i))
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	slog.Info("connected to the database!")

	if err = EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// EnsureSchema creates the tables that do not exist yet. Safe to call repeatedly.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	schema, existsQuery := sqliteSchema, sqliteTableExists
	if db.DriverName() == "postgres" {
		schema, existsQuery = postgresSchema, postgresTableExists
	}

	for _, table := range tableOrder {
		var count int
		if err := db.GetContext(ctx, &count, db.Rebind(existsQuery), table); err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if count == 1 {
			continue
		}
		if _, err := db.ExecContext(ctx, schema[table]); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
		slog.Info("table created.", slog.String("table", table))
	}

	return nil
}

func Close(db *sqlx.DB) {
	slog.Info("closing database connection.")
	if err := db.Close(); err != nil {
		slog.Error("failed to close database connection.", slog.String("err", err.Error()))
	}
}
