// Package database opens the Postgres pool and applies the schema.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	migrate "github.com/rubenv/sql-migrate"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Connect opens a pool and checks the server is reachable.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrations is the embedded application schema.
func Migrations() migrate.MigrationSource {
	return migrate.EmbedFileSystemMigrationSource{FileSystem: sqlFiles, Root: "sql"}
}

// Migrate applies (or rolls back) the application schema and River's tables.
// River is migrated first on the way up and last on the way down.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dir Direction, log *slog.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	switch dir {
	case Up:
		if err := migrateRiver(ctx, pool, rivermigrate.DirectionUp); err != nil {
			return err
		}
		n, err := applySchema(db, migrate.Up)
		if err != nil {
			return err
		}
		log.InfoContext(ctx, "migrations applied", "count", n)
	case Down:
		n, err := applySchema(db, migrate.Down)
		if err != nil {
			return err
		}
		log.InfoContext(ctx, "migrations rolled back", "count", n)
		if err := migrateRiver(ctx, pool, rivermigrate.DirectionDown); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown migration direction %q", dir)
	}
	return nil
}

func applySchema(db *sql.DB, dir migrate.MigrationDirection) (int, error) {
	n, err := migrate.Exec(db, "postgres", Migrations(), dir)
	if err != nil {
		return n, fmt.Errorf("schema migration: %w", err)
	}
	return n, nil
}

func migrateRiver(ctx context.Context, pool *pgxpool.Pool, dir rivermigrate.Direction) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	opts := &rivermigrate.MigrateOpts{}
	if dir == rivermigrate.DirectionDown {
		opts.TargetVersion = -1
	}
	if _, err := migrator.Migrate(ctx, dir, opts); err != nil {
		return fmt.Errorf("river migration %s: %w", dir, err)
	}
	return nil
}
