package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Migration is a named schema step recorded in the _migrations ledger.
type Migration struct {
	Name string
	SQL  string
}

// Migrations are applied in order, each at most once.
var Migrations = []Migration{
	{
		Name: "001_pgcrypto",
		SQL:  `CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
	},
	{
		Name: "002_messages",
		SQL: `CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            name VARCHAR(100) NOT NULL,
            text VARCHAR(1000) NOT NULL,
            client_ip TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	},
	{
		Name: "003_security_codes",
		SQL: `CREATE TABLE IF NOT EXISTS security_codes (
            code TEXT UNIQUE NOT NULL,
            ip_salt TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	},
	{
		Name: "004_seed_security_code",
		SQL: `INSERT INTO security_codes (code, ip_salt)
            SELECT encode(gen_random_bytes(32), 'hex'), encode(gen_random_bytes(32), 'hex')
            WHERE NOT EXISTS (SELECT 1 FROM security_codes);`,
	},
}

const createLedger = `CREATE TABLE IF NOT EXISTS _migrations (
    id SERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL UNIQUE,
    applied_at TIMESTAMPTZ DEFAULT NOW()
);`

// Connect opens the database and brings the schema up to date.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*sqlx.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := Migrate(ctx, db, Migrations, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// Migrate applies every migration missing from the ledger. Each step and its
// ledger row commit together.
func Migrate(ctx context.Context, db *sqlx.DB, migrations []Migration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := db.ExecContext(ctx, createLedger); err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		var done bool
		if err := db.GetContext(ctx, &done, `SELECT EXISTS(SELECT 1 FROM _migrations WHERE name=$1)`, m.Name); err != nil {
			return fmt.Errorf("check %s: %w", m.Name, err)
		}
		if done {
			continue
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin %s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply %s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO _migrations (name) VALUES ($1)`, m.Name); err != nil {
			tx.Rollback()
			return fmt.Errorf("record %s: %w", m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", m.Name, err)
		}
		applied++
		logger.Info("migration applied", zap.String("name", m.Name))
	}

	logger.Info("database migrations up to date", zap.Int("applied", applied), zap.Int("total", len(migrations)))
	return nil
}
