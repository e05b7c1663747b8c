package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

func ensureDatabase(ctx context.Context, databaseURL string, log *zap.Logger) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return errors.New("database name is empty in url")
	}
	u.Path = "/postgres"
	db, err := sql.Open("postgres", u.String())
	if err != nil {
		return fmt.Errorf("open admin connection: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping admin connection: %w", err)
	}
	var exists bool
	if err := db.QueryRowContext(ctx, "SELECT true FROM pg_database WHERE datname = $1", dbName).Scan(&exists); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check database existence: %w", err)
	}
	if exists {
		return nil
	}
	if _, err = db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dbName)); err != nil {
		return fmt.Errorf("create database %q: %w", dbName, err)
	}
	log.Info("database: created", zap.String("name", dbName))
	return nil
}

// MigrateUp создаёт базу при необходимости и применяет встроенные миграции.
func MigrateUp(ctx context.Context, databaseURL string, log *zap.Logger) error {
	if err := ensureDatabase(ctx, databaseURL, log); err != nil {
		return fmt.Errorf("ensure database: %w", err)
	}
	db, err := openMigrator(databaseURL, log)
	if err != nil {
		return err
	}
	defer db.Close()

	before, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("migrate: read version: %w", err)
	}
	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("migrate: up: %w", err)
	}
	after, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("migrate: read version: %w", err)
	}
	if after == before {
		log.Info("migrate: no pending migrations", zap.Int64("version", after))
	} else {
		log.Info("migrate: up ok", zap.Int64("from", before), zap.Int64("to", after))
	}
	return nil
}

// MigrateDown откатывает последнюю миграцию.
func MigrateDown(ctx context.Context, databaseURL string, log *zap.Logger) error {
	db, err := openMigrator(databaseURL, log)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := goose.DownContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("migrate: down: %w", err)
	}
	return nil
}

// MigrationStatus пишет в лог применённые и ожидающие миграции.
func MigrationStatus(ctx context.Context, databaseURL string, log *zap.Logger) error {
	db, err := openMigrator(databaseURL, log)
	if err != nil {
		return err
	}
	defer db.Close()
	return goose.StatusContext(ctx, db, migrationsDir)
}

func openMigrator(databaseURL string, log *zap.Logger) (*sql.DB, error) {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{log.Sugar()})
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("migrate: dialect: %w", err)
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("migrate: open: %w", err)
	}
	return db, nil
}

type gooseLogger struct {
	s *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.s.Infof("goose: "+strings.TrimSuffix(format, "\n"), v...)
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.s.Fatalf("goose: "+strings.TrimSuffix(format, "\n"), v...)
}
