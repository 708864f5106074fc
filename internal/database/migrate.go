// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationResult はマイグレーション前後のセッションストアのスキーマバージョン。
// バージョン0は未適用を表す。
type MigrationResult struct {
	From uint
	To   uint
}

// Applied は新しいマイグレーションが適用されたかどうかを返す。
func (r MigrationResult) Applied() bool {
	return r.From != r.To
}

// NewMigrator は開いているdbの接続を1本使うmigrateインスタンスを生成する。
// Closeしても閉じるのはその接続だけで、dbは呼び出し側が閉じる。
func NewMigrator(ctx context.Context, db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		conn.Close()
		source.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		driver.Close()
		source.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations は未適用のマイグレーションをすべて適用し、前後のバージョンを返す。
// すでに最新の場合はエラーなしで返る。
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) (MigrationResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m, err := NewMigrator(ctx, db)
	if err != nil {
		return MigrationResult{}, err
	}
	defer m.Close()

	// 1. 現在のバージョン
	from, err := schemaVersion(m)
	if err != nil {
		return MigrationResult{}, err
	}

	// 2. 適用
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return MigrationResult{From: from}, fmt.Errorf("failed to run migrations: %w", err)
	}

	// 3. 適用後のバージョン
	to, err := schemaVersion(m)
	if err != nil {
		return MigrationResult{From: from}, err
	}

	result := MigrationResult{From: from, To: to}
	logger.Info("database migrations finished",
		slog.Uint64("from_version", uint64(from)),
		slog.Uint64("to_version", uint64(to)),
		slog.Bool("applied", result.Applied()),
	)
	return result, nil
}

// LatestVersion は埋め込まれたマイグレーションの最新バージョンを返す。
func LatestVersion() (uint, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("failed to create migration source: %w", err)
	}
	defer source.Close()

	v, err := source.First()
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations: %w", err)
	}
	for {
		next, err := source.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read migrations: %w", err)
		}
		v = next
	}
}

// schemaVersion は適用済みのバージョンを返す。未適用なら0。
// 前回の失敗でdirtyのままの場合はエラーにする。
func schemaVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("session store schema is dirty at version %d", v)
	}
	return v, nil
}
