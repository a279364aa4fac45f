package billing

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/nao1215/bills/pkg/migration"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationsFS embed.FS

// initSchema はマイグレーションを実行してスキーマと初期データを適用する。
func initSchema(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	applied, err := migration.Run(ctx, db, migrationsFS, "migrations")
	for _, m := range applied {
		logger.Info("マイグレーションを適用しました", zap.String("migration", m.String()))
	}
	return err
}

// openDatabase はSQLiteに接続し、スキーマを初期化する。
// ":memory:" の場合は接続ごとに別DBになるため接続数を1に制限する。
func openDatabase(ctx context.Context, path string, logger *zap.Logger) (*sql.DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	inMemory := path == ":memory:"
	if inMemory {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}
	if err := initSchema(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return db, nil
}
