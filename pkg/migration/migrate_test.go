package migration

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

// openTestDB はテスト用のインメモリSQLiteを開く。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDB接続に失敗: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRun(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"migrations/000002_add_items.up.sql":   {Data: []byte("CREATE TABLE items (id TEXT PRIMARY KEY);")},
		"migrations/000001_create_users.up.sql": {Data: []byte("CREATE TABLE users (id TEXT PRIMARY KEY);")},
		"migrations/000001_create_users.down.sql": {Data: []byte("DROP TABLE users;")},
		"migrations/README.md":                  {Data: []byte("ignored")},
	}

	t.Run("未適用のマイグレーションがバージョン順に適用されること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		ctx := context.Background()

		applied, err := Run(ctx, db, fsys, "migrations")
		if err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}
		if len(applied) != 2 {
			t.Fatalf("適用件数 = %d, want 2", len(applied))
		}
		if applied[0].String() != "000001_create_users" {
			t.Errorf("1件目 = %q, want %q", applied[0].String(), "000001_create_users")
		}
		if applied[1].String() != "000002_add_items" {
			t.Errorf("2件目 = %q, want %q", applied[1].String(), "000002_add_items")
		}

		if _, err := db.ExecContext(ctx, "INSERT INTO items (id) VALUES ('a')"); err != nil {
			t.Errorf("itemsテーブルが作成されていない: %v", err)
		}
	})

	t.Run("2回目の実行では何も適用されないこと", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		ctx := context.Background()

		if _, err := Run(ctx, db, fsys, "migrations"); err != nil {
			t.Fatalf("1回目のRun()でエラーが発生: %v", err)
		}
		applied, err := Run(ctx, db, fsys, "migrations")
		if err != nil {
			t.Fatalf("2回目のRun()でエラーが発生: %v", err)
		}
		if len(applied) != 0 {
			t.Errorf("適用件数 = %d, want 0", len(applied))
		}
	})

	t.Run("不正なSQLの場合はエラーを返し記録されないこと", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		ctx := context.Background()
		broken := fstest.MapFS{
			"m/000001_ok.up.sql":     {Data: []byte("CREATE TABLE ok (id INTEGER);")},
			"m/000002_broken.up.sql": {Data: []byte("CREATE TABLE (;")},
		}

		applied, err := Run(ctx, db, broken, "m")
		if err == nil {
			t.Fatal("不正なSQLでエラーが返るべき")
		}
		if len(applied) != 1 {
			t.Errorf("適用件数 = %d, want 1", len(applied))
		}

		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("schema_migrationsの参照に失敗: %v", err)
		}
		if count != 1 {
			t.Errorf("記録件数 = %d, want 1", count)
		}
	})

	t.Run("バージョンが重複している場合はエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		dup := fstest.MapFS{
			"m/000001_a.up.sql": {Data: []byte("SELECT 1;")},
			"m/000001_b.up.sql": {Data: []byte("SELECT 1;")},
		}

		if _, err := Run(context.Background(), db, dup, "m"); err == nil {
			t.Fatal("重複バージョンでエラーが返るべき")
		}
	})
}
