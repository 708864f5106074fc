package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/hitoshi/feedbackflow/internal/database"
)

// PostgresSessionRepoはSessionRepositoryインターフェースを満たすことを検証
func TestPostgresSessionRepo_ImplementsInterface(t *testing.T) {
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
}

// NewPostgresSessionRepoが正しく初期化されることを検証
func TestNewPostgresSessionRepo_Initializes(t *testing.T) {
	repo := NewPostgresSessionRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// openTestDB はTEST_DATABASE_URLのDBにマイグレーションを適用して返す。
// 接続できない場合はテストをスキップする。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}
	db, err := database.Open(url)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Ping(); err != nil {
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	if _, err := database.RunMigrations(context.Background(), db, nil); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	if _, err := db.Exec(`DELETE FROM sessions`); err != nil {
		t.Fatalf("クリーンアップに失敗: %v", err)
	}
	return db
}

func TestPostgresSessionRepo_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresSessionRepo(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	s := newStoredSession("pg-1", now.Add(time.Hour))
	if err := repo.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s.IDToken = "rotated"
	if err := repo.Save(ctx, s); err != nil {
		t.Fatalf("Save (upsert): %v", err)
	}

	got, err := repo.FindByID(ctx, "pg-1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got == nil || got.IDToken != "rotated" || got.UID != "uid-pg-1" {
		t.Fatalf("FindByID = %+v", got)
	}

	_ = repo.Save(ctx, newStoredSession("pg-old", now.Add(-time.Hour)))
	n, err := repo.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	if err := repo.DeleteByID(ctx, "pg-1"); err != nil {
		t.Fatalf("DeleteByID: %v", err)
	}
	if got, _ := repo.FindByID(ctx, "pg-1"); got != nil {
		t.Errorf("session should be deleted, got %+v", got)
	}
}
