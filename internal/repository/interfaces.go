// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/feedbackflow/internal/model"
)

// SessionRepository はブラウザセッションの永続化インターフェース。
// IdPのサインイン状態をプロセス再起動後も復元できるように保持する。
type SessionRepository interface {
	// Save はセッションを作成または上書きする。
	Save(ctx context.Context, session *model.StoredSession) error
	// FindByID は指定IDのセッションを取得する。存在しない、または期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.StoredSession, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired はnow時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
