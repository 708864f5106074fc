package dashboard

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/feedbackflow/internal/auth"
	"github.com/hitoshi/feedbackflow/internal/model"
)

// Session はダッシュボードを所有するブラウザセッション。auth.Sessionが実装する。
type Session interface {
	ID() string
	Token(ctx context.Context, forceRefresh bool) (string, error)
	Subscribe(fn func(auth.State)) *auth.Subscription
}

type entry struct {
	dash *Dashboard
	sub  *auth.Subscription
}

// Registry はセッションごとのダッシュボードを保持する。
// サインアウトしたセッションのダッシュボードは破棄する。
type Registry struct {
	api    API
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry はRegistryを生成する。
func NewRegistry(api API, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		api:     api,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Mount は新しいダッシュボードを生成してマウントし、セッションの既存のダッシュボードと置き換える。
// ページの再読み込みは再マウントとなり、未保存の編集は失われる。
// 置き換えられたダッシュボードの呼び出し中のリクエストは中断しない。
func (r *Registry) Mount(ctx context.Context, sess Session, role model.Role) *Dashboard {
	d := New(role, r.api, sess, r.logger.With(slog.String("session_id", shortID(sess.ID()))))
	if err := d.Mount(ctx); err != nil {
		r.logger.Warn("dashboard mounted with errors",
			slog.String("role", string(role)),
			slog.String("error", err.Error()),
		)
	}

	e := &entry{dash: d}
	id := sess.ID()

	r.mu.Lock()
	var oldSub *auth.Subscription
	if old := r.entries[id]; old != nil {
		oldSub = old.sub
	}
	r.entries[id] = e
	r.mu.Unlock()
	oldSub.Cancel()

	sub := sess.Subscribe(func(state auth.State) {
		if state == auth.StateSignedOut {
			r.drop(id, e)
		}
	})

	r.mu.Lock()
	e.sub = sub
	replaced := r.entries[id] != e
	r.mu.Unlock()
	if replaced {
		sub.Cancel()
	}
	return d
}

// Get はセッションのダッシュボードを返す。ない場合はnilを返す。
func (r *Registry) Get(sessionID string) *Dashboard {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[sessionID]; ok {
		return e.dash
	}
	return nil
}

// Len は保持しているダッシュボード数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// drop はeが現在のエントリであれば破棄する。
func (r *Registry) drop(id string, e *entry) {
	r.mu.Lock()
	if r.entries[id] == e {
		delete(r.entries, id)
	}
	sub := e.sub
	r.mu.Unlock()
	sub.Cancel()
}

// shortID はログ出力用にセッションIDの先頭だけを返す。
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
