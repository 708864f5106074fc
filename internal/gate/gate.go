// Package gate はセッションゲートを提供する。
// 認証状態の最初の通知を待ち、保護されたページの表示・ログインへのリダイレクト・
// ローディング表示のいずれかを決定する。
package gate

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/feedbackflow/internal/auth"
)

// Decision はゲートの判定結果。
type Decision int

const (
	// Loading は認証状態がまだ通知されていない。
	Loading Decision = iota
	// Allow はユーザーが確認済みで、保護されたページを表示してよい。
	Allow
	// Redirect はユーザーが存在せず、ログイン画面へ誘導する。
	Redirect
)

// String は判定名を返す。
func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	default:
		return "loading"
	}
}

// AuthStateSource は認証状態の変化を購読できる対象。auth.Sessionが実装する。
type AuthStateSource interface {
	Subscribe(fn func(auth.State)) *auth.Subscription
}

// Gate は1回のマウントに対応するセッションゲート。
// 最初の通知を受け取った後はLoadingに戻らない。
type Gate struct {
	mu       sync.Mutex
	decision Decision
	ready    chan struct{}
	once     sync.Once
	sub      *auth.Subscription
	unmount  sync.Once
}

// Mount は認証状態をちょうど1回購読してゲートを生成する。
func Mount(src AuthStateSource) *Gate {
	g := &Gate{ready: make(chan struct{})}
	g.sub = src.Subscribe(g.deliver)
	return g
}

// deliver は認証状態の通知を判定に反映する。
func (g *Gate) deliver(state auth.State) {
	var d Decision
	switch state {
	case auth.StateSignedIn:
		d = Allow
	case auth.StateSignedOut:
		d = Redirect
	default:
		return
	}

	g.mu.Lock()
	g.decision = d
	g.mu.Unlock()
	g.once.Do(func() { close(g.ready) })
}

// Decision は現在の判定を返す。
func (g *Gate) Decision() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision
}

// Wait は最初の通知を最大dだけ待ち、その時点の判定を返す。
// 通知がなければLoadingを返す。
func (g *Gate) Wait(ctx context.Context, d time.Duration) Decision {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-g.ready:
	case <-timer.C:
	case <-ctx.Done():
	}
	return g.Decision()
}

// Unmount は購読を解除する。複数回呼んでも安全。
// 解除後に届いた通知は判定に反映されない。
func (g *Gate) Unmount() {
	g.unmount.Do(func() {
		g.sub.Cancel()
	})
}
