package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/feedbackflow/internal/model"
	"github.com/hitoshi/feedbackflow/internal/repository"
)

// refreshSkew は有効期限のこの時間前からIDトークンを更新対象とする。
const refreshSkew = time.Minute

// ErrSignedOut はサインインしていないセッションでトークンを要求したことを表す。
var ErrSignedOut = errors.New("session is signed out")

// State はセッションの認証状態。
type State int

const (
	// StateUnknown はIdPからの最初の通知をまだ受け取っていない状態。
	StateUnknown State = iota
	// StateSignedIn はユーザーが確認済みの状態。
	StateSignedIn
	// StateSignedOut はユーザーが存在しない状態。
	StateSignedOut
)

// String は状態名を返す。
func (s State) String() string {
	switch s {
	case StateSignedIn:
		return "signed_in"
	case StateSignedOut:
		return "signed_out"
	default:
		return "unknown"
	}
}

// User はサインイン中のユーザー。
type User struct {
	UID   string
	Email string
}

// Subscription は認証状態の購読ハンドル。Cancelで購読を解除する。
type Subscription struct {
	cancel func()
	once   sync.Once
}

// NewSubscription はcancelを解除処理とする購読ハンドルを生成する。
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Cancel は購読を解除する。複数回呼んでも安全。
func (sub *Subscription) Cancel() {
	if sub == nil {
		return
	}
	sub.once.Do(func() {
		if sub.cancel != nil {
			sub.cancel()
		}
	})
}

// Session はブラウザ1つ分のライブな認証セッション。
// 認証状態の変化を購読者にプッシュし、バックエンド呼び出し用のIDトークンを払い出す。
type Session struct {
	id        string
	expiresAt time.Time
	provider  IdentityProvider
	store     repository.SessionRepository
	events    EventRecorder
	now       func() time.Time

	// deliverMu は通知の配送順序を直列化する。購読時の初回配送と状態変化の配送が前後しない。
	deliverMu sync.Mutex
	// tokenMu はトークン更新を直列化する。
	tokenMu sync.Mutex

	mu        sync.Mutex
	state     State
	user      *User
	cred      Credential
	createdAt time.Time
	subs      map[uint64]func(State)
	nextSubID uint64
}

func newSession(id string, expiresAt time.Time, svc *Service) *Session {
	return &Session{
		id:        id,
		expiresAt: expiresAt,
		provider:  svc.provider,
		store:     svc.store,
		events:    svc.events,
		now:       svc.now,
		createdAt: svc.now(),
		subs:      make(map[uint64]func(State)),
	}
}

// ID はセッションIDを返す。
func (s *Session) ID() string {
	return s.id
}

// ExpiresAt はセッションの有効期限を返す。
func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

// State は現在の認証状態を返す。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User はサインイン中のユーザーを返す。サインインしていない場合はnilを返す。
func (s *Session) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSignedIn || s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Subscribe は認証状態の変化を購読する。
// 状態が既知であれば現在の状態を即座に1回通知し、以後は変化のたびに通知する。
// fnの中から同じセッションのSubscribeやSignOutを呼んではならない。
func (s *Session) Subscribe(fn func(State)) *Subscription {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = fn
	state := s.state
	s.mu.Unlock()

	if state != StateUnknown {
		fn(state)
	}
	return NewSubscription(func() { s.unsubscribe(id) })
}

func (s *Session) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// subscriberCount は購読者数を返す。
func (s *Session) subscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// publish は状態を更新し、変化があれば購読者へ通知する。
func (s *Session) publish(state State, user *User, cred *Credential) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	changed := s.state != state
	s.state = state
	if state == StateSignedIn {
		s.user = user
		if cred != nil {
			s.cred = *cred
		}
	} else {
		s.user = nil
		s.cred = Credential{}
	}
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range fns {
		fn(state)
	}
}

// Token はバックエンド呼び出し用の現在のIDトークンを返す。
// forceRefreshがtrueの場合、または有効期限が近い場合はIdPで更新する。
// IdPがリフレッシュトークンを拒否した場合、セッションはサインアウト状態になる。
func (s *Session) Token(ctx context.Context, forceRefresh bool) (string, error) {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	s.mu.Lock()
	state, cred, user := s.state, s.cred, s.user
	s.mu.Unlock()

	if state != StateSignedIn {
		return "", ErrSignedOut
	}
	if !forceRefresh && s.now().Add(refreshSkew).Before(cred.ExpiresAt) {
		return cred.IDToken, nil
	}

	fresh, err := s.provider.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		s.events.RecordAuthEvent("refresh", "failure")
		if errors.Is(err, ErrTokenRejected) {
			slog.Warn("refresh token rejected, signing out",
				slog.String("user_id", user.UID),
				slog.String("error", err.Error()),
			)
			s.invalidate(context.WithoutCancel(ctx))
		}
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	s.events.RecordAuthEvent("refresh", "success")

	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cred.RefreshToken
	}
	fresh.UID = user.UID
	fresh.Email = user.Email

	s.mu.Lock()
	if s.state == StateSignedIn {
		s.cred = *fresh
	}
	s.mu.Unlock()

	if err := s.persist(ctx); err != nil {
		slog.Warn("failed to persist refreshed session",
			slog.String("session_id", s.id),
			slog.String("error", err.Error()),
		)
	}
	return fresh.IDToken, nil
}

// signIn はサインイン済みの状態にして通知する。
func (s *Session) signIn(cred *Credential) {
	s.publish(StateSignedIn, &User{UID: cred.UID, Email: cred.Email}, cred)
}

// invalidate はセッションをサインアウト状態にし、保存済みのレコードを削除する。
func (s *Session) invalidate(ctx context.Context) {
	s.publish(StateSignedOut, nil, nil)
	if err := s.store.DeleteByID(ctx, s.id); err != nil {
		slog.Warn("failed to delete stored session",
			slog.String("session_id", s.id),
			slog.String("error", err.Error()),
		)
	}
}

// persist は現在のトークンをストアに保存する。
func (s *Session) persist(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateSignedIn {
		s.mu.Unlock()
		return nil
	}
	record := &model.StoredSession{
		ID:           s.id,
		UID:          s.cred.UID,
		Email:        s.cred.Email,
		IDToken:      s.cred.IDToken,
		RefreshToken: s.cred.RefreshToken,
		TokenExpiry:  s.cred.ExpiresAt,
		ExpiresAt:    s.expiresAt,
		CreatedAt:    s.createdAt,
	}
	s.mu.Unlock()

	return s.store.Save(ctx, record)
}
