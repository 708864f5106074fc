// Package auth はIdP連携と、ブラウザごとのライブな認証セッションを提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/feedbackflow/internal/model"
	"github.com/hitoshi/feedbackflow/internal/repository"
)

// restoreTimeout は保存済みセッションの復元にかける最大時間。
const restoreTimeout = 30 * time.Second

// EventRecorder は認証イベントのメトリクス記録先。
type EventRecorder interface {
	RecordAuthEvent(event, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthEvent(string, string) {}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service はサインイン・サインアップ・サインアウトとライブセッションの管理を提供する。
type Service struct {
	provider IdentityProvider
	verifier TokenVerifier
	store    repository.SessionRepository
	config   ServiceConfig
	events   EventRecorder
	now      func() time.Time

	mu   sync.Mutex
	live map[string]*Session
}

// NewService はServiceを生成する。eventsがnilの場合はメトリクスを記録しない。
func NewService(
	provider IdentityProvider,
	verifier TokenVerifier,
	store repository.SessionRepository,
	events EventRecorder,
	config ServiceConfig,
) *Service {
	if events == nil {
		events = nopRecorder{}
	}
	return &Service{
		provider: provider,
		verifier: verifier,
		store:    store,
		config:   config,
		events:   events,
		now:      time.Now,
		live:     make(map[string]*Session),
	}
}

// SignIn はIdPでサインインし、新しいライブセッションを発行して保存する。
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	// 1. IdPでサインイン
	cred, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		s.events.RecordAuthEvent("sign_in", "failure")
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	// 2. セッションを発行
	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}
	sess := newSession(id, s.now().Add(s.sessionTTL()), s)
	sess.signIn(cred)

	// 3. 永続化して登録
	if err := sess.persist(ctx); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	s.track(sess)

	s.events.RecordAuthEvent("sign_in", "success")
	slog.Info("user signed in", slog.String("user_id", cred.UID))
	return sess, nil
}

// SignUp はIdPにアカウントを作成する。セッションは発行しない。
// 呼び出し側はバックエンドへのプロフィール登録後にログイン画面へ誘導する。
func (s *Service) SignUp(ctx context.Context, email, password string) (*Credential, error) {
	cred, err := s.provider.SignUp(ctx, email, password)
	if err != nil {
		s.events.RecordAuthEvent("sign_up", "failure")
		return nil, fmt.Errorf("failed to sign up: %w", err)
	}
	s.events.RecordAuthEvent("sign_up", "success")
	slog.Info("user signed up", slog.String("user_id", cred.UID))
	return cred, nil
}

// SignOut はセッションをサインアウト状態にし、保存済みのレコードを削除する。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	s.mu.Lock()
	sess := s.live[sessionID]
	delete(s.live, sessionID)
	s.mu.Unlock()

	if sess != nil {
		sess.publish(StateSignedOut, nil, nil)
	}
	if err := s.store.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.events.RecordAuthEvent("sign_out", "success")
	slog.Info("user signed out", slog.String("session_id", sessionID))
	return nil
}

// Attach はセッションIDに対応するライブセッションを返す。
// メモリ上にない場合は未確定状態のセッションを返し、ストアからの復元を非同期に行う。
// 復元結果はSubscribeで通知される。sessionIDが空の場合はサインアウト状態のセッションを返す。
func (s *Service) Attach(ctx context.Context, sessionID string) *Session {
	if sessionID == "" {
		sess := newSession("", time.Time{}, s)
		sess.publish(StateSignedOut, nil, nil)
		return sess
	}

	s.mu.Lock()
	if sess, ok := s.live[sessionID]; ok {
		s.mu.Unlock()
		return sess
	}
	sess := newSession(sessionID, time.Time{}, s)
	s.live[sessionID] = sess
	s.mu.Unlock()
	s.watch(sess)

	go s.restore(context.WithoutCancel(ctx), sess)
	return sess
}

// restore は保存済みセッションを検証し、サインイン状態またはサインアウト状態を通知する。
func (s *Service) restore(ctx context.Context, sess *Session) {
	ctx, cancel := context.WithTimeout(ctx, restoreTimeout)
	defer cancel()

	// 1. ストアから取得
	stored, err := s.store.FindByID(ctx, sess.id)
	if err != nil {
		slog.Error("failed to load stored session",
			slog.String("session_id", sess.id),
			slog.String("error", err.Error()),
		)
	}
	if stored == nil {
		s.events.RecordAuthEvent("restore", "missing")
		sess.publish(StateSignedOut, nil, nil)
		return
	}

	sess.mu.Lock()
	sess.expiresAt = stored.ExpiresAt
	sess.createdAt = stored.CreatedAt
	sess.mu.Unlock()

	cred := &Credential{
		UID:          stored.UID,
		Email:        stored.Email,
		IDToken:      stored.IDToken,
		RefreshToken: stored.RefreshToken,
		ExpiresAt:    stored.TokenExpiry,
	}

	// 2. 有効期限内ならIDトークンを検証、期限切れ間近ならリフレッシュ
	if s.now().Add(refreshSkew).Before(cred.ExpiresAt) {
		claims, err := s.verifier.Verify(ctx, cred.IDToken)
		if err == nil && claims.UID == stored.UID {
			sess.signIn(cred)
			s.events.RecordAuthEvent("restore", "success")
			return
		}
		if err != nil {
			slog.Warn("stored id token failed verification, trying refresh",
				slog.String("session_id", sess.id),
				slog.String("error", err.Error()),
			)
		}
	}

	fresh, err := s.provider.Refresh(ctx, cred.RefreshToken)
	if err != nil || (fresh.UID != "" && fresh.UID != stored.UID) {
		if err != nil {
			slog.Warn("failed to refresh stored session",
				slog.String("session_id", sess.id),
				slog.String("error", err.Error()),
			)
		}
		s.events.RecordAuthEvent("restore", "failure")
		sess.invalidate(ctx)
		return
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cred.RefreshToken
	}
	fresh.UID = stored.UID
	fresh.Email = stored.Email

	// 3. サインイン状態を通知して保存
	sess.signIn(fresh)
	if err := sess.persist(ctx); err != nil {
		slog.Warn("failed to persist restored session",
			slog.String("session_id", sess.id),
			slog.String("error", err.Error()),
		)
	}
	s.events.RecordAuthEvent("restore", "success")
}

// Purge は期限切れのセッションをストアとメモリから削除し、ストアから削除した件数を返す。
func (s *Service) Purge(ctx context.Context) (int64, error) {
	now := s.now()

	var expired []*Session
	s.mu.Lock()
	for id, sess := range s.live {
		if exp := sess.ExpiresAt(); !exp.IsZero() && !exp.After(now) {
			expired = append(expired, sess)
			delete(s.live, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.publish(StateSignedOut, nil, nil)
	}

	n, err := s.store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return n, nil
}

// LiveCount はメモリ上のライブセッション数を返す。
func (s *Service) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// track はセッションをライブセッションとして登録する。
func (s *Service) track(sess *Session) {
	s.mu.Lock()
	s.live[sess.id] = sess
	s.mu.Unlock()
	s.watch(sess)
}

// watch はセッションがサインアウト状態になったらライブセッションから外す。
func (s *Service) watch(sess *Session) {
	sess.Subscribe(func(state State) {
		if state != StateSignedOut {
			return
		}
		s.mu.Lock()
		if s.live[sess.id] == sess {
			delete(s.live, sess.id)
		}
		s.mu.Unlock()
	})
}

func (s *Service) sessionTTL() time.Duration {
	return time.Duration(s.config.SessionMaxAge) * time.Second
}

// AsAPIError はエラーチェーンからAPIErrorを取り出す。見つからない場合はnilを返す。
func AsAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
