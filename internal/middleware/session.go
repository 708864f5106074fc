// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/feedbackflow/internal/auth"
	"github.com/hitoshi/feedbackflow/internal/gate"
	"github.com/hitoshi/feedbackflow/internal/view"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// loginPath は未認証時のリダイレクト先。
const loginPath = "/login"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// sessionContextKey はリクエストコンテキストにライブセッションを格納するためのキー。
	sessionContextKey = contextKey("session")
)

// SessionAttacher はセッションIDからライブセッションを取得するインターフェース。
// auth.Serviceが実装する。
type SessionAttacher interface {
	Attach(ctx context.Context, sessionID string) *auth.Session
}

// GateRecorder はゲート判定のメトリクス記録先。
type GateRecorder interface {
	RecordGateDecision(decision string)
}

// SessionGateConfig はセッションゲートミドルウェアの設定。
type SessionGateConfig struct {
	// Wait は最初の認証状態を待つ最大時間。超えた場合はローディング画面を返す。
	Wait time.Duration
	// RefreshSeconds はローディング画面の再読み込み間隔（秒）。
	RefreshSeconds int
	// Recorder はゲート判定の記録先。nilの場合は記録しない。
	Recorder     GateRecorder
	CookieSecure bool
	CookieDomain string
}

// NewSessionGateMiddleware はCookieのセッションIDに対応するライブセッションにゲートをマウントし、
// 判定に応じてリクエストを振り分けるミドルウェアを返す。
//   - Loading: 認証状態が確定していないためローディング画面を返す（自動再読み込み）
//   - Redirect: ユーザーがいないため303でログイン画面へ誘導する
//   - Allow: セッションとユーザーIDをコンテキストに注入して次へ進む
//
// ゲートはリクエストの終了時にアンマウントする。
func NewSessionGateMiddleware(sessions SessionAttacher, config SessionGateConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. CookieからセッションIDを取得（なければサインアウト状態のセッションになる）
			var sessionID string
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				sessionID = cookie.Value
			}
			sess := sessions.Attach(r.Context(), sessionID)

			// 2. ゲートをマウントして最初の認証状態を待つ
			g := gate.Mount(sess)
			defer g.Unmount()

			decision := g.Wait(r.Context(), config.Wait)
			if config.Recorder != nil {
				config.Recorder.RecordGateDecision(decision.String())
			}

			// 3. 判定に応じて振り分け
			switch decision {
			case gate.Allow:
				user := sess.User()
				if user == nil {
					// 判定後にサインアウトされた
					redirectToLogin(w, r, config, sessionID != "")
					return
				}
				ctx := context.WithValue(r.Context(), sessionContextKey, sess)
				ctx = context.WithValue(ctx, userIDContextKey, user.UID)
				setUserID(ctx, user.UID)
				next.ServeHTTP(w, r.WithContext(ctx))
			case gate.Redirect:
				redirectToLogin(w, r, config, sessionID != "")
			default:
				slog.Info("auth state not ready, rendering loading page",
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Cache-Control", "no-store")
				view.Render(w, http.StatusOK, view.LoadingPage(loadingTarget(r), config.RefreshSeconds))
			}
		})
	}
}

// loadingTarget はローディング画面の再読み込み先を返す。
// GET以外は再送できないため、トップページを再読み込みする。
func loadingTarget(r *http.Request) string {
	if r.Method == http.MethodGet {
		return r.URL.RequestURI()
	}
	return "/"
}

// redirectToLogin はログイン画面へ303でリダイレクトする。
// 無効なセッションCookieを持っていた場合は削除する。
func redirectToLogin(w http.ResponseWriter, r *http.Request, config SessionGateConfig, clearCookie bool) {
	if clearCookie {
		ClearSessionCookie(w, config.CookieSecure, config.CookieDomain)
	}
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

// SetSessionCookie はセッションCookieを設定する。
func SetSessionCookie(w http.ResponseWriter, sessionID string, maxAge int, secure bool, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie はセッションCookieを削除する。
func ClearSessionCookie(w http.ResponseWriter, secure bool, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionFromContext はゲートを通過したリクエストのライブセッションを返す。
func SessionFromContext(ctx context.Context) (*auth.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey).(*auth.Session)
	return sess, ok && sess != nil
}

// ContextWithSession はコンテキストにライブセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, sess *auth.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションゲートを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
