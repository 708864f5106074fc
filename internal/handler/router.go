package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/feedbackflow/internal/dashboard"
	"github.com/hitoshi/feedbackflow/internal/middleware"
	"github.com/hitoshi/feedbackflow/internal/model"
	"github.com/hitoshi/feedbackflow/internal/security"
	"github.com/hitoshi/feedbackflow/internal/view"
)

// MetricsRecorder はルーターのミドルウェアが記録するメトリクス。metrics.Collectorが実装する。
type MetricsRecorder interface {
	middleware.StatusRecorder
	middleware.GateRecorder
}

// RouterConfig はルーターの設定。
type RouterConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int           // セッションCookieの有効期間（秒）
	GateWait      time.Duration // 最初の認証状態を待つ最大時間
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger  *slog.Logger
	Metrics MetricsRecorder
	// MetricsHandler は /metrics で公開するハンドラー。nilの場合は公開しない。
	MetricsHandler http.Handler
	RateLimiter    *middleware.RateLimiter

	// 認証
	Sessions    middleware.SessionAttacher
	AuthService AuthServiceInterface
	AccountAPI  AccountAPI

	// ダッシュボード
	Registry *dashboard.Registry
	Renderer security.CommentRenderer

	Config RouterConfig
}

// NewRouter は全画面のルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Metrics → Recovery → SecurityHeaders → CSRF
//	  ├ ログイン・登録: AuthRateLimit
//	  └ ダッシュボード: SessionGate → RateLimit(General)
//
// /health と /metrics はCSRFの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		view.Render(w, http.StatusNotFound, view.ErrorPage(http.StatusNotFound, "Not Found", "The page you requested does not exist."))
	})

	// --- 運用エンドポイント ---
	r.Get("/health", Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AccountAPI, AuthHandlerConfig{
		CookieDomain:  deps.Config.CookieDomain,
		CookieSecure:  deps.Config.CookieSecure,
		SessionMaxAge: deps.Config.SessionMaxAge,
	})
	dashHandler := NewDashboardHandler(deps.Registry, deps.Renderer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(middleware.CSRFConfig{
			CookieSecure: deps.Config.CookieSecure,
			CookieDomain: deps.Config.CookieDomain,
		}))

		// --- 認証不要のルート ---
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())

			r.Get("/", authHandler.LoginForm)
			r.Get("/login", authHandler.LoginForm)
			r.Post("/login", authHandler.Login)
			r.Get("/register", authHandler.RegisterForm)
			r.Post("/register", authHandler.Register)
		})
		r.Post("/logout", authHandler.Logout)

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: SessionGate → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionGateMiddleware(deps.Sessions, middleware.SessionGateConfig{
				Wait:           deps.Config.GateWait,
				RefreshSeconds: 1,
				Recorder:       deps.Metrics,
				CookieSecure:   deps.Config.CookieSecure,
				CookieDomain:   deps.Config.CookieDomain,
			}))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			for _, role := range []model.Role{model.RoleManager, model.RoleEmployee} {
				base := "/" + string(role)
				r.Get(base, dashHandler.Mount(role))
				r.Get(base+"/view", dashHandler.View(role))
				r.Post(base+"/page", dashHandler.SelectPage(role))
				r.Post(base+"/notifications/toggle", dashHandler.ToggleNotifications(role))
			}

			r.Post("/manager/feedback", dashHandler.SubmitFeedback)
			r.Post("/manager/edits", dashHandler.SaveEdits)
			r.Post("/manager/feedback/{id}", dashHandler.UpdateFeedback)
			r.Post("/manager/feedback/{id}/comments", dashHandler.ToggleComments)

			r.Post("/employee/drafts", dashHandler.SaveDrafts)
			r.Post("/employee/feedback/{id}/acknowledge", dashHandler.Acknowledge)
			r.Post("/employee/feedback/{id}/comment", dashHandler.Comment)
			r.Post("/employee/request-feedback", dashHandler.RequestFeedback)
		})
	})

	return r
}

// Health はプロセスの稼働確認に応答する。
// GET /health
func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
