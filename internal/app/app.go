// Package app はコマンドの解析と、各コマンドの依存関係のワイヤリングを行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/feedbackflow/internal/auth"
	"github.com/hitoshi/feedbackflow/internal/backend"
	"github.com/hitoshi/feedbackflow/internal/config"
	"github.com/hitoshi/feedbackflow/internal/dashboard"
	"github.com/hitoshi/feedbackflow/internal/database"
	"github.com/hitoshi/feedbackflow/internal/handler"
	"github.com/hitoshi/feedbackflow/internal/logger"
	"github.com/hitoshi/feedbackflow/internal/metrics"
	"github.com/hitoshi/feedbackflow/internal/middleware"
	"github.com/hitoshi/feedbackflow/internal/repository"
	"github.com/hitoshi/feedbackflow/internal/security"
	"github.com/hitoshi/feedbackflow/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンを待つ最大時間。
const shutdownTimeout = 30 * time.Second

// errDatabaseRequired はDATABASE_URLが必要なコマンドで未設定だったことを表す。
var errDatabaseRequired = errors.New("DATABASE_URL is required for this command")

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、設定を読み込んでログレベルを反映する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ログレベルを反映
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to set log level: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。サブコマンドがない場合はserveとして起動する。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.Execute()
}

func logStart(cmd Command, cfg *config.Config) {
	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.Bool("database", cfg.UsesDatabase()),
	)
}

// signalContext はSIGINTまたはSIGTERMでキャンセルされるコンテキストを返す。
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// runServe はポータルのHTTPサーバーを起動する。
// 全依存関係をワイヤリングし、期限切れセッションのクリーンアップをバックグラウンドで実行する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. セッションストア
	store, closeStore, err := openSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 3. IdP連携と認証サービス
	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return err
	}
	provider := auth.NewFirebaseProvider(auth.FirebaseConfig{
		APIKey:   cfg.IdentityAPIKey,
		BaseURL:  cfg.IdentityBaseURL,
		TokenURL: cfg.IdentityTokenURL,
	}, &http.Client{Timeout: 15 * time.Second})
	authService := auth.NewService(provider, verifier, store, collector, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	})

	// 4. バックエンドクライアントとダッシュボード
	// バックエンド呼び出しにはタイムアウトを設けない
	api := backend.NewClient(cfg.BackendURL, &http.Client{}, slog.Default(), collector)
	dashboards := dashboard.NewRegistry(api, slog.Default())

	gauges := metrics.SessionGauges{Live: authService.LiveCount, Dashboards: dashboards.Len}
	if counter, ok := store.(interface{ Len() int }); ok {
		gauges.Stored = counter.Len
	}
	metrics.RegisterSessionGauges(registry, gauges)

	// 5. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:         slog.Default(),
		Metrics:        collector,
		MetricsHandler: metrics.Handler(registry),
		RateLimiter:    rateLimiter,
		Sessions:       authService,
		AuthService:    authService,
		AccountAPI:     api,
		Registry:       dashboards,
		Renderer:       security.NewCommentRenderer(),
		Config: handler.RouterConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
			GateWait:      cfg.GateWait,
		},
	})

	// 6. HTTPサーバーとクリーンアップジョブの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("portal server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		cleanup.NewCleanupJob(authService, slog.Default()).Start(ctx, cfg.CleanupInterval)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down portal server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("portal server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(ctx context.Context, cfg *config.Config) error {
	if !cfg.UsesDatabase() {
		return errDatabaseRequired
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	if err := database.Ping(ctx, db); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	result, err := database.RunMigrations(ctx, db, slog.Default())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if !result.Applied() {
		slog.Info("session store schema is up to date", slog.Uint64("version", uint64(result.To)))
	}
	return nil
}

// runCleanup は保存済みの期限切れセッションを1回削除する。
// メモリ上のセッションはプロセスとともに消えるため、データベースを使う構成でのみ意味を持つ。
func runCleanup(ctx context.Context, cfg *config.Config) error {
	if !cfg.UsesDatabase() {
		return errDatabaseRequired
	}

	store, closeStore, err := openSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	return cleanup.NewCleanupJob(storePurger{store: store}, slog.Default()).Run(ctx)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// openSessionStore は設定に応じたセッションストアを開く。
// DATABASE_URLが未設定の場合はメモリ上に保持する。
func openSessionStore(ctx context.Context, cfg *config.Config) (repository.SessionRepository, func(), error) {
	if !cfg.UsesDatabase() {
		slog.Info("using in-memory session store")
		return repository.NewMemorySessionRepo(), func() {}, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return repository.NewPostgresSessionRepo(db), func() { db.Close() }, nil
}

// newVerifier はIDトークンの検証器を生成する。
// IDENTITY_DEV_SECRETが設定されている場合はローカルエミュレータ向けのHS256検証を使う。
func newVerifier(ctx context.Context, cfg *config.Config) (auth.TokenVerifier, error) {
	if cfg.IdentityDevSecret != "" {
		slog.Warn("using HS256 token verification for local development")
		v, err := auth.NewHS256Verifier(cfg.IdentityDevSecret, cfg.IdentityIssuer, cfg.IdentityProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create token verifier: %w", err)
		}
		return v, nil
	}
	return auth.NewOIDCVerifier(ctx, cfg.IdentityJWKSURL, cfg.IdentityIssuer, cfg.IdentityProjectID), nil
}

// storePurger はセッションストアの期限切れレコードを削除する。
type storePurger struct {
	store repository.SessionRepository
}

func (p storePurger) Purge(ctx context.Context) (int64, error) {
	return p.store.DeleteExpired(ctx, time.Now())
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

// healthcheckBaseURL はヘルスチェックの接続先を返す。
// 設定の全読み込みは行わず、SERVER_PORTだけを参照する。
func healthcheckBaseURL() string {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	return "http://localhost:" + port
}
