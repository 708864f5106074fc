// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/feedbackflow/internal/auth"
	"github.com/hitoshi/feedbackflow/internal/backend"
	"github.com/hitoshi/feedbackflow/internal/middleware"
	"github.com/hitoshi/feedbackflow/internal/model"
	"github.com/hitoshi/feedbackflow/internal/view"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	SignUp(ctx context.Context, email, password string) (*auth.Credential, error)
	SignOut(ctx context.Context, sessionID string) error
}

// AccountAPI はログイン・登録で利用するバックエンドの操作。backend.Clientが実装する。
type AccountAPI interface {
	Profile(ctx context.Context, tokens backend.TokenSource, forceRefresh bool) (*model.Profile, error)
	Managers(ctx context.Context) ([]model.Manager, error)
	Register(ctx context.Context, reg model.Registration) error
}

// compile-time interface check
var (
	_ AuthServiceInterface = (*auth.Service)(nil)
	_ AccountAPI           = (*backend.Client)(nil)
)

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はログイン・登録・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	api     AccountAPI
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, api AccountAPI, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		api:     api,
		config:  config,
	}
}

// registerRequest は登録フォームの入力値。
type registerRequest struct {
	Name     string `validate:"required"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
	Role     string `validate:"required,oneof=manager employee"`
	Manager  string `validate:"required_if=Role employee"`
}

// LoginForm はログイン画面を表示する。
// GET /login
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	view.Render(w, http.StatusOK, view.LoginPage(middleware.CSRFTokenFromContext(r.Context()), view.LoginForm{}, nil))
}

// Login はIdPでサインインし、プロフィールの役割に応じたダッシュボードへリダイレクトする。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	form := view.LoginForm{Email: email}

	fail := func(status int, apiErr *model.APIError) {
		view.Render(w, status, view.LoginPage(middleware.CSRFTokenFromContext(r.Context()), form, apiErr))
	}

	if email == "" || password == "" {
		fail(http.StatusUnprocessableEntity, model.NewValidationError("Please enter your email and password."))
		return
	}

	// 1. IdPでサインイン
	sess, err := h.service.SignIn(r.Context(), email, password)
	if err != nil {
		apiErr := auth.AsAPIError(err)
		if apiErr == nil {
			slog.Error("sign in failed", slog.String("error", err.Error()))
			fail(http.StatusBadGateway, model.NewAuthFailedError("Could not reach the sign-in service."))
			return
		}
		fail(http.StatusUnauthorized, apiErr)
		return
	}

	// 2. 最新のトークンでプロフィールを取得して役割を確認
	profile, err := h.api.Profile(r.Context(), sess, true)
	if err != nil {
		slog.Error("failed to load profile after sign in",
			slog.String("endpoint", backend.EndpointProfile),
			slog.String("error", err.Error()),
		)
		h.discard(r.Context(), sess)
		msg := backend.Detail(err)
		if msg == "" {
			msg = "Could not load your profile."
		}
		fail(http.StatusBadGateway, model.NewBackendError(msg))
		return
	}
	role, ok := model.ParseRole(string(profile.Role))
	if !ok {
		slog.Warn("unknown role in profile",
			slog.String("user_id", profile.UID),
			slog.String("role", string(profile.Role)),
		)
		h.discard(r.Context(), sess)
		fail(http.StatusForbidden, model.NewUnknownRoleError(string(profile.Role)))
		return
	}

	// 3. セッションCookieを設定してダッシュボードへ
	middleware.SetSessionCookie(w, sess.ID(), h.config.SessionMaxAge, h.config.CookieSecure, h.config.CookieDomain)
	http.Redirect(w, r, "/"+string(role), http.StatusSeeOther)
}

// discard はログインを完了できなかったセッションを破棄する。
func (h *AuthHandler) discard(ctx context.Context, sess *auth.Session) {
	if err := h.service.SignOut(ctx, sess.ID()); err != nil {
		slog.Warn("failed to discard session", slog.String("error", err.Error()))
	}
}

// RegisterForm は登録画面を表示する。マネージャー一覧の取得に失敗した場合は空の選択肢で表示する。
// GET /register
func (h *AuthHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	view.Render(w, http.StatusOK, view.RegisterPage(
		middleware.CSRFTokenFromContext(r.Context()), view.RegisterForm{}, h.managers(r.Context()), nil))
}

// Register はIdPにアカウントを作成し、バックエンドにプロフィールを登録してログイン画面へリダイレクトする。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	req := registerRequest{
		Name:     strings.TrimSpace(r.PostFormValue("name")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		Role:     r.PostFormValue("role"),
		Manager:  r.PostFormValue("manager"),
	}
	form := view.RegisterForm{Name: req.Name, Email: req.Email, Role: req.Role, Manager: req.Manager}

	fail := func(status int, apiErr *model.APIError) {
		view.Render(w, status, view.RegisterPage(
			middleware.CSRFTokenFromContext(r.Context()), form, h.managers(r.Context()), apiErr))
	}

	// 1. 入力値の検証
	if err := validate.Struct(req); err != nil {
		fail(http.StatusUnprocessableEntity, model.NewValidationError(registerValidationMessage(err)))
		return
	}

	// 2. IdPでアカウント作成
	cred, err := h.service.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		apiErr := auth.AsAPIError(err)
		if apiErr == nil {
			slog.Error("sign up failed", slog.String("error", err.Error()))
			fail(http.StatusBadGateway, model.NewAuthFailedError("Could not reach the sign-up service."))
			return
		}
		fail(http.StatusUnprocessableEntity, apiErr)
		return
	}

	// 3. バックエンドにプロフィールを登録
	reg := model.Registration{
		UID:   cred.UID,
		Name:  req.Name,
		Email: req.Email,
		Role:  model.Role(req.Role),
	}
	if reg.Role == model.RoleEmployee {
		reg.Manager = req.Manager
	}
	if err := h.api.Register(r.Context(), reg); err != nil {
		slog.Error("backend registration failed",
			slog.String("endpoint", backend.EndpointRegister),
			slog.String("user_id", cred.UID),
			slog.String("error", err.Error()),
		)
		msg := backend.Detail(err)
		if msg == "" {
			msg = "Registration failed."
		}
		fail(http.StatusBadGateway, model.NewBackendError(msg))
		return
	}

	slog.Info("user registered", slog.String("user_id", cred.UID), slog.String("role", req.Role))
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// managers は登録フォーム用のマネージャー一覧を返す。失敗した場合はログに記録して空を返す。
func (h *AuthHandler) managers(ctx context.Context) []model.Manager {
	managers, err := h.api.Managers(ctx)
	if err != nil {
		slog.Warn("failed to load managers",
			slog.String("endpoint", backend.EndpointManagers),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return managers
}

// Logout はセッションをサインアウトし、Cookieを削除してログイン画面へリダイレクトする。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if err := h.service.SignOut(r.Context(), cookie.Value); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	middleware.ClearSessionCookie(w, h.config.CookieSecure, h.config.CookieDomain)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// registerValidationMessage は登録フォームの検証エラーを画面表示用の文言にする。
func registerValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Please check the form."
	}
	switch fe := verrs[0]; fe.Field() {
	case "Name":
		return "Please enter your name."
	case "Email":
		if fe.Tag() == "email" {
			return "Please enter a valid email address."
		}
		return "Please enter your email."
	case "Password":
		if fe.Tag() == "min" {
			return "Password should be at least 6 characters."
		}
		return "Please enter a password."
	case "Role":
		return "Please choose a role."
	case "Manager":
		return "Please select your manager."
	default:
		return "Please check the form."
	}
}
