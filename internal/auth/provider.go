package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/feedbackflow/internal/model"
)

const (
	defaultIdentityBaseURL  = "https://identitytoolkit.googleapis.com/v1"
	defaultIdentityTokenURL = "https://securetoken.googleapis.com/v1/token"
)

// ErrTokenRejected はIdPがリフレッシュトークンを拒否したことを表す。
// このエラーを受けたセッションは無効化される。
var ErrTokenRejected = errors.New("refresh token rejected by identity provider")

// Credential はIdPが発行したトークン一式。
type Credential struct {
	UID          string
	Email        string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// IdentityProvider はメールアドレス・パスワード認証を提供するIdPのインターフェース。
type IdentityProvider interface {
	// SignIn はメールアドレスとパスワードでサインインする。
	SignIn(ctx context.Context, email, password string) (*Credential, error)
	// SignUp はアカウントを作成し、そのままサインインした状態のトークンを返す。
	SignUp(ctx context.Context, email, password string) (*Credential, error)
	// Refresh はリフレッシュトークンで新しいIDトークンを取得する。
	Refresh(ctx context.Context, refreshToken string) (*Credential, error)
}

// FirebaseConfig はFirebaseProviderの設定。
type FirebaseConfig struct {
	APIKey string

	// テスト用にオーバーライド可能なURL
	BaseURL  string
	TokenURL string
}

// FirebaseProvider はIdentity Toolkit REST APIによる認証を提供する。
type FirebaseProvider struct {
	config     FirebaseConfig
	httpClient *http.Client
	now        func() time.Time
}

// NewFirebaseProvider はFirebaseProviderを生成する。
// httpClientがnilの場合はhttp.DefaultClientを使用する。
func NewFirebaseProvider(config FirebaseConfig, httpClient *http.Client) *FirebaseProvider {
	if config.BaseURL == "" {
		config.BaseURL = defaultIdentityBaseURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultIdentityTokenURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &FirebaseProvider{
		config:     config,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// passwordResponse はsignInWithPassword / signUpのレスポンス。
type passwordResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

// refreshResponse はsecuretokenのトークンエンドポイントのレスポンス。
type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// errorResponse はIdPのエラーレスポンス。
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn はメールアドレスとパスワードでサインインする。
func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) (*Credential, error) {
	return p.passwordRequest(ctx, "accounts:signInWithPassword", email, password)
}

// SignUp はアカウントを作成する。
func (p *FirebaseProvider) SignUp(ctx context.Context, email, password string) (*Credential, error) {
	return p.passwordRequest(ctx, "accounts:signUp", email, password)
}

func (p *FirebaseProvider) passwordRequest(ctx context.Context, method, email, password string) (*Credential, error) {
	payload, err := json.Marshal(map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	endpoint := p.config.BaseURL + "/" + method + "?key=" + url.QueryEscape(p.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, status, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", method, err)
	}
	if status != http.StatusOK {
		return nil, mapProviderError(status, body)
	}

	var resp passwordResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", method, err)
	}
	if resp.LocalID == "" || resp.IDToken == "" {
		return nil, fmt.Errorf("empty token in %s response", method)
	}

	return &Credential{
		UID:          resp.LocalID,
		Email:        resp.Email,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    p.expiry(resp.ExpiresIn, resp.IDToken),
	}, nil
}

// Refresh はリフレッシュトークンで新しいIDトークンを取得する。
// IdPがトークンを拒否した場合はErrTokenRejectedをラップして返す。
func (p *FirebaseProvider) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	endpoint := p.config.TokenURL + "?key=" + url.QueryEscape(p.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, status, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	if status >= 400 && status < 500 {
		return nil, fmt.Errorf("%w: %v", ErrTokenRejected, mapProviderError(status, body))
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("refresh failed with status %d", status)
	}

	var resp refreshResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse refresh response: %w", err)
	}
	if resp.IDToken == "" {
		return nil, fmt.Errorf("empty id token in refresh response")
	}

	return &Credential{
		UID:          resp.UserID,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    p.expiry(resp.ExpiresIn, resp.IDToken),
	}, nil
}

func (p *FirebaseProvider) do(req *http.Request) ([]byte, int, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// expiry はexpiresIn(秒)から有効期限を求める。取得できない場合はIDトークンのexpを使う。
func (p *FirebaseProvider) expiry(expiresIn, idToken string) time.Time {
	if secs, err := strconv.Atoi(expiresIn); err == nil && secs > 0 {
		return p.now().Add(time.Duration(secs) * time.Second)
	}
	if exp, err := PeekExpiry(idToken); err == nil {
		return exp
	}
	return p.now().Add(time.Hour)
}

// mapProviderError はIdPのエラーメッセージをAPIErrorに変換する。
// メッセージは "WEAK_PASSWORD : Password should be ..." のように詳細が付くことがある。
func mapProviderError(status int, body []byte) error {
	var er errorResponse
	_ = json.Unmarshal(body, &er)

	code, _, _ := strings.Cut(er.Error.Message, " ")
	switch code {
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "INVALID_EMAIL", "MISSING_PASSWORD":
		return model.NewInvalidCredentialsError()
	case "EMAIL_EXISTS":
		return model.NewEmailExistsError()
	case "WEAK_PASSWORD":
		return model.NewWeakPasswordError()
	case "USER_DISABLED":
		return model.NewAuthFailedError("This account has been disabled.")
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return model.NewAuthFailedError("Too many attempts. Try again later.")
	case "TOKEN_EXPIRED", "INVALID_REFRESH_TOKEN", "USER_NOT_FOUND":
		return model.NewSessionExpiredError()
	}

	slog.Warn("unexpected identity provider error",
		slog.Int("status", status),
		slog.String("message", er.Error.Message),
	)
	return model.NewAuthFailedError(fmt.Sprintf("Authentication failed (status %d).", status))
}

// compile-time interface check
var _ IdentityProvider = (*FirebaseProvider)(nil)
