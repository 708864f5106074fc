package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Claims は検証済みIDトークンから取り出したユーザー情報。
type Claims struct {
	UID       string
	Email     string
	ExpiresAt time.Time
}

// TokenVerifier はIDトークンの署名と有効期限を検証する。
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

// OIDCVerifier はIdPの公開鍵(JWKS)でIDトークンを検証する。
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier はJWKS URLから検証器を生成する。ディスカバリは行わない。
// audienceにはIdPのプロジェクトIDを指定する。
func NewOIDCVerifier(ctx context.Context, jwksURL, issuer, audience string) *OIDCVerifier {
	keySet := oidc.NewRemoteKeySet(ctx, jwksURL)
	return &OIDCVerifier{
		verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: audience}),
	}
}

// Verify はIDトークンを検証する。
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	var extra struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&extra); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}

	return &Claims{
		UID:       idToken.Subject,
		Email:     extra.Email,
		ExpiresAt: idToken.Expiry,
	}, nil
}

// HS256Verifier は共有シークレットで署名されたIDトークンを検証する。
// ローカルのIdPエミュレータ向け。
type HS256Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewHS256Verifier はHS256Verifierを生成する。
func NewHS256Verifier(secret, issuer, audience string) (*HS256Verifier, error) {
	if secret == "" {
		return nil, errors.New("HS256 secret is required")
	}
	return &HS256Verifier{secret: []byte(secret), issuer: issuer, audience: audience}, nil
}

// idTokenClaims はIDトークンのクレーム。
type idTokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verify はIDトークンを検証する。
func (v *HS256Verifier) Verify(_ context.Context, rawToken string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &idTokenClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return &Claims{
		UID:       claims.Subject,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// PeekExpiry は署名を検証せずにIDトークンのexpを読み取る。
// 検証済みのトークンか、IdPから直接受け取ったトークンにのみ使用すること。
func PeekExpiry(rawToken string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}

// compile-time interface check
var (
	_ TokenVerifier = (*OIDCVerifier)(nil)
	_ TokenVerifier = (*HS256Verifier)(nil)
)
