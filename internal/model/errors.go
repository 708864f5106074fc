package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// フォームのインラインエラー、またはダッシュボードの一時通知として表示する。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, network, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryAuth       = "auth"
	CategoryValidation = "validation"
	CategoryNetwork    = "network"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailExists        = "EMAIL_EXISTS"
	ErrCodeWeakPassword       = "WEAK_PASSWORD"
	ErrCodeUnknownRole        = "UNKNOWN_ROLE"
	ErrCodeSessionExpired     = "SESSION_EXPIRED"
	ErrCodeAuthFailed         = "AUTH_FAILED"
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeBackendFailed      = "BACKEND_FAILED"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: CategoryAuth,
		Action:   "Check your credentials and try again.",
	}
}

// NewEmailExistsError は登録済みメールアドレスエラーを生成する。
func NewEmailExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailExists,
		Message:  "An account with this email already exists.",
		Category: CategoryAuth,
		Action:   "Sign in instead, or use a different email address.",
	}
}

// NewWeakPasswordError は弱いパスワードエラーを生成する。
func NewWeakPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  "Password should be at least 6 characters.",
		Category: CategoryAuth,
		Action:   "Choose a longer password.",
	}
}

// NewUnknownRoleError はプロフィールの役割が不明な場合のエラーを生成する。
func NewUnknownRoleError(role string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownRole,
		Message:  fmt.Sprintf("Unknown role: %q", role),
		Category: CategoryAuth,
		Action:   "Contact your administrator.",
	}
}

// NewSessionExpiredError はセッション失効エラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "Your session has expired.",
		Category: CategoryAuth,
		Action:   "Please sign in again.",
	}
}

// NewAuthFailedError はIdPとの通信失敗などの認証エラーを生成する。
func NewAuthFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  reason,
		Category: CategoryAuth,
		Action:   "Please try again.",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: CategoryValidation,
		Action:   "Fill in all required fields.",
	}
}

// NewBackendError はバックエンド呼び出し失敗エラーを生成する。
func NewBackendError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeBackendFailed,
		Message:  message,
		Category: CategoryNetwork,
		Action:   "Please try again.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests.",
		Category: CategorySystem,
		Action:   "Wait a moment and try again.",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Something went wrong.",
		Category: CategorySystem,
		Action:   "Please try again later.",
	}
}
