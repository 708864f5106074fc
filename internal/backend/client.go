// Package backend はフィードバックAPI(バックエンドRESTサービス)のクライアントを提供する。
// 呼び出しごとにセッションからIDトークンを取得し、Bearerトークンとして付与する。
// リトライ・キャッシュ・重複排除は行わない。
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// エンドポイント名。ログとメトリクスのラベルに使用する。
const (
	EndpointProfile           = "profile"
	EndpointFeedbacks         = "feedbacks"
	EndpointEmployees         = "employees"
	EndpointFeedbacksFrom     = "feedbacks_from"
	EndpointManagers          = "managers"
	EndpointRegister          = "register"
	EndpointCreateFeedback    = "create_feedback"
	EndpointUpdateFeedback    = "update_feedback"
	EndpointAcknowledge       = "acknowledge"
	EndpointComment           = "comment"
	EndpointRequestFeedback   = "request_feedback"
	EndpointNotifications     = "notifications"
	EndpointMarkNotifications = "mark_notifications_read"
)

// TokenSource はバックエンド呼び出し用のIDトークンを払い出す。auth.Sessionが実装する。
type TokenSource interface {
	Token(ctx context.Context, forceRefresh bool) (string, error)
}

// Recorder はバックエンド呼び出しのメトリクス記録先。
type Recorder interface {
	RecordBackendCall(endpoint string, statusCode int, duration time.Duration)
}

// Error はバックエンドが2xx以外を返したことを表す。
// FastAPI形式の {"detail": ...} はDetailにデコードする。
type Error struct {
	Endpoint string
	Status   int
	Detail   string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend %s: status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("backend %s: status %d: %s", e.Endpoint, e.Status, e.Detail)
}

// Detail はエラーチェーンにバックエンドのdetailがあれば返す。
func Detail(err error) string {
	var be *Error
	if errors.As(err, &be) {
		return be.Detail
	}
	return ""
}

// Client はバックエンドRESTサービスのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    Recorder
	baseURL    string
}

// NewClient はClientを生成する。httpClientがnilの場合はタイムアウトなしのクライアントを使う。
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger, metrics Recorder) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    metrics,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// call は1回のバックエンド呼び出しの定義。
type call struct {
	endpoint string
	method   string
	path     string
	tokens   TokenSource // nilの場合はAuthorizationヘッダーを付与しない
	force    bool        // トークンを強制的に更新する
	body     any
	out      any
}

// do はトークン取得、リクエスト送信、レスポンスのデコードを行う。
func (c *Client) do(ctx context.Context, cl call) error {
	// 1. Bearerトークン取得
	var token string
	if cl.tokens != nil {
		var err error
		token, err = cl.tokens.Token(ctx, cl.force)
		if err != nil {
			return fmt.Errorf("backend %s: obtain token: %w", cl.endpoint, err)
		}
	}

	// 2. リクエスト作成
	var reader io.Reader
	if cl.body != nil {
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("backend %s: encode body: %w", cl.endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, reader)
	if err != nil {
		return fmt.Errorf("backend %s: create request: %w", cl.endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	// 3. 送信
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(cl.endpoint, 0, time.Since(start))
		c.logger.Error("backend call failed",
			slog.String("endpoint", cl.endpoint),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("backend %s: %w", cl.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.record(cl.endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return fmt.Errorf("backend %s: read response: %w", cl.endpoint, err)
	}

	// 4. ステータス確認
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		be := &Error{Endpoint: cl.endpoint, Status: resp.StatusCode, Detail: decodeDetail(body)}
		c.logger.Warn("backend returned error status",
			slog.String("endpoint", cl.endpoint),
			slog.Int("http_status", resp.StatusCode),
			slog.String("detail", be.Detail),
		)
		return be
	}

	// 5. デコード
	if cl.out == nil {
		return nil
	}
	if err := json.Unmarshal(body, cl.out); err != nil {
		return fmt.Errorf("backend %s: decode response: %w", cl.endpoint, err)
	}
	return nil
}

func (c *Client) record(endpoint string, status int, d time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordBackendCall(endpoint, status, d)
	}
}

// decodeDetail はFastAPIのエラーボディからdetailを取り出す。
// detailは文字列か、バリデーションエラーの配列のいずれか。
func decodeDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return string(envelope.Detail)
}
