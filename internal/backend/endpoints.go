package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/hitoshi/feedbackflow/internal/model"
)

// Profile は現在のユーザーのプロフィールを取得する。
// ログイン直後はforceRefreshをtrueにして最新のトークンで呼び出す。
func (c *Client) Profile(ctx context.Context, tokens TokenSource, forceRefresh bool) (*model.Profile, error) {
	var p model.Profile
	err := c.do(ctx, call{
		endpoint: EndpointProfile, method: http.MethodGet, path: "/profile",
		tokens: tokens, force: forceRefresh, out: &p,
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Feedbacks は現在の従業員宛てのフィードバックを取得する。
func (c *Client) Feedbacks(ctx context.Context, tokens TokenSource) ([]model.Feedback, error) {
	var out []model.Feedback
	err := c.do(ctx, call{
		endpoint: EndpointFeedbacks, method: http.MethodGet, path: "/feedbacks",
		tokens: tokens, out: &out,
	})
	return out, err
}

// Employees はマネージャーのチームの従業員一覧を取得する。
func (c *Client) Employees(ctx context.Context, tokens TokenSource) ([]model.Employee, error) {
	var out []model.Employee
	err := c.do(ctx, call{
		endpoint: EndpointEmployees, method: http.MethodGet, path: "/employees",
		tokens: tokens, out: &out,
	})
	return out, err
}

// FeedbacksFrom はマネージャーuidが作成したフィードバックを取得する。
func (c *Client) FeedbacksFrom(ctx context.Context, tokens TokenSource, uid string) ([]model.Feedback, error) {
	var out []model.Feedback
	err := c.do(ctx, call{
		endpoint: EndpointFeedbacksFrom, method: http.MethodGet, path: "/api/feedbacks/from/" + url.PathEscape(uid),
		tokens: tokens, out: &out,
	})
	return out, err
}

// Managers は登録フォーム用の公開マネージャー一覧を取得する。認証不要。
func (c *Client) Managers(ctx context.Context) ([]model.Manager, error) {
	var out []model.Manager
	err := c.do(ctx, call{
		endpoint: EndpointManagers, method: http.MethodGet, path: "/api/managers",
		out: &out,
	})
	return out, err
}

// Register はIdPでのサインアップ後にバックエンドのプロフィールを作成する。認証不要。
func (c *Client) Register(ctx context.Context, reg model.Registration) error {
	return c.do(ctx, call{
		endpoint: EndpointRegister, method: http.MethodPost, path: "/api/register",
		body: reg,
	})
}

// CreateFeedback はフィードバックを作成する。書き込み前にトークンを更新する。
func (c *Client) CreateFeedback(ctx context.Context, tokens TokenSource, in model.FeedbackInput) error {
	return c.do(ctx, call{
		endpoint: EndpointCreateFeedback, method: http.MethodPost, path: "/feedback",
		tokens: tokens, force: true, body: in,
	})
}

// UpdateFeedback はフィードバックの変更可能フィールド一式を置き換える。
func (c *Client) UpdateFeedback(ctx context.Context, tokens TokenSource, id string, upd model.FeedbackUpdate) error {
	return c.do(ctx, call{
		endpoint: EndpointUpdateFeedback, method: http.MethodPut, path: "/feedback/" + url.PathEscape(id),
		tokens: tokens, force: true, body: upd,
	})
}

// Acknowledge はフィードバックを確認済みにする。
func (c *Client) Acknowledge(ctx context.Context, tokens TokenSource, id string) error {
	return c.do(ctx, call{
		endpoint: EndpointAcknowledge, method: http.MethodPut, path: "/feedback/" + url.PathEscape(id) + "/acknowledge",
		tokens: tokens, body: struct{}{},
	})
}

// Comment はフィードバックにコメントを追記する。
func (c *Client) Comment(ctx context.Context, tokens TokenSource, id, text string) error {
	return c.do(ctx, call{
		endpoint: EndpointComment, method: http.MethodPost, path: "/feedback/" + url.PathEscape(id) + "/comment",
		tokens: tokens, body: map[string]string{"text": text},
	})
}

// RequestFeedback は担当マネージャーにフィードバックを依頼する。
func (c *Client) RequestFeedback(ctx context.Context, tokens TokenSource) error {
	return c.do(ctx, call{
		endpoint: EndpointRequestFeedback, method: http.MethodPost, path: "/feedback/request",
		tokens: tokens, body: struct{}{},
	})
}

// Notifications は現在のユーザーの通知を取得する。
func (c *Client) Notifications(ctx context.Context, tokens TokenSource) ([]model.Notification, error) {
	var out []model.Notification
	err := c.do(ctx, call{
		endpoint: EndpointNotifications, method: http.MethodGet, path: "/notifications",
		tokens: tokens, out: &out,
	})
	return out, err
}

// MarkNotificationsRead は通知をすべて既読にする。取り消しはできない。
func (c *Client) MarkNotificationsRead(ctx context.Context, tokens TokenSource) error {
	return c.do(ctx, call{
		endpoint: EndpointMarkNotifications, method: http.MethodPut, path: "/notifications/mark-read",
		tokens: tokens, force: true,
	})
}
