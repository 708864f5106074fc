package dashboard

import (
	"context"
	"fmt"

	"github.com/hitoshi/feedbackflow/internal/backend"
	"github.com/hitoshi/feedbackflow/internal/model"
)

// SubmitFeedback はフィードバックを作成する。
// 必須項目が欠けている場合はバックエンドを呼ばずに検証エラーを通知する。
// 成功するとフォームを空にし、自分が書いたフィードバックを取得し直す。
// ローカルへの先行挿入は行わない。
func (d *Dashboard) SubmitFeedback(ctx context.Context, form FeedbackForm) {
	ctx = context.WithoutCancel(ctx)

	d.mu.Lock()
	d.form = form
	if d.submitting {
		d.mu.Unlock()
		return
	}
	if msg := form.Validate(); msg != "" {
		d.notices = append(d.notices, newNotice(NoticeWarning, msg))
		d.mu.Unlock()
		return
	}
	if d.profile == nil || d.profile.UID == "" {
		d.notices = append(d.notices, newNotice(NoticeError, msgProfileNotLoaded))
		d.mu.Unlock()
		return
	}
	d.submitting = true
	d.mu.Unlock()

	err := d.api.CreateFeedback(ctx, d.tokens, form.input())

	d.mu.Lock()
	d.submitting = false
	if err == nil {
		d.form = FeedbackForm{}
	}
	d.mu.Unlock()

	if err != nil {
		d.fail(backend.EndpointCreateFeedback, err, msgFeedbackFailed)
		return
	}
	d.notify(NoticeSuccess, msgFeedbackSubmitted)
	d.refetch(ctx)
}

// EditField は履歴ページでフィードバックの変更可能フィールドをローカルで編集する。
// 保存はUpdateFeedbackで行う。未保存の編集は再マウントで失われる。
func (d *Dashboard) EditField(id, field, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.findLocked(id)
	if i < 0 {
		return fmt.Errorf("feedback %q: %w", id, ErrFeedbackNotFound)
	}
	switch field {
	case "strengths":
		d.feedbacks[i].Strengths = value
	case "improvements":
		d.feedbacks[i].Improvements = value
	case "sentiment":
		s := model.Sentiment(value)
		if !s.Valid() {
			return fmt.Errorf("sentiment %q: %w", value, ErrUnknownField)
		}
		d.feedbacks[i].Sentiment = s
	default:
		return fmt.Errorf("%q: %w", field, ErrUnknownField)
	}
	return nil
}

// UpdateFeedback は1件のフィードバックの変更可能フィールド一式を送信する。
// 差分ではなく現在の値をすべて送る。競合検出は行わず、後勝ちになる。
func (d *Dashboard) UpdateFeedback(ctx context.Context, id string) {
	d.mu.Lock()
	i := d.findLocked(id)
	if i < 0 {
		d.notices = append(d.notices, newNotice(NoticeError, msgUnknownFeedback))
		d.mu.Unlock()
		return
	}
	f := d.feedbacks[i]
	d.mu.Unlock()

	upd := model.FeedbackUpdate{
		Strengths:    f.Strengths,
		Improvements: f.Improvements,
		Sentiment:    f.Sentiment,
	}
	if err := d.api.UpdateFeedback(context.WithoutCancel(ctx), d.tokens, id, upd); err != nil {
		d.fail(backend.EndpointUpdateFeedback, err, msgUpdateFailed)
		return
	}
	d.notify(NoticeSuccess, msgUpdated)
}

// ToggleComments は履歴ページでコメント一覧の表示を切り替える。
func (d *Dashboard) ToggleComments(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.showComments[id] = !d.showComments[id]
	return d.showComments[id]
}
