package dashboard

import (
	"context"
	"strings"

	"github.com/hitoshi/feedbackflow/internal/backend"
	"github.com/hitoshi/feedbackflow/internal/model"
)

// Acknowledge はフィードバックを確認済みにする。
// 確認済みのもの、または確認の呼び出し中のものに対しては何もしない。
// 成功するとフラグを立て、一覧を取得し直す。
func (d *Dashboard) Acknowledge(ctx context.Context, id string) {
	ctx = context.WithoutCancel(ctx)

	d.mu.Lock()
	i := d.findLocked(id)
	if i < 0 {
		d.notices = append(d.notices, newNotice(NoticeError, msgUnknownFeedback))
		d.mu.Unlock()
		return
	}
	if d.feedbacks[i].Acknowledged || d.acknowledging[id] {
		d.mu.Unlock()
		return
	}
	d.acknowledging[id] = true
	d.mu.Unlock()

	err := d.api.Acknowledge(ctx, d.tokens, id)

	d.mu.Lock()
	delete(d.acknowledging, id)
	if err == nil {
		if i := d.findLocked(id); i >= 0 {
			d.feedbacks[i].Acknowledged = true
		}
	}
	d.mu.Unlock()

	if err != nil {
		d.fail(backend.EndpointAcknowledge, err, msgAckFailed)
		return
	}
	d.notify(NoticeSuccess, msgAcknowledged)
	d.refetch(ctx)
}

// SetCommentDraft はコメント入力欄の内容を保持する。
func (d *Dashboard) SetCommentDraft(id, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if text == "" {
		delete(d.drafts, id)
		return
	}
	d.drafts[id] = text
}

// SubmitComment は下書きのコメントを送信する。
// 空白のみの場合はバックエンドを呼ばずに警告を通知する。
// 同じレコードへの送信中は何もしない。
// 成功すると下書きを消し、コメントを1件ローカルに追加してから一覧を取得し直す。
func (d *Dashboard) SubmitComment(ctx context.Context, id string) {
	ctx = context.WithoutCancel(ctx)

	d.mu.Lock()
	text := strings.TrimSpace(d.drafts[id])
	if text == "" {
		d.notices = append(d.notices, newNotice(NoticeWarning, msgEmptyComment))
		d.mu.Unlock()
		return
	}
	if d.findLocked(id) < 0 {
		d.notices = append(d.notices, newNotice(NoticeError, msgUnknownFeedback))
		d.mu.Unlock()
		return
	}
	if d.commenting[id] {
		d.mu.Unlock()
		return
	}
	d.commenting[id] = true
	var by, byName string
	if d.profile != nil {
		by, byName = d.profile.UID, d.profile.Name
	}
	d.mu.Unlock()

	err := d.api.Comment(ctx, d.tokens, id, text)

	d.mu.Lock()
	delete(d.commenting, id)
	if err != nil {
		d.mu.Unlock()
		d.fail(backend.EndpointComment, err, msgCommentFailed)
		return
	}
	delete(d.drafts, id)
	if i := d.findLocked(id); i >= 0 {
		d.feedbacks[i].Comments = append(d.feedbacks[i].Comments, model.Comment{
			By:     by,
			ByName: byName,
			Text:   text,
			Date:   d.now().UTC().Format("2006-01-02T15:04:05"),
		})
	}
	d.notices = append(d.notices, newNotice(NoticeSuccess, msgCommentSubmitted))
	d.mu.Unlock()

	d.refetch(ctx)
}

// RequestFeedback は担当マネージャーにフィードバックを依頼する。
func (d *Dashboard) RequestFeedback(ctx context.Context) {
	d.mu.Lock()
	if d.requesting {
		d.mu.Unlock()
		return
	}
	d.requesting = true
	d.mu.Unlock()

	err := d.api.RequestFeedback(context.WithoutCancel(ctx), d.tokens)

	d.mu.Lock()
	d.requesting = false
	d.mu.Unlock()

	if err != nil {
		d.fail(backend.EndpointRequestFeedback, err, msgGenericFailure)
		return
	}
	d.notify(NoticeSuccess, msgRequestSent)
}
