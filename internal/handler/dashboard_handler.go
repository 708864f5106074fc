package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/feedbackflow/internal/dashboard"
	"github.com/hitoshi/feedbackflow/internal/middleware"
	"github.com/hitoshi/feedbackflow/internal/model"
	"github.com/hitoshi/feedbackflow/internal/security"
	"github.com/hitoshi/feedbackflow/internal/view"
)

// DashboardHandler はロール別ダッシュボードのHTTPハンドラー。
// GET /{role} でマウントし、各操作はPOSTの後に /{role}/view へ303でリダイレクトする。
type DashboardHandler struct {
	registry *dashboard.Registry
	renderer security.CommentRenderer
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(registry *dashboard.Registry, renderer security.CommentRenderer) *DashboardHandler {
	return &DashboardHandler{
		registry: registry,
		renderer: renderer,
	}
}

// Mount はダッシュボードをマウントし直して表示する。
// プロフィールの役割がURLと異なる場合は正しいダッシュボードへリダイレクトする。
// GET /manager, GET /employee
func (h *DashboardHandler) Mount(role model.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := middleware.SessionFromContext(r.Context())
		if !ok {
			middleware.WriteInternalServerError(w)
			return
		}

		d := h.registry.Mount(r.Context(), sess, role)
		snap := d.Snapshot()
		if snap.Profile != nil {
			if actual, ok := model.ParseRole(string(snap.Profile.Role)); ok && actual != role {
				slog.Info("role mismatch, redirecting",
					slog.String("requested", string(role)),
					slog.String("actual", string(actual)),
				)
				http.Redirect(w, r, "/"+string(actual), http.StatusSeeOther)
				return
			}
		}
		h.render(w, r, snap, d.DrainNotices())
	}
}

// View は現在のダッシュボードの状態を表示する。マウントされていない場合はマウントへリダイレクトする。
// GET /manager/view, GET /employee/view
func (h *DashboardHandler) View(role model.Role) http.HandlerFunc {
	return h.with(role, func(w http.ResponseWriter, r *http.Request, d *dashboard.Dashboard) {
		h.render(w, r, d.Snapshot(), d.DrainNotices())
	})
}

// SelectPage はサイドバーの選択を反映する。
// POST /{role}/page
func (h *DashboardHandler) SelectPage(role model.Role) http.HandlerFunc {
	return h.action(role, func(r *http.Request, d *dashboard.Dashboard) {
		d.SelectPage(dashboard.Page(r.PostFormValue("page")))
	})
}

// ToggleNotifications は通知パネルを開閉する。
// POST /{role}/notifications/toggle
func (h *DashboardHandler) ToggleNotifications(role model.Role) http.HandlerFunc {
	return h.action(role, func(r *http.Request, d *dashboard.Dashboard) {
		d.ToggleNotifications(r.Context())
	})
}

// SubmitFeedback はフィードバックを作成する。
// POST /manager/feedback
func (h *DashboardHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	h.action(model.RoleManager, func(r *http.Request, d *dashboard.Dashboard) {
		d.SubmitFeedback(r.Context(), dashboard.FeedbackForm{
			Employee:     r.PostFormValue("employee"),
			Strengths:    r.PostFormValue("strengths"),
			Improvements: r.PostFormValue("improvements"),
			Sentiment:    r.PostFormValue("sentiment"),
			Tags:         r.PostForm["tags"],
		})
	})(w, r)
}

// SaveEdits は履歴ページの編集内容を保持する。保存はしない。
// POST /manager/edits
func (h *DashboardHandler) SaveEdits(w http.ResponseWriter, r *http.Request) {
	h.action(model.RoleManager, func(r *http.Request, d *dashboard.Dashboard) {
		applyEdits(d, r.PostForm)
	})(w, r)
}

// UpdateFeedback は編集内容を保持した上で、1件のフィードバックを保存する。
// POST /manager/feedback/{id}
func (h *DashboardHandler) UpdateFeedback(w http.ResponseWriter, r *http.Request) {
	h.action(model.RoleManager, func(r *http.Request, d *dashboard.Dashboard) {
		applyEdits(d, r.PostForm)
		d.UpdateFeedback(r.Context(), recordID(r))
	})(w, r)
}

// ToggleComments は編集内容を保持した上で、コメント一覧の表示を切り替える。
// POST /manager/feedback/{id}/comments
func (h *DashboardHandler) ToggleComments(w http.ResponseWriter, r *http.Request) {
	h.action(model.RoleManager, func(r *http.Request, d *dashboard.Dashboard) {
		applyEdits(d, r.PostForm)
		d.ToggleComments(recordID(r))
	})(w, r)
}

// SaveDrafts はコメントの下書きを保持する。送信はしない。
// POST /employee/drafts
func (h *DashboardHandler) SaveDrafts(w http.ResponseWriter, r *http.Request) {
	h.action(model.RoleEmployee, func(r *http.Request, d *dashboard.Dashboard) {
		applyDrafts(d, r.PostForm)
	})(w, r)
}

// Acknowledge は下書きを保持した上で、フィードバックを確認済みにする。
// POST /employee/feedback/{id}/acknowledge
func (h *DashboardHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	h.action(model.RoleEmployee, func(r *http.Request, d *dashboard.Dashboard) {
		applyDrafts(d, r.PostForm)
		d.Acknowledge(r.Context(), recordID(r))
	})(w, r)
}

// Comment は下書きを保持した上で、コメントを送信する。
// preview=1 の場合は下書きの保持だけを行い、プレビューを表示する。
// POST /employee/feedback/{id}/comment
func (h *DashboardHandler) Comment(w http.ResponseWriter, r *http.Request) {
	h.action(model.RoleEmployee, func(r *http.Request, d *dashboard.Dashboard) {
		applyDrafts(d, r.PostForm)
		if r.URL.Query().Get("preview") == "1" {
			return
		}
		d.SubmitComment(r.Context(), recordID(r))
	})(w, r)
}

// RequestFeedback はマネージャーにフィードバックを依頼する。
// POST /employee/request-feedback
func (h *DashboardHandler) RequestFeedback(w http.ResponseWriter, r *http.Request) {
	h.action(model.RoleEmployee, func(r *http.Request, d *dashboard.Dashboard) {
		d.RequestFeedback(r.Context())
	})(w, r)
}

// with はセッションのダッシュボードを取り出してfnを呼ぶ。
// ダッシュボードがない、または役割が異なる場合はマウントへリダイレクトする。
func (h *DashboardHandler) with(role model.Role, fn func(w http.ResponseWriter, r *http.Request, d *dashboard.Dashboard)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := middleware.SessionFromContext(r.Context())
		if !ok {
			middleware.WriteInternalServerError(w)
			return
		}
		d := h.registry.Get(sess.ID())
		if d == nil || d.Role() != role {
			http.Redirect(w, r, "/"+string(role), http.StatusSeeOther)
			return
		}
		fn(w, r, d)
	}
}

// action はフォームを解析して操作を実行し、表示へ303でリダイレクトする。
func (h *DashboardHandler) action(role model.Role, fn func(r *http.Request, d *dashboard.Dashboard)) http.HandlerFunc {
	return h.with(role, func(w http.ResponseWriter, r *http.Request, d *dashboard.Dashboard) {
		if err := r.ParseForm(); err != nil {
			slog.Warn("failed to parse form", slog.String("error", err.Error()))
			middleware.WriteErrorPage(w, http.StatusBadRequest, model.NewValidationError("The form could not be read."))
			return
		}
		fn(r, d)
		http.Redirect(w, r, "/"+string(role)+"/view", http.StatusSeeOther)
	})
}

// render はスナップショットを役割に応じたページとして描画する。
func (h *DashboardHandler) render(w http.ResponseWriter, r *http.Request, snap dashboard.Snapshot, notices []dashboard.Notice) {
	csrf := middleware.CSRFTokenFromContext(r.Context())
	w.Header().Set("Cache-Control", "no-store")
	if snap.Role == model.RoleManager {
		view.Render(w, http.StatusOK, view.ManagerPage(csrf, snap, notices, h.renderer))
		return
	}
	view.Render(w, http.StatusOK, view.EmployeePage(csrf, snap, notices, h.renderer))
}

// editFields は履歴ページで編集できるフィールド。フォームのキーは "<field>.<id>"。
var editFields = []string{"strengths", "improvements", "sentiment"}

// applyEdits はフォームに含まれる履歴の編集内容をダッシュボードに反映する。
func applyEdits(d *dashboard.Dashboard, form url.Values) {
	for key, values := range form {
		field, id, ok := strings.Cut(key, ".")
		if !ok || id == "" || len(values) == 0 {
			continue
		}
		if !slices.Contains(editFields, field) {
			continue
		}
		if err := d.EditField(id, field, values[0]); err != nil {
			if errors.Is(err, dashboard.ErrFeedbackNotFound) {
				// 再取得で消えたレコードへの編集
				continue
			}
			slog.Warn("ignored feedback edit",
				slog.String("field", field),
				slog.String("feedback_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
}

// applyDrafts はフォームに含まれるコメントの下書きをダッシュボードに反映する。
func applyDrafts(d *dashboard.Dashboard, form url.Values) {
	for key, values := range form {
		id, ok := strings.CutPrefix(key, "draft.")
		if !ok || id == "" || len(values) == 0 {
			continue
		}
		d.SetCommentDraft(id, values[0])
	}
}

// recordID はURLのレコードIDを返す。
// chiはエスケープされたパスでルーティングするため、パラメータはここで元に戻す。
func recordID(r *http.Request) string {
	id := chi.URLParam(r, "id")
	if unescaped, err := url.PathUnescape(id); err == nil {
		return unescaped
	}
	return id
}
