// Package view はgomponentsでHTMLページを組み立てる。
//
// ページ関数は描画に必要な値だけを受け取り、http.Requestやセッションには依存しない。
// 状態を変更する操作はすべてPOSTフォームで行い、CSRFトークンをhiddenフィールドで送る。
package view

import (
	"fmt"
	"log/slog"
	"net/http"

	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"

	"github.com/hitoshi/feedbackflow/internal/dashboard"
	"github.com/hitoshi/feedbackflow/internal/model"
)

// CSRFFieldName はCSRFトークンを送るフォームフィールド名。
const CSRFFieldName = "csrf_token"

const (
	bootstrapCSS      = "https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/css/bootstrap.min.css"
	bootstrapIconsCSS = "https://cdn.jsdelivr.net/npm/bootstrap-icons@1.11.3/font/bootstrap-icons.min.css"
)

// Render はノードをHTMLとして書き込む。
func Render(w http.ResponseWriter, status int, node Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := node.Render(w); err != nil {
		slog.Error("failed to render page", slog.String("error", err.Error()))
	}
}

// document はHTML文書の骨格を返す。
func document(title string, head []Node, body ...Node) Node {
	return Doctype(
		HTML(
			Lang("en"),
			Head(
				Meta(Charset("utf-8")),
				Meta(Name("viewport"), Content("width=device-width, initial-scale=1")),
				TitleEl(Text(title+" | Feedback Flow")),
				Link(Rel("stylesheet"), Href(bootstrapCSS)),
				Link(Rel("stylesheet"), Href(bootstrapIconsCSS)),
				Group(head),
			),
			Body(Class("bg-light"), Group(body)),
		),
	)
}

// csrfField はCSRFトークンのhiddenフィールドを返す。
func csrfField(token string) Node {
	return Input(Type("hidden"), Name(CSRFFieldName), Value(token))
}

// postForm はCSRFトークン付きのPOSTフォームを返す。
func postForm(action, csrf string, children ...Node) Node {
	return Form(Method("post"), Action(action), csrfField(csrf), Group(children))
}

// basePath は役割ごとのダッシュボードのパスを返す。
func basePath(role model.Role) string {
	return "/" + string(role)
}

// shell はトップバーとサイドバーを備えたダッシュボードの枠を返す。
func shell(title, csrf string, s dashboard.Snapshot, notices []dashboard.Notice, content ...Node) Node {
	return document(title, nil,
		topbar(csrf, s),
		Div(Class("d-flex"),
			sidebar(csrf, s),
			Main(Class("container-fluid p-4"),
				noticeList(notices),
				Group(content),
			),
		),
	)
}

// topbar はブランド、通知ベル、役割バッジ、ログアウトボタンを表示する。
func topbar(csrf string, s dashboard.Snapshot) Node {
	count := len(s.Notifications)
	return Nav(Class("navbar navbar-dark bg-primary shadow"),
		Div(Class("container-fluid d-flex justify-content-between align-items-center"),
			Div(Class("navbar-brand d-flex align-items-center gap-2"),
				I(Class("bi bi-chat-square-text fs-3")),
				Span(Class("fs-5 fw-bold"), Text("Feedback Flow")),
			),
			Div(Class("d-flex align-items-center position-relative text-white gap-3"),
				Div(Class("position-relative"), ID("notifications"),
					postForm(basePath(s.Role)+"/notifications/toggle", csrf,
						Button(Type("submit"), Class("btn btn-link text-white p-0"),
							Attr("aria-label", "Notifications"),
							Attr("aria-expanded", fmt.Sprint(s.NotificationsOpen)),
							I(Class("bi bi-bell-fill fs-5")),
						),
					),
					If(count > 0,
						Span(Class("position-absolute top-0 start-100 translate-middle badge rounded-pill bg-danger notification-badge"),
							Text(fmt.Sprint(count)),
						),
					),
					If(s.NotificationsOpen, notificationPanel(s.Notifications)),
				),
				Span(Class("badge bg-light text-dark px-3 py-2 rounded-pill"), Text(s.Role.Label())),
				postForm("/logout", csrf,
					Button(Type("submit"), Class("btn btn-outline-light btn-sm d-flex align-items-center gap-1"),
						I(Class("bi bi-box-arrow-right")), Text(" Logout"),
					),
				),
			),
		),
	)
}

func notificationPanel(ns []model.Notification) Node {
	var items Node
	if len(ns) == 0 {
		items = Div(Class("text-muted text-center py-4"),
			I(Class("bi bi-check-circle fs-4 mb-2 d-block")),
			Text("You're all caught up!"),
		)
	} else {
		items = Map(ns, func(n model.Notification) Node {
			return Div(Class("d-flex gap-3 align-items-start p-3 rounded-3 mb-2 notification-card bg-light"),
				I(Class("bi bi-info-circle-fill text-primary pt-1")),
				Div(Class("flex-grow-1"),
					Div(Class("text-dark fw-semibold mb-1"), Text(n.Message)),
					Div(Class("text-muted small"), Text(notificationTime(n.Timestamp))),
				),
			)
		})
	}

	return Div(Class("position-absolute end-0 mt-3 me-2 p-3 rounded-4 shadow-lg bg-white notification-panel"),
		StyleAttr("width: 360px; max-height: 400px; overflow-y: auto; z-index: 1100;"),
		Div(Class("d-flex justify-content-between align-items-center mb-3"),
			H6(Class("fw-bold text-dark mb-0"), I(Class("bi bi-bell me-2 text-primary")), Text("Notifications")),
			Span(Class("badge bg-primary-subtle text-primary rounded-pill px-2"), Text(fmt.Sprint(len(ns)))),
		),
		items,
	)
}

func notificationTime(ts string) string {
	t := model.ParseTimestamp(ts)
	if t.IsZero() {
		return "Just now"
	}
	return t.Format("15:04:05")
}

// sidebar は役割に応じたナビゲーションを表示する。
func sidebar(csrf string, s dashboard.Snapshot) Node {
	heading := "Manager Panel"
	if s.Role == model.RoleEmployee {
		heading = "Employee Panel"
	}

	return Aside(Class("text-white p-4 shadow-lg"),
		StyleAttr("min-height: 100vh; width: 260px; background: linear-gradient(160deg, #1e293b, #334155);"),
		H6(Class("fw-bold text-uppercase mb-4"), Text(heading)),
		postForm(basePath(s.Role)+"/page", csrf,
			Ul(Class("nav flex-column gap-3"),
				Map(s.Nav, func(item dashboard.NavItem) Node {
					cls := "btn text-start w-100 px-4 py-2 rounded-4 text-white bg-transparent"
					if item.Page == s.Page {
						cls = "btn text-start w-100 px-4 py-2 rounded-4 bg-white text-dark shadow-sm fw-semibold active"
					}
					return Li(Class("nav-item"),
						Button(Type("submit"), Name("page"), Value(string(item.Page)), Class(cls), Text(item.Label)),
					)
				}),
			),
		),
	)
}

// noticeList は一時的な通知をトーストとして表示する。
func noticeList(notices []dashboard.Notice) Node {
	if len(notices) == 0 {
		return nil
	}
	return Div(Class("notices mb-3"),
		Map(notices, func(n dashboard.Notice) Node {
			return Div(Class("alert "+alertClass(n.Level)+" notice"), Attr("role", "alert"), Attr("data-notice-id", n.ID),
				Text(n.Text),
			)
		}),
	)
}

func alertClass(level dashboard.NoticeLevel) string {
	switch level {
	case dashboard.NoticeSuccess:
		return "alert-success"
	case dashboard.NoticeWarning:
		return "alert-warning"
	default:
		return "alert-danger"
	}
}

// sentimentClass はSentimentバッジのクラスを返す。
func sentimentClass(s model.Sentiment) string {
	switch s {
	case model.SentimentPositive:
		return "bg-success"
	case model.SentimentNeutral:
		return "bg-warning text-dark"
	default:
		return "bg-danger"
	}
}

// profileCard はプロフィールページを返す。
func profileCard(p *model.Profile) Node {
	if p == nil {
		return P(Class("text-muted"), Text("Profile not loaded."))
	}
	return Div(Class("bg-white p-4 rounded-4 shadow-sm profile"),
		H4(Class("fw-bold text-primary mb-4"), I(Class("bi bi-person-circle me-2")), Text("Profile")),
		P(Class("mb-3"), Strong(Text("Name: ")), Text(p.Name)),
		P(Class("mb-3"), Strong(Text("Email: ")), Text(p.Email)),
		P(Class("mb-0"), Strong(Text("Role: ")), Text(p.Role.Label())),
	)
}
