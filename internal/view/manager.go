package view

import (
	"fmt"
	"net/url"
	"slices"

	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"

	"github.com/hitoshi/feedbackflow/internal/dashboard"
	"github.com/hitoshi/feedbackflow/internal/model"
	"github.com/hitoshi/feedbackflow/internal/security"
)

// ManagerPage はマネージャーダッシュボードの現在のページを返す。
func ManagerPage(csrf string, s dashboard.Snapshot, notices []dashboard.Notice, md security.CommentRenderer) Node {
	var content Node
	switch s.Page {
	case dashboard.PageFeedback:
		content = feedbackFormCard(csrf, s)
	case dashboard.PageHistory:
		content = historyList(csrf, s, md)
	case dashboard.PageProfile:
		content = profileCard(s.Profile)
	default:
		content = managerOverview(s)
	}
	return shell("Manager", csrf, s, notices, content)
}

// managerOverview はチームのSentimentの概要、集計、メンバーごとの傾向を表示する。
func managerOverview(s dashboard.Snapshot) Node {
	counts := s.Counts()
	return Group{
		Div(Class("mb-4"),
			H3(Class("fw-bold text-primary"), Text("👋 Welcome back, Manager")),
			P(Class("text-muted mb-0"), Text("Here's a snapshot of your team's performance and feedback trends.")),
		),
		Div(Class("row g-4"),
			Div(Class("col-xl-4 col-lg-6 col-md-12"),
				card("📊 Sentiment Overview", sentimentChart(counts)),
			),
			Div(Class("col-xl-4 col-lg-6 col-md-12"),
				card("📋 Team Summary",
					Ul(Class("list-group list-group-flush team-summary"),
						summaryRow("Total", "Total Feedbacks", "bg-primary", counts.Total()),
						summaryRow(string(model.SentimentPositive), "Positive", "bg-success", counts.Positive),
						summaryRow(string(model.SentimentNeutral), "Neutral", "bg-warning text-dark", counts.Neutral),
						summaryRow(string(model.SentimentNegative), "Negative", "bg-danger", counts.Negative),
					),
				),
			),
			Div(Class("col-xl-4 col-lg-12"),
				card("👥 Team Members", memberList(s.Members())),
			),
		),
	}
}

func card(title string, body ...Node) Node {
	return Div(Class("card border-0 rounded-4 shadow-sm h-100"),
		Div(Class("card-body"),
			H5(Class("fw-semibold mb-3 text-dark"), Text(title)),
			Group(body),
		),
	)
}

// summaryRow は概要カードの1行を返す。keyはdata-sentiment属性に入る。
func summaryRow(key, label, badgeClass string, n int) Node {
	return Li(Class("list-group-item d-flex justify-content-between align-items-center"), Attr("data-sentiment", key),
		Span(Text(label)),
		Span(Class("badge fs-6 "+badgeClass), Text(fmt.Sprint(n))),
	)
}

// sentimentChart はSentimentの割合を円グラフで表示する。
func sentimentChart(c dashboard.SentimentCounts) Node {
	background := "#e9ecef"
	if total := c.Total(); total > 0 {
		pos := float64(c.Positive) * 100 / float64(total)
		neu := pos + float64(c.Neutral)*100/float64(total)
		background = fmt.Sprintf("conic-gradient(#198754 0 %.1f%%, #ffc107 %.1f%% %.1f%%, #dc3545 %.1f%% 100%%)", pos, pos, neu, neu)
	}

	return Div(Class("d-flex flex-column align-items-center sentiment-chart"),
		Div(Class("rounded-circle"), Attr("role", "img"),
			Attr("aria-label", fmt.Sprintf("Positive %d, Neutral %d, Negative %d", c.Positive, c.Neutral, c.Negative)),
			StyleAttr(fmt.Sprintf("width: 200px; height: 200px; background: %s;", background)),
		),
		Div(Class("d-flex gap-3 mt-3 small"),
			Span(I(Class("bi bi-circle-fill text-success me-1")), Text(countLabel("Positive", c.Positive))),
			Span(I(Class("bi bi-circle-fill text-warning me-1")), Text(countLabel("Neutral", c.Neutral))),
			Span(I(Class("bi bi-circle-fill text-danger me-1")), Text(countLabel("Negative", c.Negative))),
		),
	)
}

func memberList(members []dashboard.MemberSummary) Node {
	if len(members) == 0 {
		return P(Class("text-muted"), Text("No team members found."))
	}
	return Div(Class("row row-cols-1 g-3 team-members"), StyleAttr("max-height: 270px; overflow-y: auto;"),
		Map(members, func(m dashboard.MemberSummary) Node {
			return Div(Class("col"),
				Div(Class("rounded-3 border bg-light p-3 shadow-sm h-100 member"),
					Div(Class("d-flex justify-content-between align-items-start mb-2"),
						Div(
							H6(Class("fw-semibold mb-0"), Text(m.Employee.Label())),
							Small(Class("text-muted"), Text(countLabel("Feedbacks", m.Counts.Total()))),
						),
						Span(Class("badge rounded-pill member-badge "+badgeClass(m.Badge)), Text(string(m.Badge))),
					),
					Span(Class("text-muted small"),
						Text(fmt.Sprintf("👍 %d 😐 %d 👎 %d", m.Counts.Positive, m.Counts.Neutral, m.Counts.Negative)),
					),
				),
			)
		}),
	)
}

func badgeClass(b dashboard.Badge) string {
	switch b {
	case dashboard.BadgePositive:
		return "bg-success"
	case dashboard.BadgeMixed:
		return "bg-warning"
	default:
		return "bg-danger"
	}
}

// feedbackFormCard はフィードバック作成フォームを返す。
func feedbackFormCard(csrf string, s dashboard.Snapshot) Node {
	f := s.Form
	return Div(Class("card p-4 shadow-sm"),
		H5(Class("mb-3"), Text("✍️ Submit Feedback")),
		postForm("/manager/feedback", csrf,
			Div(Class("mb-3"),
				Label(For("employee"), Text("Select Employee")),
				Select(ID("employee"), Name("employee"), Class("form-select"),
					option("", "Select", f.Employee),
					Map(s.Employees, func(e model.Employee) Node {
						return option(e.UID, e.Label(), f.Employee)
					}),
				),
			),
			Div(Class("mb-3"),
				Label(For("strengths"), Text("Strengths")),
				Textarea(ID("strengths"), Name("strengths"), Class("form-control"), Rows("2"), Text(f.Strengths)),
			),
			Div(Class("mb-3"),
				Label(For("improvements"), Text("Improvements")),
				Textarea(ID("improvements"), Name("improvements"), Class("form-control"), Rows("2"), Text(f.Improvements)),
			),
			Div(Class("mb-3"),
				Label(Text("Sentiment")),
				sentimentSelect("sentiment", f.Sentiment, "Select"),
			),
			Div(Class("mb-3"),
				Label(Class("d-block"), Text("Tags")),
				Map(model.TagOptions(), func(t model.Tag) Node {
					id := "tag-" + t.Value
					return Div(Class("form-check form-check-inline"),
						Input(Type("checkbox"), Class("form-check-input"), ID(id), Name("tags"), Value(t.Value),
							If(slices.Contains(f.Tags, t.Value), Checked()),
						),
						Label(Class("form-check-label"), For(id), Text(t.Label)),
					)
				}),
			),
			Button(Type("submit"), Class("btn btn-primary"), If(s.Submitting, Disabled()), Text("Submit Feedback")),
		),
	)
}

// historyList は自分が書いたフィードバックを編集可能な形で新しい順に表示する。
// すべてのレコードを1つのフォームに含め、各ボタンはformactionで対象のレコードを指定する。
// これにより、あるレコードを保存しても他のレコードの未保存の編集は失われない。
func historyList(csrf string, s dashboard.Snapshot, md security.CommentRenderer) Node {
	history := s.History()

	var body Node
	if len(history) == 0 {
		body = P(Class("text-muted"), Text("No feedback yet."))
	} else {
		body = postForm("/manager/edits", csrf,
			Map(history, func(f model.Feedback) Node {
				return historyRecord(s, f, md)
			}),
		)
	}

	return Div(Class("p-4 rounded shadow-sm bg-white history"),
		H5(Class("fw-bold text-primary mb-4 d-flex align-items-center gap-2"),
			I(Class("bi bi-clock-history")), Text("Feedback History"),
		),
		body,
	)
}

func historyRecord(s dashboard.Snapshot, f model.Feedback, md security.CommentRenderer) Node {
	id := string(f.ID)
	base := "/manager/feedback/" + url.PathEscape(id)
	showing := s.ShowComments[id]
	toggleLabel := "View Comments"
	if showing {
		toggleLabel = "Hide Comments"
	}

	return Div(Class("bg-light rounded-4 p-4 mb-4 shadow-sm border feedback-record"), Attr("data-id", id),
		P(Class("mb-3 fw-medium text-secondary"),
			I(Class("bi bi-person-circle me-2")), Strong(Text("To: ")), Text(s.EmployeeLabel(f.To)),
			Span(Class("text-muted ms-2 small"), Text(feedbackDate(f.Date))),
		),
		Textarea(Name("strengths."+id), Class("form-control mb-3"), Placeholder("Strengths"), Text(f.Strengths)),
		Textarea(Name("improvements."+id), Class("form-control mb-3"), Placeholder("Improvements"), Text(f.Improvements)),
		sentimentSelect("sentiment."+id, string(f.Sentiment), ""),
		tagList(f.Tags),
		Div(Class("d-flex justify-content-between align-items-center mt-2"),
			Button(Type("submit"), Class("btn btn-success btn-sm px-3"),
				Attr("formaction", base),
				I(Class("bi bi-check-circle me-1")), Text(" Update"),
			),
			If(len(f.Comments) > 0,
				Button(Type("submit"), Class("btn btn-outline-primary btn-sm px-3 toggle-comments"),
					Attr("formaction", base+"/comments"),
					I(Class("bi bi-chat-left-text me-1")), Text(" "+toggleLabel),
				),
			),
		),
		Iff(showing && len(f.Comments) > 0, func() Node { return commentList(md, f.Comments) }),
	)
}
