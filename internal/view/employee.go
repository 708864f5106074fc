package view

import (
	"net/url"
	"strings"

	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"

	"github.com/hitoshi/feedbackflow/internal/dashboard"
	"github.com/hitoshi/feedbackflow/internal/model"
	"github.com/hitoshi/feedbackflow/internal/security"
)

// EmployeePage は従業員ダッシュボードの現在のページを返す。
func EmployeePage(csrf string, s dashboard.Snapshot, notices []dashboard.Notice, md security.CommentRenderer) Node {
	var content Node
	switch s.Page {
	case dashboard.PageFeedback:
		content = Div(Class("bg-white p-4 rounded-4 shadow-sm"),
			H4(Class("fw-bold text-primary mb-4"), Text("📜 Feedback History")),
			feedbackCards(csrf, s, s.History(), md),
		)
	case dashboard.PageProfile:
		content = profileCard(s.Profile)
	default:
		content = Group{
			Div(Class("mb-4 p-4 bg-white rounded-4 shadow-sm"),
				H3(Class("fw-semibold text-primary mb-1"), Text("👋 Welcome, Employee")),
				P(Class("text-muted mb-3"), Text("Here's your most recent feedback.")),
				postForm("/employee/request-feedback", csrf,
					Button(Type("submit"), Class("btn btn-primary btn-sm mt-3 px-4 py-2 rounded-pill d-flex align-items-center gap-2 request-feedback"),
						If(s.Requesting, Disabled()),
						I(Class("bi bi-send-fill")), Text("Request Feedback"),
					),
				),
			),
			feedbackCards(csrf, s, s.Recent(), md),
		}
	}
	return shell("Employee", csrf, s, notices, content)
}

// feedbackCards は受け取ったフィードバックをカードで表示する。
// すべてのカードを1つのフォームに含め、各ボタンはformactionで対象のレコードを指定する。
// これにより、あるカードで操作しても他のカードのコメント下書きは失われない。
func feedbackCards(csrf string, s dashboard.Snapshot, feedbacks []model.Feedback, md security.CommentRenderer) Node {
	if len(feedbacks) == 0 {
		return P(Class("text-muted"), Text("No feedback yet."))
	}
	return postForm("/employee/drafts", csrf,
		Div(Class("row g-4"),
			Map(feedbacks, func(f model.Feedback) Node {
				return feedbackCard(s, f, md)
			}),
		),
	)
}

func feedbackCard(s dashboard.Snapshot, f model.Feedback, md security.CommentRenderer) Node {
	id := string(f.ID)
	draft := s.Drafts[id]
	base := "/employee/feedback/" + url.PathEscape(id)

	return Div(Class("col-lg-6 col-md-12"),
		Div(Class("card border-0 shadow-sm h-100 feedback-card"), Attr("data-id", id),
			Div(Class("card-body"),
				H5(Class("card-title d-flex justify-content-between align-items-center"),
					Text("Feedback from "+f.FromName),
					If(f.Acknowledged, Span(Class("badge bg-info acknowledged"), Text("Acknowledged"))),
				),
				Small(Class("text-muted mb-2 d-block"), Text("📅 Received on "+feedbackDate(f.Date))),
				Hr(),
				P(Strong(Text("✅ Strengths: ")), Text(f.Strengths)),
				P(Strong(Text("🛠️ Areas to Improve: ")), Text(f.Improvements)),
				tagList(f.Tags),
				Div(Class("d-flex justify-content-between align-items-center mb-3"),
					sentimentBadge(f.Sentiment),
					Button(Type("submit"), Class("btn btn-outline-primary btn-sm acknowledge"),
						Attr("formaction", base+"/acknowledge"),
						If(f.Acknowledged || s.Acknowledging[id], Disabled()),
						Text("Acknowledge"),
					),
				),
				Textarea(Name("draft."+id), Class("form-control mb-2"), Rows("2"),
					Placeholder("Write your comment in markdown..."), Text(draft),
				),
				Div(Class("d-flex gap-2 mb-3"),
					Button(Type("submit"), Class("btn btn-outline-success btn-sm submit-comment"),
						Attr("formaction", base+"/comment"),
						If(s.Commenting[id], Disabled()),
						Text("Submit Comment"),
					),
					Button(Type("submit"), Class("btn btn-outline-secondary btn-sm preview-comment"),
						Attr("formaction", base+"/comment?preview=1"), Text("Preview"),
					),
				),
				Iff(strings.TrimSpace(draft) != "", func() Node {
					return Div(Class("mt-2 comment-preview"),
						Strong(Text("Your Comment:")),
						Div(Class("border p-2 bg-light"), markdown(md, draft)),
					)
				}),
				Iff(len(f.Comments) > 0, func() Node { return commentList(md, f.Comments) }),
			),
		),
	)
}
