package view

import (
	"fmt"

	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"

	"github.com/hitoshi/feedbackflow/internal/model"
	"github.com/hitoshi/feedbackflow/internal/security"
)

// feedbackDate は表示用の日付を返す。
func feedbackDate(date string) string {
	t := model.ParseTimestamp(date)
	if t.IsZero() {
		return date
	}
	return t.Format("2006-01-02")
}

func commentDate(date string) string {
	t := model.ParseTimestamp(date)
	if t.IsZero() {
		return date
	}
	return t.Format("2006-01-02 15:04")
}

// markdown はコメント本文をサニタイズ済みHTMLとして埋め込む。
func markdown(md security.CommentRenderer, text string) Node {
	return Div(Class("markdown"), Raw(md.Render(text)))
}

// commentList はフィードバックのコメント一覧を返す。
func commentList(md security.CommentRenderer, comments []model.Comment) Node {
	return Div(Class("mt-4 bg-white rounded-3 p-3 border comments"),
		Strong(Class("d-block mb-2 text-primary"), Text("💬 Comments:")),
		Map(comments, func(c model.Comment) Node {
			return Div(Class("border-bottom pb-2 mb-2 comment"),
				P(Class("mb-1 fw-semibold"),
					Text(c.ByName),
					Span(Class("text-muted ms-2 small"), Text(commentDate(c.Date))),
				),
				markdown(md, c.Text),
			)
		}),
	)
}

// sentimentBadge はSentimentのバッジを返す。
func sentimentBadge(s model.Sentiment) Node {
	return Span(Class("badge px-3 py-2 sentiment "+sentimentClass(s)), Text(string(s)))
}

// tagList はタグの一覧を返す。
func tagList(tags []string) Node {
	if len(tags) == 0 {
		return nil
	}
	labels := make(map[string]string)
	for _, t := range model.TagOptions() {
		labels[t.Value] = t.Label
	}
	return Div(Class("mb-2 tags"),
		Map(tags, func(t string) Node {
			label := labels[t]
			if label == "" {
				label = t
			}
			return Span(Class("badge bg-secondary-subtle text-secondary me-1"), Text(label))
		}),
	)
}

// sentimentSelect は3つのSentimentから選ぶselect要素を返す。
// placeholderが空でなければ未選択の選択肢を先頭に置く。
func sentimentSelect(name, current, placeholder string) Node {
	return Select(Name(name), Class("form-select mb-3"),
		If(placeholder != "", option("", placeholder, current)),
		Map(model.Sentiments(), func(s model.Sentiment) Node {
			return option(string(s), string(s), current)
		}),
	)
}

// countLabel は件数付きのラベルを返す。
func countLabel(label string, n int) string {
	return fmt.Sprintf("%s: %d", label, n)
}
