// Package security はユーザー入力を安全に表示するための機能を提供する。
//
// CommentRenderer はフィードバックのコメント(Markdown)をHTMLに変換し、
// 許可リストベースのポリシーでサニタイズする。
package security

import (
	"bytes"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

// CommentRenderer はコメント本文の表示用HTML生成のインターフェース。
type CommentRenderer interface {
	// Render はMarkdownを安全なHTMLに変換する。空白のみの入力には空文字列を返す。
	Render(markdown string) string
}

// MarkdownRenderer はgoldmarkとbluemondayによるCommentRendererの実装。
// 生のHTMLはgoldmarkでエスケープされ、出力はさらにbluemondayで許可リストに絞られる。
type MarkdownRenderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewCommentRenderer はMarkdownRendererを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, hr, a, ul, ol, li, blockquote, pre, code, strong, em, del, h1-h6
//   - aタグ: http/httpsの絶対URLのみ、target="_blank" と rel="noopener noreferrer" を付与
//   - 画像、スクリプト、スタイル、on*イベント属性はすべて除去
func NewCommentRenderer() *MarkdownRenderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
		goldmark.WithRendererOptions(
			goldmarkhtml.WithHardWraps(),
		),
	)

	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "hr", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "del",
		"h1", "h2", "h3", "h4", "h5", "h6",
	)
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)
	p.RequireParseableURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &MarkdownRenderer{md: md, policy: p}
}

// Render はMarkdownを安全なHTMLに変換する。
// 変換に失敗した場合はエスケープしたプレーンテキストを返す。
func (r *MarkdownRenderer) Render(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "<p>" + html.EscapeString(markdown) + "</p>"
	}
	return strings.TrimSpace(r.policy.Sanitize(buf.String()))
}

// compile-time interface check
var _ CommentRenderer = (*MarkdownRenderer)(nil)
