package view

import (
	"fmt"

	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

// LoadingPage は認証状態が確定するまでの読み込み画面を返す。
// refreshSecondsごとにtargetを再読み込みする。
func LoadingPage(target string, refreshSeconds int) Node {
	if refreshSeconds < 1 {
		refreshSeconds = 1
	}
	return document("Loading",
		[]Node{Meta(Attr("http-equiv", "refresh"), Content(fmt.Sprintf("%d;url=%s", refreshSeconds, target)))},
		Main(Class("container d-flex flex-column align-items-center justify-content-center loading"), StyleAttr("min-height: 100vh;"),
			Div(Class("spinner-border text-primary"), Attr("role", "status"),
				Span(Class("visually-hidden"), Text("Loading...")),
			),
			P(Class("text-muted mt-3"), Text("Loading...")),
		),
	)
}

// ErrorPage はエラー画面を返す。
func ErrorPage(status int, title, message string) Node {
	return document(title, nil,
		Main(Class("container py-5 text-center error-page"),
			H1(Class("display-5 fw-bold text-primary"), Text(fmt.Sprint(status))),
			H4(Class("mb-3"), Text(title)),
			P(Class("text-muted"), Text(message)),
			A(Href("/login"), Class("btn btn-outline-primary"), Text("Back to login")),
		),
	)
}
