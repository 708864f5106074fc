package dashboard

import "github.com/hitoshi/feedbackflow/internal/model"

// Page はダッシュボード内で表示中のページ。サイドバーの選択でのみ遷移する。
type Page string

const (
	PageDashboard Page = "dashboard"
	PageFeedback  Page = "feedback"
	PageHistory   Page = "history" // マネージャーのみ
	PageProfile   Page = "profile"
)

// NavItem はサイドバーの項目。
type NavItem struct {
	Page  Page
	Label string
}

// NavItems は役割ごとのサイドバー項目を表示順に返す。
func NavItems(role model.Role) []NavItem {
	items := []NavItem{
		{Page: PageDashboard, Label: "Dashboard"},
		{Page: PageFeedback, Label: "Feedback"},
	}
	if role == model.RoleManager {
		items = append(items, NavItem{Page: PageHistory, Label: "History"})
	}
	return append(items, NavItem{Page: PageProfile, Label: "Profile"})
}

// Select はページ遷移関数。役割で選択できないページや未知の値の場合は現在のページを返す。
func Select(role model.Role, current, target Page) Page {
	for _, item := range NavItems(role) {
		if item.Page == target {
			return target
		}
	}
	return current
}
