package dashboard

import (
	"maps"
	"slices"

	"github.com/hitoshi/feedbackflow/internal/model"
)

// Snapshot は描画用にコピーしたダッシュボードの状態。
type Snapshot struct {
	Role              model.Role
	Page              Page
	Nav               []NavItem
	Mounted           bool
	Profile           *model.Profile
	Employees         []model.Employee
	Feedbacks         []model.Feedback
	Notifications     []model.Notification
	NotificationsOpen bool
	Form              FeedbackForm
	Submitting        bool
	Requesting        bool
	Drafts            map[string]string
	ShowComments      map[string]bool
	Acknowledging     map[string]bool
	Commenting        map[string]bool
}

// Snapshot は現在の状態のコピーを返す。
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Snapshot{
		Role:              d.role,
		Page:              d.page,
		Nav:               NavItems(d.role),
		Mounted:           d.mounted,
		Employees:         slices.Clone(d.employees),
		Notifications:     slices.Clone(d.notifications),
		NotificationsOpen: d.notificationsOpen,
		Form:              d.form,
		Submitting:        d.submitting,
		Requesting:        d.requesting,
		Drafts:            maps.Clone(d.drafts),
		ShowComments:      maps.Clone(d.showComments),
		Acknowledging:     maps.Clone(d.acknowledging),
		Commenting:        maps.Clone(d.commenting),
	}
	s.Form.Tags = slices.Clone(d.form.Tags)
	if d.profile != nil {
		p := *d.profile
		s.Profile = &p
	}
	s.Feedbacks = make([]model.Feedback, len(d.feedbacks))
	for i, f := range d.feedbacks {
		f.Tags = slices.Clone(f.Tags)
		f.Comments = slices.Clone(f.Comments)
		s.Feedbacks[i] = f
	}
	return s
}

// Counts はチーム宛てのフィードバックのSentiment別件数を返す。
func (s Snapshot) Counts() SentimentCounts {
	return CountSentiments(s.Feedbacks, s.Employees)
}

// Members はチームメンバーごとの集計を返す。
func (s Snapshot) Members() []MemberSummary {
	return MemberSummaries(s.Feedbacks, s.Employees)
}

// Recent は従業員ダッシュボードに表示する最新のフィードバックを返す。
func (s Snapshot) Recent() []model.Feedback {
	return Recent(s.Feedbacks, RecentLimit)
}

// History はフィードバックを新しい順に返す。
func (s Snapshot) History() []model.Feedback {
	return History(s.Feedbacks)
}

// EmployeeLabel はuidに対応する従業員の表示名を返す。見つからない場合はuidを返す。
func (s Snapshot) EmployeeLabel(uid string) string {
	for _, e := range s.Employees {
		if e.UID == uid {
			return e.Label()
		}
	}
	return uid
}
