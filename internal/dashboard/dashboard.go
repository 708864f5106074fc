// Package dashboard はマネージャーと従業員のダッシュボードの状態と操作を提供する。
//
// ダッシュボードはブラウザセッションごとに1つ保持され、マウント時にバックエンドから
// プロフィール・フィードバック・通知を並行して読み込む。各操作は単一のREST呼び出しを行い、
// 結果に応じてローカルの状態を書き換えるか再取得する。失敗は一時的な通知として表示し、
// リトライは行わない。
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/feedbackflow/internal/backend"
	"github.com/hitoshi/feedbackflow/internal/model"
)

// ErrUnknownField はEditFieldで編集できないフィールドが指定されたことを表す。
var ErrUnknownField = errors.New("unknown feedback field")

// ErrFeedbackNotFound は保持しているフィードバックに指定IDのものがないことを表す。
var ErrFeedbackNotFound = errors.New("feedback not found")

// API はダッシュボードが利用するバックエンドの操作。backend.Clientが実装する。
type API interface {
	Profile(ctx context.Context, tokens backend.TokenSource, forceRefresh bool) (*model.Profile, error)
	Feedbacks(ctx context.Context, tokens backend.TokenSource) ([]model.Feedback, error)
	Employees(ctx context.Context, tokens backend.TokenSource) ([]model.Employee, error)
	FeedbacksFrom(ctx context.Context, tokens backend.TokenSource, uid string) ([]model.Feedback, error)
	CreateFeedback(ctx context.Context, tokens backend.TokenSource, in model.FeedbackInput) error
	UpdateFeedback(ctx context.Context, tokens backend.TokenSource, id string, upd model.FeedbackUpdate) error
	Acknowledge(ctx context.Context, tokens backend.TokenSource, id string) error
	Comment(ctx context.Context, tokens backend.TokenSource, id, text string) error
	RequestFeedback(ctx context.Context, tokens backend.TokenSource) error
	Notifications(ctx context.Context, tokens backend.TokenSource) ([]model.Notification, error)
	MarkNotificationsRead(ctx context.Context, tokens backend.TokenSource) error
}

// compile-time interface check
var _ API = (*backend.Client)(nil)

// Dashboard は1つのブラウザセッションに対応するロール別ダッシュボード。
// すべての状態はmuで保護する。バックエンド呼び出し中はロックを保持しない。
type Dashboard struct {
	role   model.Role
	api    API
	tokens backend.TokenSource
	logger *slog.Logger
	now    func() time.Time

	mu                sync.Mutex
	mounted           bool
	page              Page
	profile           *model.Profile
	employees         []model.Employee
	feedbacks         []model.Feedback // マネージャー: 自分が書いたもの / 従業員: 自分宛てのもの
	notifications     []model.Notification
	notificationsOpen bool
	togglingNotices   bool
	form              FeedbackForm
	submitting        bool
	requesting        bool
	drafts            map[string]string
	showComments      map[string]bool
	acknowledging     map[string]bool
	commenting        map[string]bool
	notices           []Notice
}

// New はDashboardを生成する。ページの初期値はPageDashboard。
func New(role model.Role, api API, tokens backend.TokenSource, logger *slog.Logger) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dashboard{
		role:          role,
		api:           api,
		tokens:        tokens,
		logger:        logger.With(slog.String("role", string(role))),
		now:           time.Now,
		page:          PageDashboard,
		drafts:        make(map[string]string),
		showComments:  make(map[string]bool),
		acknowledging: make(map[string]bool),
		commenting:    make(map[string]bool),
	}
}

// Role はダッシュボードの役割を返す。
func (d *Dashboard) Role() model.Role {
	return d.role
}

// Mount はダッシュボードに必要なデータを並行して読み込む。
//
// マネージャー: 従業員一覧・通知・プロフィールを並行に取得し、プロフィールからuidが
// 得られた後でのみ自分が書いたフィードバックを取得する。
// 従業員: プロフィール・自分宛てのフィードバック・通知を並行に取得する。
//
// 個々の失敗はログと通知に記録し、成功した結果はそのまま反映する。
// 戻り値は最初に発生した失敗。
func (d *Dashboard) Mount(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	var g errgroup.Group
	g.Go(func() error { return d.loadNotifications(ctx) })

	switch d.role {
	case model.RoleManager:
		g.Go(func() error { return d.loadEmployees(ctx) })
		g.Go(func() error {
			p, err := d.loadProfile(ctx)
			if err != nil {
				return err
			}
			if p.UID == "" {
				d.logger.Error("profile has no uid, skipping authored feedback")
				d.notify(NoticeError, msgProfileNotLoaded)
				return errors.New("profile uid is missing")
			}
			return d.loadAuthored(ctx, p.UID)
		})
	default:
		g.Go(func() error {
			_, err := d.loadProfile(ctx)
			return err
		})
		g.Go(func() error { return d.loadReceived(ctx) })
	}

	err := g.Wait()

	d.mu.Lock()
	d.mounted = true
	d.mu.Unlock()
	return err
}

func (d *Dashboard) loadProfile(ctx context.Context) (*model.Profile, error) {
	p, err := d.api.Profile(ctx, d.tokens, false)
	if err != nil {
		d.fail(backend.EndpointProfile, err, fmt.Sprintf(msgLoadFailed, "profile"))
		return nil, err
	}
	d.mu.Lock()
	d.profile = p
	d.mu.Unlock()
	return p, nil
}

func (d *Dashboard) loadEmployees(ctx context.Context) error {
	emps, err := d.api.Employees(ctx, d.tokens)
	if err != nil {
		d.fail(backend.EndpointEmployees, err, fmt.Sprintf(msgLoadFailed, "team"))
		return err
	}
	d.mu.Lock()
	d.employees = emps
	d.mu.Unlock()
	return nil
}

func (d *Dashboard) loadAuthored(ctx context.Context, uid string) error {
	fbs, err := d.api.FeedbacksFrom(ctx, d.tokens, uid)
	if err != nil {
		d.fail(backend.EndpointFeedbacksFrom, err, fmt.Sprintf(msgLoadFailed, "feedback"))
		return err
	}
	d.setFeedbacks(fbs)
	return nil
}

func (d *Dashboard) loadReceived(ctx context.Context) error {
	fbs, err := d.api.Feedbacks(ctx, d.tokens)
	if err != nil {
		d.fail(backend.EndpointFeedbacks, err, fmt.Sprintf(msgLoadFailed, "feedback"))
		return err
	}
	d.setFeedbacks(fbs)
	return nil
}

func (d *Dashboard) loadNotifications(ctx context.Context) error {
	ns, err := d.api.Notifications(ctx, d.tokens)
	if err != nil {
		d.fail(backend.EndpointNotifications, err, fmt.Sprintf(msgLoadFailed, "notifications"))
		return err
	}
	d.mu.Lock()
	d.notifications = ns
	d.mu.Unlock()
	return nil
}

// refetch はフィードバック一覧を取得し直す。後から届いた応答が常に上書きする。
func (d *Dashboard) refetch(ctx context.Context) {
	if d.role == model.RoleEmployee {
		_ = d.loadReceived(ctx)
		return
	}
	uid := d.profileUID()
	if uid == "" {
		return
	}
	_ = d.loadAuthored(ctx, uid)
}

func (d *Dashboard) setFeedbacks(fbs []model.Feedback) {
	d.mu.Lock()
	d.feedbacks = fbs
	d.mu.Unlock()
}

func (d *Dashboard) profileUID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.profile == nil {
		return ""
	}
	return d.profile.UID
}

// SelectPage はサイドバーの選択を反映し、遷移後のページを返す。
func (d *Dashboard) SelectPage(target Page) Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.page = Select(d.role, d.page, target)
	return d.page
}

// ToggleNotifications は通知パネルを開閉する。
// 閉じている場合は全件既読化を呼び出し、成功した後で開く。失敗した場合は閉じたまま通知を出す。
// 開いている場合はサーバーに知らせずに閉じ、手元の通知一覧を空にする。
func (d *Dashboard) ToggleNotifications(ctx context.Context) {
	d.mu.Lock()
	if d.notificationsOpen {
		d.notificationsOpen = false
		d.notifications = nil
		d.mu.Unlock()
		return
	}
	if d.togglingNotices {
		d.mu.Unlock()
		return
	}
	d.togglingNotices = true
	d.mu.Unlock()

	err := d.api.MarkNotificationsRead(context.WithoutCancel(ctx), d.tokens)

	d.mu.Lock()
	d.togglingNotices = false
	if err == nil {
		d.notificationsOpen = true
	}
	d.mu.Unlock()

	if err != nil {
		d.fail(backend.EndpointMarkNotifications, err, msgNotificationsFail)
	}
}

// DrainNotices は溜まっている通知を取り出して空にする。
func (d *Dashboard) DrainNotices() []Notice {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.notices
	d.notices = nil
	return out
}

// notify は通知を追加する。
func (d *Dashboard) notify(level NoticeLevel, text string) {
	d.mu.Lock()
	d.notices = append(d.notices, newNotice(level, text))
	d.mu.Unlock()
}

// fail は呼び出しの失敗をログに記録し、エラー通知を追加する。
func (d *Dashboard) fail(endpoint string, err error, text string) {
	d.logger.Error("dashboard call failed",
		slog.String("endpoint", endpoint),
		slog.String("error", err.Error()),
	)
	d.notify(NoticeError, text)
}

// findLocked はIDに対応するフィードバックのインデックスを返す。muを保持して呼ぶこと。
func (d *Dashboard) findLocked(id string) int {
	for i := range d.feedbacks {
		if string(d.feedbacks[i].ID) == id {
			return i
		}
	}
	return -1
}
