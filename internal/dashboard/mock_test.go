package dashboard

import (
	"context"
	"sync"

	"github.com/hitoshi/feedbackflow/internal/auth"
	"github.com/hitoshi/feedbackflow/internal/backend"
	"github.com/hitoshi/feedbackflow/internal/model"
)

// mockAPI はAPIのモック。未設定の関数は空の結果を返す。呼び出し回数をエンドポイント名ごとに数える。
type mockAPI struct {
	profileFn         func(ctx context.Context, forceRefresh bool) (*model.Profile, error)
	feedbacksFn       func(ctx context.Context) ([]model.Feedback, error)
	employeesFn       func(ctx context.Context) ([]model.Employee, error)
	feedbacksFromFn   func(ctx context.Context, uid string) ([]model.Feedback, error)
	createFeedbackFn  func(ctx context.Context, in model.FeedbackInput) error
	updateFeedbackFn  func(ctx context.Context, id string, upd model.FeedbackUpdate) error
	acknowledgeFn     func(ctx context.Context, id string) error
	commentFn         func(ctx context.Context, id, text string) error
	requestFeedbackFn func(ctx context.Context) error
	notificationsFn   func(ctx context.Context) ([]model.Notification, error)
	markReadFn        func(ctx context.Context) error

	mu    sync.Mutex
	calls map[string]int
}

func (m *mockAPI) count(endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[endpoint]++
}

func (m *mockAPI) callCount(endpoint string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[endpoint]
}

func (m *mockAPI) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *mockAPI) Profile(ctx context.Context, _ backend.TokenSource, forceRefresh bool) (*model.Profile, error) {
	m.count(backend.EndpointProfile)
	if m.profileFn != nil {
		return m.profileFn(ctx, forceRefresh)
	}
	return &model.Profile{}, nil
}

func (m *mockAPI) Feedbacks(ctx context.Context, _ backend.TokenSource) ([]model.Feedback, error) {
	m.count(backend.EndpointFeedbacks)
	if m.feedbacksFn != nil {
		return m.feedbacksFn(ctx)
	}
	return nil, nil
}

func (m *mockAPI) Employees(ctx context.Context, _ backend.TokenSource) ([]model.Employee, error) {
	m.count(backend.EndpointEmployees)
	if m.employeesFn != nil {
		return m.employeesFn(ctx)
	}
	return nil, nil
}

func (m *mockAPI) FeedbacksFrom(ctx context.Context, _ backend.TokenSource, uid string) ([]model.Feedback, error) {
	m.count(backend.EndpointFeedbacksFrom)
	if m.feedbacksFromFn != nil {
		return m.feedbacksFromFn(ctx, uid)
	}
	return nil, nil
}

func (m *mockAPI) CreateFeedback(ctx context.Context, _ backend.TokenSource, in model.FeedbackInput) error {
	m.count(backend.EndpointCreateFeedback)
	if m.createFeedbackFn != nil {
		return m.createFeedbackFn(ctx, in)
	}
	return nil
}

func (m *mockAPI) UpdateFeedback(ctx context.Context, _ backend.TokenSource, id string, upd model.FeedbackUpdate) error {
	m.count(backend.EndpointUpdateFeedback)
	if m.updateFeedbackFn != nil {
		return m.updateFeedbackFn(ctx, id, upd)
	}
	return nil
}

func (m *mockAPI) Acknowledge(ctx context.Context, _ backend.TokenSource, id string) error {
	m.count(backend.EndpointAcknowledge)
	if m.acknowledgeFn != nil {
		return m.acknowledgeFn(ctx, id)
	}
	return nil
}

func (m *mockAPI) Comment(ctx context.Context, _ backend.TokenSource, id, text string) error {
	m.count(backend.EndpointComment)
	if m.commentFn != nil {
		return m.commentFn(ctx, id, text)
	}
	return nil
}

func (m *mockAPI) RequestFeedback(ctx context.Context, _ backend.TokenSource) error {
	m.count(backend.EndpointRequestFeedback)
	if m.requestFeedbackFn != nil {
		return m.requestFeedbackFn(ctx)
	}
	return nil
}

func (m *mockAPI) Notifications(ctx context.Context, _ backend.TokenSource) ([]model.Notification, error) {
	m.count(backend.EndpointNotifications)
	if m.notificationsFn != nil {
		return m.notificationsFn(ctx)
	}
	return nil, nil
}

func (m *mockAPI) MarkNotificationsRead(ctx context.Context, _ backend.TokenSource) error {
	m.count(backend.EndpointMarkNotifications)
	if m.markReadFn != nil {
		return m.markReadFn(ctx)
	}
	return nil
}

// fakeSession はSessionの手動で状態を切り替えられる実装。
type fakeSession struct {
	id string

	mu    sync.Mutex
	state auth.State
	subs  map[int]func(auth.State)
	next  int
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id, state: auth.StateSignedIn, subs: make(map[int]func(auth.State))}
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Token(context.Context, bool) (string, error) { return "token-" + s.id, nil }

func (s *fakeSession) Subscribe(fn func(auth.State)) *auth.Subscription {
	s.mu.Lock()
	s.next++
	id := s.next
	s.subs[id] = fn
	state := s.state
	s.mu.Unlock()

	fn(state)
	return auth.NewSubscription(func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	})
}

func (s *fakeSession) publish(state auth.State) {
	s.mu.Lock()
	s.state = state
	fns := make([]func(auth.State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

func (s *fakeSession) subscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// staticTokens は固定のトークンを返すTokenSource。
type staticTokens struct{}

func (staticTokens) Token(context.Context, bool) (string, error) { return "token", nil }
