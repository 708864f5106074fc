package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/hitoshi/feedbackflow/internal/auth"
	"github.com/hitoshi/feedbackflow/internal/backend"
	"github.com/hitoshi/feedbackflow/internal/dashboard"
	"github.com/hitoshi/feedbackflow/internal/metrics"
	"github.com/hitoshi/feedbackflow/internal/middleware"
	"github.com/hitoshi/feedbackflow/internal/model"
	"github.com/hitoshi/feedbackflow/internal/repository"
	"github.com/hitoshi/feedbackflow/internal/security"
	"github.com/hitoshi/feedbackflow/internal/view"
)

const testPassword = "secret1"

// --- IdPのフェイク ---

type fakeAccount struct {
	uid      string
	password string
}

// fakeIdP はメモリ上のアカウントでサインインするIdP。
// IDトークンは "token-<uid>"、リフレッシュトークンは "rt-<uid>" を発行する。
type fakeIdP struct {
	mu          sync.Mutex
	accounts    map[string]fakeAccount
	nextUID     int
	signUpCalls int
	signUpErr   error
}

func newFakeIdP() *fakeIdP {
	return &fakeIdP{accounts: make(map[string]fakeAccount)}
}

func (p *fakeIdP) add(email, uid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[email] = fakeAccount{uid: uid, password: testPassword}
}

func (p *fakeIdP) failSignUp(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signUpErr = err
}

func (p *fakeIdP) signUps() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signUpCalls
}

func (p *fakeIdP) SignIn(_ context.Context, email, password string) (*auth.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.accounts[email]
	if !ok || acct.password != password {
		return nil, model.NewInvalidCredentialsError()
	}
	return issue(acct.uid, email), nil
}

func (p *fakeIdP) SignUp(_ context.Context, email, password string) (*auth.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signUpCalls++
	if p.signUpErr != nil {
		return nil, p.signUpErr
	}
	if _, ok := p.accounts[email]; ok {
		return nil, model.NewEmailExistsError()
	}
	p.nextUID++
	uid := fmt.Sprintf("u-%d", p.nextUID)
	p.accounts[email] = fakeAccount{uid: uid, password: password}
	return issue(uid, email), nil
}

func (p *fakeIdP) Refresh(_ context.Context, refreshToken string) (*auth.Credential, error) {
	uid, ok := strings.CutPrefix(refreshToken, "rt-")
	if !ok {
		return nil, auth.ErrTokenRejected
	}
	return issue(uid, ""), nil
}

func issue(uid, email string) *auth.Credential {
	return &auth.Credential{
		UID:          uid,
		Email:        email,
		IDToken:      "token-" + uid,
		RefreshToken: "rt-" + uid,
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

type rejectingVerifier struct{}

func (rejectingVerifier) Verify(context.Context, string) (*auth.Claims, error) {
	return nil, errors.New("verification disabled")
}

// --- バックエンドのフェイク ---

// fakeBackend はバックエンドREST APIのフェイク。
// Authorizationヘッダーの "Bearer token-<uid>" から呼び出したユーザーを特定する。
type fakeBackend struct {
	mu            sync.Mutex
	profiles      map[string]model.Profile
	employees     []model.Employee
	feedbacks     []model.Feedback
	notifications map[string][]model.Notification
	managers      []model.Manager
	registrations []model.Registration
	updates       map[string][]model.FeedbackUpdate
	calls         map[string]int
	nextID        int

	profileStatus  int
	profileDetail  string
	managersStatus int
	registerStatus int
	registerDetail string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		profiles: map[string]model.Profile{
			"m1": {UID: "m1", Name: "Alice", Email: "alice@example.com", Role: model.RoleManager, Joined: "2023-04-01"},
			"e1": {UID: "e1", Name: "Bob", Email: "bob@example.com", Role: model.RoleEmployee, Manager: "m1"},
			"x1": {UID: "x1", Name: "Xavier", Email: "xavier@example.com", Role: "admin"},
		},
		employees: []model.Employee{
			{UID: "e1", Name: "Bob", Designation: "Engineer"},
			{UID: "e2", Name: "Carol"},
		},
		feedbacks: []model.Feedback{
			{ID: "f1", From: "m1", FromName: "Alice", To: "e1", Strengths: "Reliable", Improvements: "Docs", Sentiment: model.SentimentPositive, Date: "2024-01-01"},
			{ID: "f2", From: "m1", FromName: "Alice", To: "e1", Strengths: "Fast", Improvements: "Tests", Sentiment: model.SentimentNegative, Date: "2024-02-01",
				Comments: []model.Comment{{ByName: "Bob", Text: "thanks", Date: "2024-02-02T10:00:00"}}},
			{ID: "f3", From: "m1", FromName: "Alice", To: "e2", Strengths: "Curious", Improvements: "Focus", Sentiment: model.SentimentNeutral, Date: "2024-03-01"},
			{ID: "f4", From: "m1", FromName: "Alice", To: "gone", Strengths: "Old", Improvements: "Old", Sentiment: model.SentimentNegative, Date: "2023-12-01"},
		},
		notifications: map[string][]model.Notification{
			"m1": {
				{ID: "n1", Message: "Bob acknowledged your feedback", Timestamp: "2024-02-03T09:00:00"},
				{ID: "n2", Message: "Bob commented on your feedback", Timestamp: "2024-02-03T09:05:00"},
				{ID: "n3", Message: "Carol requested feedback", Timestamp: "2024-02-04T11:00:00"},
			},
		},
		managers: []model.Manager{{UID: "m1", Name: "Alice"}},
		updates:  make(map[string][]model.FeedbackUpdate),
		calls:    make(map[string]int),
	}
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /profile", b.authed(b.profile))
	mux.HandleFunc("GET /feedbacks", b.authed(b.received))
	mux.HandleFunc("GET /employees", b.authed(b.listEmployees))
	mux.HandleFunc("GET /api/feedbacks/from/{uid}", b.authed(b.authored))
	mux.HandleFunc("GET /api/managers", b.counted(b.listManagers))
	mux.HandleFunc("POST /api/register", b.counted(b.register))
	mux.HandleFunc("POST /feedback", b.authed(b.create))
	mux.HandleFunc("PUT /feedback/{id}", b.authed(b.update))
	mux.HandleFunc("PUT /feedback/{id}/acknowledge", b.authed(b.acknowledge))
	mux.HandleFunc("POST /feedback/{id}/comment", b.authed(b.comment))
	mux.HandleFunc("POST /feedback/request", b.authed(func(w http.ResponseWriter, _ *http.Request, _ string) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "requested"})
	}))
	mux.HandleFunc("GET /notifications", b.authed(b.listNotifications))
	mux.HandleFunc("PUT /notifications/mark-read", b.authed(b.markRead))
	return mux
}

// count はパターンごとの呼び出し回数を返す。
func (b *fakeBackend) count(pattern string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[pattern]
}

// set はロックを取った上でフェイクの状態を変更する。
func (b *fakeBackend) set(fn func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *fakeBackend) registered() []model.Registration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Registration(nil), b.registrations...)
}

func (b *fakeBackend) updatesFor(id string) []model.FeedbackUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.FeedbackUpdate(nil), b.updates[id]...)
}

func (b *fakeBackend) feedback(id string) model.Feedback {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range b.feedbacks {
		if string(f.ID) == id {
			return f
		}
	}
	return model.Feedback{}
}

func (b *fakeBackend) counted(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[r.Pattern]++
		b.mu.Unlock()
		fn(w, r)
	}
}

func (b *fakeBackend) authed(fn func(w http.ResponseWriter, r *http.Request, uid string)) http.HandlerFunc {
	return b.counted(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer token-")
		if !ok || uid == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token"})
			return
		}
		fn(w, r, uid)
	})
}

func (b *fakeBackend) profile(w http.ResponseWriter, _ *http.Request, uid string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.profileStatus != 0 {
		writeJSON(w, b.profileStatus, map[string]string{"detail": b.profileDetail})
		return
	}
	p, ok := b.profiles[uid]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "User not found"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (b *fakeBackend) received(w http.ResponseWriter, _ *http.Request, uid string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []model.Feedback{}
	for _, f := range b.feedbacks {
		if f.To == uid {
			out = append(out, f)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *fakeBackend) authored(w http.ResponseWriter, r *http.Request, _ string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	from := r.PathValue("uid")
	out := []model.Feedback{}
	for _, f := range b.feedbacks {
		if f.From == from {
			out = append(out, f)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *fakeBackend) listEmployees(w http.ResponseWriter, _ *http.Request, _ string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, b.employees)
}

func (b *fakeBackend) listManagers(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.managersStatus != 0 {
		writeJSON(w, b.managersStatus, map[string]string{"detail": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, b.managers)
}

func (b *fakeBackend) register(w http.ResponseWriter, r *http.Request) {
	var reg model.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad body"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.registerStatus != 0 {
		writeJSON(w, b.registerStatus, map[string]string{"detail": b.registerDetail})
		return
	}
	b.registrations = append(b.registrations, reg)
	writeJSON(w, http.StatusOK, map[string]string{"message": "registered"})
}

func (b *fakeBackend) create(w http.ResponseWriter, r *http.Request, uid string) {
	var in model.FeedbackInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad body"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.feedbacks = append(b.feedbacks, model.Feedback{
		ID:           model.ObjectID(fmt.Sprintf("new-%d", b.nextID)),
		From:         uid,
		FromName:     b.profiles[uid].Name,
		To:           in.To,
		Strengths:    in.Strengths,
		Improvements: in.Improvements,
		Sentiment:    in.Sentiment,
		Tags:         in.Tags,
		Date:         "2024-05-01",
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "created"})
}

func (b *fakeBackend) update(w http.ResponseWriter, r *http.Request, _ string) {
	var upd model.FeedbackUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad body"})
		return
	}
	id := r.PathValue("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates[id] = append(b.updates[id], upd)
	b.modify(id, func(f *model.Feedback) {
		f.Strengths, f.Improvements, f.Sentiment = upd.Strengths, upd.Improvements, upd.Sentiment
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "updated"})
}

func (b *fakeBackend) acknowledge(w http.ResponseWriter, r *http.Request, _ string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.modify(r.PathValue("id"), func(f *model.Feedback) { f.Acknowledged = true })
	writeJSON(w, http.StatusOK, map[string]string{"message": "acknowledged"})
}

func (b *fakeBackend) comment(w http.ResponseWriter, r *http.Request, uid string) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad body"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.modify(r.PathValue("id"), func(f *model.Feedback) {
		f.Comments = append(f.Comments, model.Comment{By: uid, ByName: b.profiles[uid].Name, Text: body.Text, Date: "2024-05-02T08:00:00"})
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "commented"})
}

func (b *fakeBackend) listNotifications(w http.ResponseWriter, _ *http.Request, uid string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.notifications[uid]
	if out == nil {
		out = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *fakeBackend) markRead(w http.ResponseWriter, _ *http.Request, uid string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.notifications[uid] {
		b.notifications[uid][i].Read = true
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (b *fakeBackend) modify(id string, fn func(f *model.Feedback)) {
	for i := range b.feedbacks {
		if string(b.feedbacks[i].ID) == id {
			fn(&b.feedbacks[i])
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// --- テスト環境 ---

// testEnv は実際のルーター・認証サービス・バックエンドクライアントをフェイクにつないだ環境。
type testEnv struct {
	t        *testing.T
	server   *httptest.Server
	client   *http.Client
	noFollow *http.Client
	backend  *fakeBackend
	idp      *fakeIdP
	auth     *auth.Service
	registry *dashboard.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fb := newFakeBackend()
	backendSrv := httptest.NewServer(fb.handler())
	t.Cleanup(backendSrv.Close)

	idp := newFakeIdP()
	idp.add("alice@example.com", "m1")
	idp.add("bob@example.com", "e1")
	idp.add("xavier@example.com", "x1")

	svc := auth.NewService(idp, rejectingVerifier{}, repository.NewMemorySessionRepo(), nil, auth.ServiceConfig{SessionMaxAge: 3600})
	api := backend.NewClient(backendSrv.URL, backendSrv.Client(), logger, metrics.Nop{})
	registry := dashboard.NewRegistry(api, logger)

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	router := NewRouter(&RouterDeps{
		Logger:         logger,
		Metrics:        metrics.Nop{},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("# metrics")) }),
		RateLimiter:    limiter,
		Sessions:       svc,
		AuthService:    svc,
		AccountAPI:     api,
		Registry:       registry,
		Renderer:       security.NewCommentRenderer(),
		Config: RouterConfig{
			SessionMaxAge: 3600,
			GateWait:      2 * time.Second,
		},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New() error = %v", err)
	}

	return &testEnv{
		t:      t,
		server: srv,
		client: &http.Client{Jar: jar},
		noFollow: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		backend:  fb,
		idp:      idp,
		auth:     svc,
		registry: registry,
	}
}

// get はリダイレクトを辿ってGETし、レスポンスと解析したHTMLを返す。
func (e *testEnv) get(path string) (*http.Response, *html.Node) {
	e.t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	if err != nil {
		e.t.Fatalf("GET %s error = %v", path, err)
	}
	return resp, e.parse(resp)
}

// post はCookieのCSRFトークンを付けてPOSTし、リダイレクトを辿った結果を返す。
func (e *testEnv) post(path string, form url.Values) (*http.Response, *html.Node) {
	e.t.Helper()
	resp, err := e.client.PostForm(e.server.URL+path, e.withCSRF(form))
	if err != nil {
		e.t.Fatalf("POST %s error = %v", path, err)
	}
	return resp, e.parse(resp)
}

// postRaw はリダイレクトを辿らずにPOSTする。
func (e *testEnv) postRaw(path string, form url.Values) *http.Response {
	e.t.Helper()
	resp, err := e.noFollow.PostForm(e.server.URL+path, e.withCSRF(form))
	if err != nil {
		e.t.Fatalf("POST %s error = %v", path, err)
	}
	resp.Body.Close()
	return resp
}

// getRaw はリダイレクトを辿らずにGETする。
func (e *testEnv) getRaw(path string) *http.Response {
	e.t.Helper()
	resp, err := e.noFollow.Get(e.server.URL + path)
	if err != nil {
		e.t.Fatalf("GET %s error = %v", path, err)
	}
	resp.Body.Close()
	return resp
}

func (e *testEnv) withCSRF(form url.Values) url.Values {
	e.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	if e.cookie("csrf_token") == "" {
		e.get("/login")
	}
	form.Set(view.CSRFFieldName, e.cookie("csrf_token"))
	return form
}

func (e *testEnv) cookie(name string) string {
	u, _ := url.Parse(e.server.URL)
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (e *testEnv) parse(resp *http.Response) *html.Node {
	e.t.Helper()
	defer resp.Body.Close()
	doc, err := html.Parse(resp.Body)
	if err != nil {
		e.t.Fatalf("html.Parse() error = %v", err)
	}
	return doc
}

// login はログインし、リダイレクト後のダッシュボードを返す。
func (e *testEnv) login(email string) (*http.Response, *html.Node) {
	e.t.Helper()
	return e.post("/login", url.Values{"email": {email}, "password": {testPassword}})
}

// --- HTMLヘルパー ---

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	v, _ := attr(n, "class")
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func byClass(root *html.Node, class string) []*html.Node {
	return findAll(root, func(n *html.Node) bool { return hasClass(n, class) })
}

func byName(root *html.Node, name string) *html.Node {
	nodes := findAll(root, func(n *html.Node) bool {
		v, ok := attr(n, "name")
		return ok && v == name
	})
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

func text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func isDisabled(n *html.Node) bool {
	_, ok := attr(n, "disabled")
	return ok
}

// dataIDs はdata-id属性を持つ要素のうちclassに一致するもののIDを順に返す。
func dataIDs(root *html.Node, class string) []string {
	var ids []string
	for _, n := range byClass(root, class) {
		if id, ok := attr(n, "data-id"); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// noticeTexts は表示された通知トーストの文言を返す。
func noticeTexts(root *html.Node) []string {
	var out []string
	for _, n := range byClass(root, "notice") {
		out = append(out, text(n))
	}
	return out
}
