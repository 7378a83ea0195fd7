package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/amiot/internal/account"
	"github.com/hitoshi/amiot/internal/auth"
	"github.com/hitoshi/amiot/internal/docstore"
	"github.com/hitoshi/amiot/internal/event"
	"github.com/hitoshi/amiot/internal/metrics"
	"github.com/hitoshi/amiot/internal/middleware"
	"github.com/hitoshi/amiot/internal/model"
	"github.com/hitoshi/amiot/internal/newsstore"
	"github.com/hitoshi/amiot/internal/prefs"
	"github.com/hitoshi/amiot/internal/remote"
	"github.com/hitoshi/amiot/internal/repository"
	"github.com/hitoshi/amiot/internal/security"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"
)

// --- インメモリリポジトリ ---

type memStore struct {
	mu       sync.Mutex
	users    map[string]*model.User
	sessions map[string]*model.Session
	resets   map[string]*model.PasswordReset
	news     []model.FeedItem
	notify   chan *pq.Notification
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*model.User),
		sessions: make(map[string]*model.Session),
		resets:   make(map[string]*model.PasswordReset),
		notify:   make(chan *pq.Notification, 16),
	}
}

func (m *memStore) NotificationChannel() <-chan *pq.Notification { return m.notify }
func (m *memStore) Close() error                                 { return nil }

type memUserRepo struct{ *memStore }

func (r memUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r memUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r memUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memUserRepo) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		u.PasswordHash = hash
	}
	return nil
}

type memSessionRepo struct{ *memStore }

func (r memSessionRepo) Create(_ context.Context, s *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r memSessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.ExpiresAt.After(time.Now()) {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (r memSessionRepo) Rotate(_ context.Context, oldID string, next *model.Session) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[oldID]; !ok || old.UserID != next.UserID {
		return false, nil
	}
	delete(r.sessions, oldID)
	cp := *next
	r.sessions[next.ID] = &cp
	return true, nil
}

func (r memSessionRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r memSessionRepo) DeleteByUserID(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r memSessionRepo) DeleteExpired(context.Context) (int64, error) { return 0, nil }

type memResetRepo struct{ *memStore }

func (r memResetRepo) Create(_ context.Context, reset *model.PasswordReset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *reset
	r.resets[reset.Token] = &cp
	return nil
}

func (r memResetRepo) Consume(_ context.Context, token string) (*model.PasswordReset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reset, ok := r.resets[token]
	if !ok {
		return nil, nil
	}
	delete(r.resets, token)
	return reset, nil
}

func (r memResetRepo) DeleteExpired(context.Context) (int64, error) { return 0, nil }

type memNewsRepo struct{ *memStore }

func (r memNewsRepo) Create(_ context.Context, item *model.FeedItem) error {
	r.mu.Lock()
	r.news = append(r.news, *item)
	r.mu.Unlock()
	r.notify <- &pq.Notification{Channel: "news_changes", Extra: item.OwnerID}
	return nil
}

func (r memNewsRepo) ListByUserID(_ context.Context, userID string) ([]model.FeedItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := []model.FeedItem{}
	for _, it := range r.news {
		if it.OwnerID == userID {
			items = append(items, it)
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt > items[j].CreatedAt })
	return items, nil
}

func (r memNewsRepo) ListAll(context.Context) ([]model.FeedItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.FeedItem{}, r.news...), nil
}

func (r memNewsRepo) DeleteByIDAndUser(_ context.Context, id, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, it := range r.news {
		if it.ID == id && it.OwnerID == userID {
			r.news = append(r.news[:i], r.news[i+1:]...)
			r.notify <- &pq.Notification{Channel: "news_changes", Extra: userID}
			return true, nil
		}
	}
	return false, nil
}

// --- テストサーバー ---

type testServer struct {
	*httptest.Server
	store    *memStore
	registry *prometheus.Registry
	hub      *docstore.Hub
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, health HealthChecker) *testServer {
	t.Helper()
	store := newMemStore()

	authService := auth.NewService(
		memUserRepo{store}, memSessionRepo{store}, memResetRepo{store},
		auth.NewLogMailer(discardLogger()),
		auth.ServiceConfig{SessionMaxAge: 3600, BcryptCost: bcrypt.MinCost},
	)
	newsService := docstore.NewService(memNewsRepo{store}, security.NewContentSanitizer())
	hub := docstore.NewHub(store, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	registry := prometheus.NewRegistry()

	router := NewRouter(&RouterDeps{
		Logger:        discardLogger(),
		SessionFinder: memSessionRepo{store},
		RateLimiter:   rl,
		AuthService:   authService,
		AuthConfig:    AuthHandlerConfig{SessionMaxAge: 3600},
		NewsService:   newsService,
		Watcher:       hub,
		Metrics:       metrics.NewCollector(registry),
		Gatherer:      registry,
		HealthCheck:   health,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.CloseClientConnections()
		cancel()
		<-done
		srv.Close()
		rl.Stop()
	})
	return &testServer{Server: srv, store: store, registry: registry, hub: hub}
}

func newPrefsStore(t *testing.T) *prefs.Store {
	t.Helper()
	db, err := prefs.Open(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("prefs.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db.Namespace("session")
}

func waitForSnapshot(t *testing.T, sub *event.Subscription[[]model.FeedItem], match func([]model.FeedItem) bool) []model.FeedItem {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case items, ok := <-sub.C():
			if !ok {
				t.Fatal("subscription closed before expected snapshot")
			}
			if match(items) {
				return items
			}
		case <-timeout:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

// --- テスト ---

func TestRouter_Health(t *testing.T) {
	t.Run("依存先が正常なら200", func(t *testing.T) {
		srv := newTestServer(t, func(context.Context) error { return nil })

		resp, err := http.Get(srv.URL + "/health")
		if err != nil {
			t.Fatalf("GET /health failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
			t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
		}
	})

	t.Run("依存先が応答しなければ503", func(t *testing.T) {
		srv := newTestServer(t, func(context.Context) error { return errors.New("db down") })

		resp, err := http.Get(srv.URL + "/health")
		if err != nil {
			t.Fatalf("GET /health failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
		}
	})
}

func TestRouter_NewsRequiresSession(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/news"},
		{http.MethodPost, "/api/news"},
		{http.MethodGet, "/api/news/watch"},
		{http.MethodDelete, "/api/news/n1"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			req.Header.Set("Authorization", "Bearer unknown")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
			}
		})
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/auth/login", nil)
	req.Header.Set("Origin", "http://example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want empty without configured origin", got)
	}
}

func TestRouter_EndToEnd(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()

	api := remote.NewClient(srv.URL, nil)
	accounts := account.NewRemoteClient(api, newPrefsStore(t), discardLogger())
	news := newsstore.NewRemoteClient(api, discardLogger())

	// 登録
	if err := accounts.Register(ctx, "Ana@Example.com", "secret1"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	state := accounts.CurrentSession().Value()
	if !state.IsAuthenticated || state.Email != "ana@example.com" || state.UserID == "" {
		t.Fatalf("session after register = %+v", state)
	}
	userID := state.UserID

	// 同じメールアドレスでの再登録
	other := account.NewRemoteClient(remote.NewClient(srv.URL, nil), newPrefsStore(t), discardLogger())
	err := other.Register(ctx, "ana@example.com", "another1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmailAlreadyInUse {
		t.Fatalf("second Register() error = %v, want EMAIL_ALREADY_IN_USE", err)
	}

	// 誤ったパスワード
	ok, err := other.Login(ctx, "ana@example.com", "wrong-pass")
	if err != nil || ok {
		t.Fatalf("Login(wrong) = (%v, %v), want (false, nil)", ok, err)
	}

	// ライブクエリ
	subCtx, cancelSub := context.WithCancel(ctx)
	defer cancelSub()
	sub := news.Subscribe(subCtx, userID)
	defer sub.Close()
	waitForSnapshot(t, sub, func(items []model.FeedItem) bool { return len(items) == 0 })

	draft := model.NewsDraft{
		Title:    "Nuevo parque",
		Summary:  "Se inaugura un parque",
		Body:     "<p>El parque abre el lunes</p>",
		Category: "Ciudad",
	}
	if err := news.AddItem(ctx, userID, draft); err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}

	items := waitForSnapshot(t, sub, func(items []model.FeedItem) bool { return len(items) == 1 })
	got := items[0]
	if got.Title != "Nuevo parque" || got.OwnerID != userID || !got.AuthoredByUser {
		t.Errorf("item = %+v", got)
	}
	if got.Body != "El parque abre el lunes" {
		t.Errorf("Body = %q, want sanitized text", got.Body)
	}
	if got.PublishedLabel != "Hace unos momentos" {
		t.Errorf("PublishedLabel = %q, want default label", got.PublishedLabel)
	}

	if all := news.ListAll(ctx); len(all) != 1 {
		t.Errorf("ListAll() = %d items, want 1", len(all))
	}
	if mine := news.ListAllForOwner(ctx, userID); len(mine) != 1 {
		t.Errorf("ListAllForOwner() = %d items, want 1", len(mine))
	}

	// 他ユーザーとしての追加は拒否される
	err = news.AddItem(ctx, "someone-else", draft)
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeForbidden {
		t.Errorf("AddItem(other owner) error = %v, want FORBIDDEN", err)
	}

	// 削除
	if err := news.DeleteItem(ctx, got.ID); err != nil {
		t.Fatalf("DeleteItem() error = %v", err)
	}
	waitForSnapshot(t, sub, func(items []model.FeedItem) bool { return len(items) == 0 })

	// 存在しないIDの削除も成功する
	if err := news.DeleteItem(ctx, "missing"); err != nil {
		t.Errorf("DeleteItem(missing) error = %v", err)
	}

	// サインアウト後は一覧が空として扱われる
	accounts.Logout(ctx)
	if accounts.CurrentSession().Value().IsAuthenticated {
		t.Error("session should be signed out")
	}
	if all := news.ListAll(ctx); len(all) != 0 {
		t.Errorf("ListAll() after logout = %d items, want 0", len(all))
	}

	// 再ログイン
	ok, err = accounts.Login(ctx, "ana@example.com", "secret1")
	if err != nil || !ok {
		t.Fatalf("Login() = (%v, %v), want (true, nil)", ok, err)
	}

	// メトリクス
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"amiot_auth_attempts_total", "amiot_news_writes_total", "amiot_http_status_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output does not contain %s", name)
		}
	}
}
