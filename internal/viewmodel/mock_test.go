package viewmodel

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/amiot/internal/account"
	"github.com/hitoshi/amiot/internal/event"
	"github.com/hitoshi/amiot/internal/model"
	"github.com/hitoshi/amiot/internal/newsstore"
)

// コンパイル時にインターフェースの実装を検証する。
var (
	_ account.Client       = (*mockAuthClient)(nil)
	_ newsstore.Repository = (*mockNewsRepo)(nil)
)

// mockAuthClient はaccount.Clientのテスト用モック。
type mockAuthClient struct {
	session *event.State[model.SessionState]
	calls   atomic.Int32

	registerFn func(ctx context.Context, email, password string) error
	loginFn    func(ctx context.Context, email, password string) (bool, error)
	resetFn    func(ctx context.Context, email string) (bool, error)
}

func newMockAuthClient() *mockAuthClient {
	return &mockAuthClient{session: event.NewState(model.SignedOut())}
}

func (m *mockAuthClient) Register(ctx context.Context, email, password string) error {
	m.calls.Add(1)
	if m.registerFn != nil {
		return m.registerFn(ctx, email, password)
	}
	return nil
}

func (m *mockAuthClient) Login(ctx context.Context, email, password string) (bool, error) {
	m.calls.Add(1)
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return true, nil
}

func (m *mockAuthClient) Logout(ctx context.Context) {
	m.calls.Add(1)
	m.session.Set(model.SignedOut())
}

func (m *mockAuthClient) ResetPassword(ctx context.Context, email string) (bool, error) {
	m.calls.Add(1)
	if m.resetFn != nil {
		return m.resetFn(ctx, email)
	}
	return true, nil
}

func (m *mockAuthClient) CurrentSession() *event.State[model.SessionState] {
	return m.session
}

// mockNewsRepo はnewsstore.Repositoryのテスト用モック。
// Subscribeは所有者ごとのSourceを返し、テストから発行できる。
type mockNewsRepo struct {
	calls atomic.Int32

	addFn    func(ctx context.Context, ownerID string, draft model.NewsDraft) error
	deleteFn func(ctx context.Context, id string) error
	listFn   func(ctx context.Context) []model.FeedItem

	mu      sync.Mutex
	sources map[string]*event.Source[[]model.FeedItem]
	owners  []string
}

func newMockNewsRepo() *mockNewsRepo {
	return &mockNewsRepo{sources: map[string]*event.Source[[]model.FeedItem]{}}
}

func (m *mockNewsRepo) AddItem(ctx context.Context, ownerID string, draft model.NewsDraft) error {
	m.calls.Add(1)
	if m.addFn != nil {
		return m.addFn(ctx, ownerID, draft)
	}
	return nil
}

func (m *mockNewsRepo) ListAllForOwner(ctx context.Context, ownerID string) []model.FeedItem {
	m.calls.Add(1)
	return []model.FeedItem{}
}

func (m *mockNewsRepo) ListAll(ctx context.Context) []model.FeedItem {
	m.calls.Add(1)
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []model.FeedItem{}
}

func (m *mockNewsRepo) DeleteItem(ctx context.Context, id string) error {
	m.calls.Add(1)
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockNewsRepo) Subscribe(ctx context.Context, ownerID string) *event.Subscription[[]model.FeedItem] {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := event.NewSource[[]model.FeedItem]()
	m.sources[ownerID] = src
	m.owners = append(m.owners, ownerID)
	return src.Subscribe()
}

func (m *mockNewsRepo) source(ownerID string) *event.Source[[]model.FeedItem] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sources[ownerID]
}

func (m *mockNewsRepo) subscribedOwners() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.owners...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// eventually はcondが満たされるまで待つ。
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
