package viewmodel

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hitoshi/amiot/internal/event"
	"github.com/hitoshi/amiot/internal/feed"
	"github.com/hitoshi/amiot/internal/model"
	"github.com/hitoshi/amiot/internal/newsstore"
	"github.com/hitoshi/amiot/internal/prefs"
)

func signedIn(userID string) model.SessionState {
	return model.SessionState{IsAuthenticated: true, UserID: userID, Email: userID + "@example.com"}
}

func newNewsViewModel(t *testing.T, repo newsstore.Repository, session *event.State[model.SessionState], seed []model.FeedItem) *NewsViewModel {
	t.Helper()
	vm := NewNewsViewModel(repo, session, seed, discardLogger())
	t.Cleanup(vm.Close)
	return vm
}

func TestNewsViewModel_AddItemBlankFields(t *testing.T) {
	tests := []struct {
		name                            string
		title, summary, body, category string
	}{
		{"blank title", "", "s", "b", "c"},
		{"blank summary", "t", " ", "b", "c"},
		{"blank body", "t", "s", "", "c"},
		{"blank category", "t", "s", "b", "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockNewsRepo()
			vm := newNewsViewModel(t, repo, event.NewState(signedIn("u1")), nil)

			vm.AddItem(context.Background(), tt.title, tt.summary, tt.body, tt.category, "", func() { t.Error("onSuccess called") })

			got := vm.UiState().Value()
			if got.ErrorMessage != MsgFieldsRequired || got.IsLoading {
				t.Errorf("UiState = %+v", got)
			}
			if n := repo.calls.Load(); n != 0 {
				t.Errorf("repository called %d times, want 0", n)
			}
		})
	}
}

func TestNewsViewModel_AddItemRequiresSession(t *testing.T) {
	repo := newMockNewsRepo()
	vm := newNewsViewModel(t, repo, event.NewState(model.SignedOut()), nil)

	vm.AddItem(context.Background(), "t", "s", "b", "c", "", nil)

	if got := vm.UiState().Value().ErrorMessage; got != MsgAuthRequired {
		t.Errorf("ErrorMessage = %q, want %q", got, MsgAuthRequired)
	}
	if n := repo.calls.Load(); n != 0 {
		t.Errorf("repository called %d times, want 0", n)
	}
}

func TestNewsViewModel_AddItemSuccess(t *testing.T) {
	repo := newMockNewsRepo()
	var gotOwner string
	var gotDraft model.NewsDraft
	repo.addFn = func(_ context.Context, ownerID string, d model.NewsDraft) error {
		gotOwner, gotDraft = ownerID, d
		return nil
	}
	vm := newNewsViewModel(t, repo, event.NewState(signedIn("u1")), nil)

	called := false
	vm.AddItem(context.Background(), "T", "S", "B", "C", "", func() { called = true })

	if !called {
		t.Error("onSuccess not called")
	}
	if gotOwner != "u1" {
		t.Errorf("owner = %q, want u1", gotOwner)
	}
	want := model.NewsDraft{Title: "T", Summary: "S", Body: "B", Category: "C", PublishedLabel: feed.LabelJustNow}
	if gotDraft != want {
		t.Errorf("draft = %+v, want %+v", gotDraft, want)
	}
	if got := vm.UiState().Value(); got.IsLoading || got.ErrorMessage != "" {
		t.Errorf("UiState = %+v", got)
	}
}

func TestNewsViewModel_AddItemProviderError(t *testing.T) {
	repo := newMockNewsRepo()
	repo.addFn = func(context.Context, string, model.NewsDraft) error {
		return model.NewNewsFieldsRequiredError()
	}
	vm := newNewsViewModel(t, repo, event.NewState(signedIn("u1")), nil)

	vm.AddItem(context.Background(), "T", "S", "B", "C", "L", nil)

	if got := vm.UiState().Value().ErrorMessage; got != model.NewNewsFieldsRequiredError().Message {
		t.Errorf("ErrorMessage = %q", got)
	}
}

func TestNewsViewModel_DeleteItem(t *testing.T) {
	repo := newMockNewsRepo()
	vm := newNewsViewModel(t, repo, event.NewState(signedIn("u1")), nil)

	called := false
	vm.DeleteItem(context.Background(), "n-1", func() { called = true })
	if !called {
		t.Error("onSuccess not called")
	}

	repo.deleteFn = func(context.Context, string) error { return errors.New("") }
	vm.DeleteItem(context.Background(), "n-1", nil)
	if got := vm.UiState().Value().ErrorMessage; got != MsgDeleteFailed {
		t.Errorf("ErrorMessage = %q, want %q", got, MsgDeleteFailed)
	}

	vm.ClearError()
	if got := vm.UiState().Value().ErrorMessage; got != "" {
		t.Errorf("ErrorMessage = %q after ClearError", got)
	}
}

func TestNewsViewModel_ListAll(t *testing.T) {
	repo := newMockNewsRepo()
	repo.listFn = func(context.Context) []model.FeedItem {
		return []model.FeedItem{{ID: "a"}, {ID: "b"}}
	}
	vm := newNewsViewModel(t, repo, event.NewState(model.SignedOut()), nil)

	if got := vm.ListAll(context.Background()); len(got) != 2 {
		t.Errorf("ListAll() = %+v", got)
	}
}

func TestNewsViewModel_FeedMergesLiveUserNews(t *testing.T) {
	repo := newMockNewsRepo()
	session := event.NewState(signedIn("u1"))
	vm := newNewsViewModel(t, repo, session, feed.DefaultSeed())

	if got := vm.Feed().Value(); len(got) != 8 {
		t.Fatalf("initial feed has %d items, want 8", len(got))
	}

	eventually(t, "subscription for u1", func() bool { return repo.source("u1") != nil })
	repo.source("u1").Publish([]model.FeedItem{
		{ID: "mine", PublishedLabel: feed.LabelJustNow, AuthoredByUser: true, OwnerID: "u1"},
	})

	eventually(t, "merged feed", func() bool { return len(vm.Feed().Value()) == 9 })
	got := vm.Feed().Value()
	if got[0].ID != "mine" {
		t.Errorf("first item = %q, want user item", got[0].ID)
	}
	if news := vm.UserNews().Value(); len(news) != 1 {
		t.Errorf("UserNews() = %+v", news)
	}
}

func TestNewsViewModel_FollowsOwnerChanges(t *testing.T) {
	repo := newMockNewsRepo()
	session := event.NewState(signedIn("u1"))
	vm := newNewsViewModel(t, repo, session, nil)

	eventually(t, "subscription for u1", func() bool { return repo.source("u1") != nil })
	repo.source("u1").Publish([]model.FeedItem{{ID: "a", OwnerID: "u1"}})
	eventually(t, "u1 news", func() bool { return len(vm.UserNews().Value()) == 1 })

	session.Set(model.SignedOut())
	eventually(t, "cleared news", func() bool { return len(vm.UserNews().Value()) == 0 })

	session.Set(signedIn("u2"))
	eventually(t, "subscription for u2", func() bool { return repo.source("u2") != nil })

	// 古い所有者の値は反映されない
	repo.source("u1").Publish([]model.FeedItem{{ID: "stale", OwnerID: "u1"}})
	repo.source("u2").Publish([]model.FeedItem{{ID: "b", OwnerID: "u2"}, {ID: "c", OwnerID: "u2"}})
	eventually(t, "u2 news", func() bool { return len(vm.UserNews().Value()) == 2 })

	owners := repo.subscribedOwners()
	if len(owners) != 2 || owners[0] != "u1" || owners[1] != "u2" {
		t.Errorf("subscribed owners = %v", owners)
	}
}

func TestNewsViewModel_SameOwnerDoesNotResubscribe(t *testing.T) {
	repo := newMockNewsRepo()
	session := event.NewState(signedIn("u1"))
	vm := newNewsViewModel(t, repo, session, nil)

	eventually(t, "subscription for u1", func() bool { return repo.source("u1") != nil })
	session.Set(signedIn("u1"))
	vm.ClearError()

	if owners := repo.subscribedOwners(); len(owners) != 1 {
		t.Errorf("subscribed owners = %v, want one", owners)
	}
}

func TestNewsViewModel_ConcurrentAddsProduceDistinctRecords(t *testing.T) {
	ctx := context.Background()
	db, err := prefs.Open(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("prefs.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := newsstore.NewLocalRepository(newsstore.NewLocalStore(db.Namespace(newsstore.Namespace)), discardLogger())
	vm := newNewsViewModel(t, repo, event.NewState(signedIn("u1")), nil)

	const writers = 8
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vm.AddItem(ctx, "T", "S", "B", "C", "L", nil)
		}()
	}
	wg.Wait()

	stored := repo.ListAllForOwner(ctx, "u1")
	if len(stored) != writers {
		t.Fatalf("stored %d records, want %d", len(stored), writers)
	}
	ids := make(map[string]bool, len(stored))
	for _, item := range stored {
		if ids[item.ID] {
			t.Errorf("duplicate id %q", item.ID)
		}
		ids[item.ID] = true
	}
}

func TestNewsViewModel_EndToEndWithLocalStore(t *testing.T) {
	ctx := context.Background()
	db, err := prefs.Open(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("prefs.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := newsstore.NewLocalRepository(newsstore.NewLocalStore(db.Namespace(newsstore.Namespace)), discardLogger())
	vm := newNewsViewModel(t, repo, event.NewState(signedIn("u1")), feed.DefaultSeed())

	vm.AddItem(ctx, "T", "S", "B", "C", "L", nil)
	if msg := vm.UiState().Value().ErrorMessage; msg != "" {
		t.Fatalf("AddItem failed: %s", msg)
	}

	items := repo.ListAllForOwner(ctx, "u1")
	if len(items) != 1 {
		t.Fatalf("ListAllForOwner() returned %d items, want 1", len(items))
	}
	got := items[0]
	if got.Title != "T" || got.Summary != "S" || got.Body != "B" || got.Category != "C" || got.PublishedLabel != "L" {
		t.Errorf("item = %+v", got)
	}
	if !got.AuthoredByUser || got.ID == "" {
		t.Errorf("item = %+v, want authored by user with id", got)
	}

	// 未知のラベルはシード記事の後ろに並ぶ
	eventually(t, "feed with user item", func() bool { return len(vm.Feed().Value()) == 9 })
	if last := vm.Feed().Value()[8]; last.ID != got.ID {
		t.Errorf("last feed item = %q, want user item with unknown label", last.ID)
	}
}
