package account

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/amiot/internal/model"
	"github.com/hitoshi/amiot/internal/prefs"
	"golang.org/x/crypto/bcrypt"
)

func newLocalClient(t *testing.T) *LocalClient {
	t.Helper()
	return newLocalClientOn(t, openStore(t))
}

func newLocalClientOn(t *testing.T, store *prefs.Store) *LocalClient {
	t.Helper()
	c, err := NewLocalClient(context.Background(), store, discardLogger())
	if err != nil {
		t.Fatalf("NewLocalClient() error = %v", err)
	}
	c.bcryptCost = bcrypt.MinCost
	t.Cleanup(c.Close)
	return c
}

// waitSession は認証状態がmatchを満たすまで待ち、その値を返す。
func waitSession(t *testing.T, c *LocalClient, match func(model.SessionState) bool) model.SessionState {
	t.Helper()
	sub := c.CurrentSession().Subscribe()
	defer sub.Close()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case s, ok := <-sub.C():
			if !ok {
				t.Fatal("session closed unexpectedly")
			}
			if match(s) {
				return s
			}
		case <-timeout:
			t.Fatalf("timed out waiting for session, last = %+v", c.CurrentSession().Value())
			return model.SessionState{}
		}
	}
}

func TestLocalClient_RegisterStoresHashAndStaysSignedOut(t *testing.T) {
	ctx := context.Background()
	c := newLocalClient(t)

	if err := c.Register(ctx, "a@example.com", "secret1"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	stored, _, _ := c.prefs.Get(ctx, KeyUserPassword)
	if stored == "secret1" || !strings.HasPrefix(stored, "$2") {
		t.Errorf("stored password = %q, want bcrypt hash", stored)
	}
	loggedIn, _, _ := c.prefs.Get(ctx, KeyIsLoggedIn)
	if loggedIn != "false" {
		t.Errorf("is_logged_in = %q, want false", loggedIn)
	}
	if c.CurrentSession().Value().IsAuthenticated {
		t.Error("session should be signed out after register")
	}
}

func TestLocalClient_Login(t *testing.T) {
	ctx := context.Background()
	c := newLocalClient(t)
	if err := c.Register(ctx, "a@example.com", "secret1"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		want     bool
	}{
		{"wrong password", "a@example.com", "nope", false},
		{"unknown email", "b@example.com", "secret1", false},
		{"matching", "a@example.com", "secret1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Login(ctx, tt.email, tt.password)
			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Login() = %v, want %v", got, tt.want)
			}
		})
	}

	s := c.CurrentSession().Value()
	if !s.IsAuthenticated || s.Email != "a@example.com" {
		t.Errorf("session = %+v", s)
	}
}

func TestLocalClient_LoginWithoutAccount(t *testing.T) {
	c := newLocalClient(t)

	ok, err := c.Login(context.Background(), "", "")
	if err != nil || ok {
		t.Errorf("Login() = %v, %v; want false, nil", ok, err)
	}
}

func TestLocalClient_LogoutKeepsAccount(t *testing.T) {
	ctx := context.Background()
	c := newLocalClient(t)
	c.Register(ctx, "a@example.com", "secret1")
	c.Login(ctx, "a@example.com", "secret1")

	c.Logout(ctx)

	if c.CurrentSession().Value().IsAuthenticated {
		t.Error("session should be signed out")
	}
	ok, err := c.Login(ctx, "a@example.com", "secret1")
	if err != nil || !ok {
		t.Errorf("Login() after logout = %v, %v", ok, err)
	}
}

func TestLocalClient_SessionSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	c := newLocalClient(t)
	c.Register(ctx, "a@example.com", "secret1")
	c.Login(ctx, "a@example.com", "secret1")

	reopened := newLocalClientOn(t, c.prefs)
	if !reopened.CurrentSession().Value().IsAuthenticated {
		t.Error("persisted session should be restored")
	}
}

func TestLocalClient_ResetPassword(t *testing.T) {
	ctx := context.Background()
	c := newLocalClient(t)
	c.Register(ctx, "a@example.com", "secret1")

	if ok, _ := c.ResetPassword(ctx, "a@example.com"); !ok {
		t.Error("ResetPassword(stored) = false, want true")
	}
	if ok, _ := c.ResetPassword(ctx, "b@example.com"); ok {
		t.Error("ResetPassword(other) = true, want false")
	}
}

func TestLocalClient_FollowsStoreChanges(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	a := newLocalClientOn(t, store)
	b := newLocalClientOn(t, store)

	if err := b.Register(ctx, "b@example.com", "secret1"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if ok, err := b.Login(ctx, "b@example.com", "secret1"); err != nil || !ok {
		t.Fatalf("Login() = %v, %v", ok, err)
	}

	got := waitSession(t, a, func(s model.SessionState) bool { return s.IsAuthenticated })
	if got.Email != "b@example.com" || got.UserID != "b@example.com" {
		t.Errorf("session = %+v", got)
	}

	b.Logout(ctx)
	waitSession(t, a, func(s model.SessionState) bool { return !s.IsAuthenticated })
}

func TestLocalClient_FollowsDirectPreferenceWrites(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	c := newLocalClientOn(t, store)

	err := store.Edit(ctx, func(b *prefs.Batch) {
		b.Set(KeyUserEmail, "c@example.com")
		b.Set(KeyIsLoggedIn, "true")
	})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	waitSession(t, c, func(s model.SessionState) bool {
		return s.IsAuthenticated && s.Email == "c@example.com"
	})

	if err := store.Set(ctx, KeyIsLoggedIn, "false"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	waitSession(t, c, func(s model.SessionState) bool { return !s.IsAuthenticated })
}

func TestLocalClient_CloseStopsFollowing(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	c := newLocalClientOn(t, store)
	c.Close()
	c.Close()

	if err := store.Edit(ctx, func(b *prefs.Batch) {
		b.Set(KeyUserEmail, "c@example.com")
		b.Set(KeyIsLoggedIn, "true")
	}); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if c.CurrentSession().Value().IsAuthenticated {
		t.Error("closed client should not follow store changes")
	}
}
