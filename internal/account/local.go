package account

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/amiot/internal/event"
	"github.com/hitoshi/amiot/internal/model"
	"github.com/hitoshi/amiot/internal/prefs"
	"golang.org/x/crypto/bcrypt"
)

// コンパイル時にインターフェースの実装を検証する。
var _ Client = (*LocalClient)(nil)

// LocalClient は設定ストアのみで動作する認証クライアント。
// 端末につき1アカウントのみを保持し、パスワードはbcryptハッシュで保存する。
// 認証状態は設定ストアの変更に追従するため、同じ名前空間を共有する他の書き込みも反映される。
type LocalClient struct {
	prefs      *prefs.Store
	session    *event.State[model.SessionState]
	logger     *slog.Logger
	bcryptCost int

	// reloadMu は読み出しと発行を直列化し、古い状態で上書きしないようにする
	reloadMu sync.Mutex
	stop     context.CancelFunc
	done     chan struct{}
}

// NewLocalClient はLocalClientを生成し、保存済みの認証状態を読み込む。
// 設定ストアの監視はctxが終了するかCloseされるまで続く。
func NewLocalClient(ctx context.Context, store *prefs.Store, logger *slog.Logger) (*LocalClient, error) {
	c := &LocalClient{
		prefs:      store,
		session:    event.NewState(model.SignedOut()),
		logger:     logger,
		bcryptCost: bcrypt.DefaultCost,
		done:       make(chan struct{}),
	}
	if err := c.reload(ctx); err != nil {
		return nil, fmt.Errorf("failed to load local session: %w", err)
	}

	watchCtx, stop := context.WithCancel(ctx)
	c.stop = stop
	go c.follow(watchCtx, store.Observe(KeyIsLoggedIn), store.Observe(KeyUserEmail))
	return c, nil
}

// Close は設定ストアの監視を終了する。複数回呼んでも安全。
func (c *LocalClient) Close() {
	c.stop()
	<-c.done
}

// follow はログイン状態とメールアドレスの変更の度に認証状態を読み直す。
func (c *LocalClient) follow(ctx context.Context, loggedIn, email *event.Subscription[prefs.Value]) {
	defer close(c.done)
	defer loggedIn.Close()
	defer email.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-loggedIn.C():
			if !ok {
				return
			}
		case _, ok := <-email.C():
			if !ok {
				return
			}
		}
		if err := c.reload(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("failed to reload local session", slog.String("error", err.Error()))
		}
	}
}

// CurrentSession は現在の認証状態を返す。
func (c *LocalClient) CurrentSession() *event.State[model.SessionState] {
	return c.session
}

// Register は既存のアカウントを置き換えて登録する。登録直後はサインアウト状態となる。
func (c *LocalClient) Register(ctx context.Context, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	err = c.prefs.Edit(ctx, func(b *prefs.Batch) {
		b.Set(KeyUserEmail, email)
		b.Set(KeyUserPassword, string(hash))
		b.Set(KeyIsLoggedIn, "false")
	})
	if err != nil {
		return err
	}
	return c.reload(ctx)
}

// Login は保存済みの認証情報と照合する。
func (c *LocalClient) Login(ctx context.Context, email, password string) (bool, error) {
	storedEmail, _, err := c.prefs.Get(ctx, KeyUserEmail)
	if err != nil {
		return false, err
	}
	storedHash, _, err := c.prefs.Get(ctx, KeyUserPassword)
	if err != nil {
		return false, err
	}
	if storedEmail == "" || storedEmail != email {
		return false, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) != nil {
		return false, nil
	}

	if err := c.prefs.Set(ctx, KeyIsLoggedIn, "true"); err != nil {
		return false, err
	}
	return true, c.reload(ctx)
}

// Logout はサインアウトする。保存済みのアカウントは残る。
func (c *LocalClient) Logout(ctx context.Context) {
	if err := c.prefs.Set(context.WithoutCancel(ctx), KeyIsLoggedIn, "false"); err != nil {
		c.logger.Warn("failed to persist logout", slog.String("error", err.Error()))
	}
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()
	c.session.Set(model.SignedOut())
}

// ResetPassword は保存済みのメールアドレスと一致する場合にtrueを返す。
// 実際のメール送信は行わない。
func (c *LocalClient) ResetPassword(ctx context.Context, email string) (bool, error) {
	storedEmail, _, err := c.prefs.Get(ctx, KeyUserEmail)
	if err != nil {
		return false, err
	}
	return storedEmail != "" && storedEmail == email, nil
}

// reload は設定ストアから認証状態を読み込み発行する。
// ローカルモードではメールアドレスをユーザーIDとして扱う。
func (c *LocalClient) reload(ctx context.Context) error {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	loggedIn, _, err := c.prefs.Get(ctx, KeyIsLoggedIn)
	if err != nil {
		return err
	}
	if loggedIn != "true" {
		c.session.Set(model.SignedOut())
		return nil
	}
	email, _, err := c.prefs.Get(ctx, KeyUserEmail)
	if err != nil {
		return err
	}
	c.session.Set(model.SessionState{IsAuthenticated: true, UserID: email, Email: email})
	return nil
}
