package account

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/amiot/internal/event"
	"github.com/hitoshi/amiot/internal/model"
	"github.com/hitoshi/amiot/internal/prefs"
	"github.com/hitoshi/amiot/internal/remote"
)

// コンパイル時にインターフェースの実装を検証する。
var _ Client = (*RemoteClient)(nil)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetRequest struct {
	Email string `json:"email"`
}

// authResponse はサインイン系エンドポイントの応答。
type authResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

type meResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// RemoteClient はプロバイダーAPIを使う認証クライアント。
// セッショントークンは設定ストアに保存され、再起動後にRestoreで復元される。
type RemoteClient struct {
	api     *remote.Client
	prefs   *prefs.Store
	session *event.State[model.SessionState]
	logger  *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewRemoteClient はRemoteClientを生成し、apiにトークンと失効時の処理を登録する。
func NewRemoteClient(api *remote.Client, store *prefs.Store, logger *slog.Logger) *RemoteClient {
	c := &RemoteClient{
		api:     api,
		prefs:   store,
		session: event.NewState(model.SignedOut()),
		logger:  logger,
	}
	api.SetTokenSource(c.currentToken)
	api.OnUnauthorized(c.handleRevoked)
	return c
}

// CurrentSession は現在の認証状態を返す。
func (c *RemoteClient) CurrentSession() *event.State[model.SessionState] {
	return c.session
}

// Register はアカウントを作成し、そのままサインインする。
func (c *RemoteClient) Register(ctx context.Context, email, password string) error {
	var resp authResponse
	if err := c.api.Do(ctx, http.MethodPost, "/auth/register", credentialsRequest{Email: email, Password: password}, &resp); err != nil {
		return err
	}
	c.establish(ctx, resp)
	return nil
}

// Login はサインインする。
func (c *RemoteClient) Login(ctx context.Context, email, password string) (bool, error) {
	var resp authResponse
	err := c.api.Do(ctx, http.MethodPost, "/auth/login", credentialsRequest{Email: email, Password: password}, &resp)
	if model.IsInvalidCredential(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c.establish(ctx, resp)
	return true, nil
}

// Logout はプロバイダー側のセッションを破棄し、ローカルの状態をクリアする。
// プロバイダーへの通知に失敗してもローカルのサインアウトは完了する。
func (c *RemoteClient) Logout(ctx context.Context) {
	if c.currentToken() != "" {
		if err := c.api.Do(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil && !model.IsUnauthorized(err) {
			c.logger.Warn("failed to revoke session", slog.String("error", err.Error()))
		}
	}
	c.clear(ctx)
}

// ResetPassword はパスワードリセットメールの送信を要求する。
// アカウントの有無は開示されないため、要求が受理されればtrueを返す。
func (c *RemoteClient) ResetPassword(ctx context.Context, email string) (bool, error) {
	if err := c.api.Do(ctx, http.MethodPost, "/auth/password-reset", resetRequest{Email: email}, nil); err != nil {
		return false, err
	}
	return true, nil
}

// Restore は保存済みのセッショントークンを読み込み、プロバイダーで検証する。
// プロバイダーに到達できない場合は保存済みの情報でサインイン状態とみなし、エラーを返す。
func (c *RemoteClient) Restore(ctx context.Context) error {
	token, ok, err := c.prefs.Get(ctx, KeySessionToken)
	if err != nil {
		return err
	}
	if !ok || token == "" {
		c.session.Set(model.SignedOut())
		return nil
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	var me meResponse
	err = c.api.Do(ctx, http.MethodGet, "/auth/me", nil, &me)
	if model.IsUnauthorized(err) {
		// handleRevokedでクリア済み
		return nil
	}
	if err != nil {
		userID, _, _ := c.prefs.Get(ctx, KeyUserID)
		email, _, _ := c.prefs.Get(ctx, KeyUserEmail)
		c.session.Set(model.SessionState{IsAuthenticated: true, UserID: userID, Email: email})
		return err
	}

	c.session.Set(model.SessionState{IsAuthenticated: true, UserID: me.UserID, Email: me.Email})
	return nil
}

// RunRefresh はctxがキャンセルされるまでinterval毎にセッショントークンを更新する。
func (c *RemoteClient) RunRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.refresh(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("session refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (c *RemoteClient) refresh(ctx context.Context) error {
	if c.currentToken() == "" {
		return nil
	}
	var resp authResponse
	if err := c.api.Do(ctx, http.MethodPost, "/auth/refresh", nil, &resp); err != nil {
		return err
	}
	c.establish(ctx, resp)
	return nil
}

func (c *RemoteClient) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// establish は新しいセッションを保持・保存し、認証状態を発行する。
func (c *RemoteClient) establish(ctx context.Context, resp authResponse) {
	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()

	err := c.prefs.Edit(ctx, func(b *prefs.Batch) {
		b.Set(KeySessionToken, resp.Token)
		b.Set(KeyUserID, resp.UserID)
		b.Set(KeyUserEmail, resp.Email)
	})
	if err != nil {
		c.logger.Warn("failed to persist session", slog.String("error", err.Error()))
	}

	c.session.Set(model.SessionState{IsAuthenticated: true, UserID: resp.UserID, Email: resp.Email})
}

func (c *RemoteClient) clear(ctx context.Context) {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()

	err := c.prefs.Edit(context.WithoutCancel(ctx), func(b *prefs.Batch) {
		b.Remove(KeySessionToken)
		b.Remove(KeyUserID)
		b.Remove(KeyUserEmail)
	})
	if err != nil {
		c.logger.Warn("failed to clear persisted session", slog.String("error", err.Error()))
	}

	c.session.Set(model.SignedOut())
}

// handleRevoked はプロバイダーがセッションを無効と応答した際に呼ばれる。
func (c *RemoteClient) handleRevoked() {
	if c.currentToken() == "" {
		return
	}
	c.logger.Info("session revoked by provider")
	c.clear(context.Background())
}
