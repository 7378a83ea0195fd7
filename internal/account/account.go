// Package account はメールアドレスとパスワードによる認証クライアントを提供する。
//
// RemoteClientはプロバイダーAPIに委譲し、LocalClientは端末内の設定ストアのみで
// 動作するオフライン用の実装である。どちらも認証状態をevent.Stateとして公開する。
package account

import (
	"context"

	"github.com/hitoshi/amiot/internal/event"
	"github.com/hitoshi/amiot/internal/model"
)

// Namespace は認証情報を保存する設定ストアの名前空間。
const Namespace = "auth_prefs"

// 設定ストアのキー
const (
	KeySessionToken = "session_token"
	KeyUserID       = "user_id"
	KeyUserEmail    = "user_email"
	KeyUserPassword = "user_password"
	KeyIsLoggedIn   = "is_logged_in"
)

// Client は認証クライアントのインターフェース。
type Client interface {
	// Register はアカウントを作成する。失敗時はプロバイダーのエラーを返す。
	Register(ctx context.Context, email, password string) error
	// Login はサインインを試みる。認証情報の不一致は(false, nil)を返す。
	Login(ctx context.Context, email, password string) (bool, error)
	// Logout はサインアウトする。ローカルの状態は常にクリアされる。
	Logout(ctx context.Context)
	// ResetPassword はパスワードリセットを要求する。
	ResetPassword(ctx context.Context, email string) (bool, error)
	// CurrentSession は現在の認証状態を返す。
	CurrentSession() *event.State[model.SessionState]
}
