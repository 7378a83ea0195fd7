// Package model はドメインモデルを定義する。
package model

import "time"

// User はプロバイダーに登録されたユーザーを表す。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はプロバイダー側のログインセッションを表す。
// IDはそのままベアラートークンとして使用する。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// PasswordReset はパスワードリセット用のワンタイムトークンを表す。
type PasswordReset struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionState はクライアントから見た認証状態を表す。
// IsAuthenticatedは有効なプロバイダーセッションが存在する場合に限りtrueとなる。
type SessionState struct {
	IsAuthenticated bool
	UserID          string
	Email           string
}

// SignedOut は未認証状態を返す。
func SignedOut() SessionState {
	return SessionState{}
}
