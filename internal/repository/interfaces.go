// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/amiot/internal/model"
)

// ErrDuplicateEmail は既に登録済みのメールアドレスでユーザーを作成しようとした場合のエラー。
var ErrDuplicateEmail = errors.New("email already registered")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// UpdatePasswordHash はパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Rotate は有効なoldIDのセッションをnextに置き換える。oldIDが無効な場合はfalseを返す。
	Rotate(ctx context.Context, oldID string, next *model.Session) (bool, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// PasswordResetRepository はパスワードリセットトークンの永続化インターフェース。
type PasswordResetRepository interface {
	// Create はトークンを保存する。
	Create(ctx context.Context, reset *model.PasswordReset) error
	// Consume は有効なトークンを削除して返す。無効または期限切れの場合はnilを返す。
	Consume(ctx context.Context, token string) (*model.PasswordReset, error)
	// DeleteExpired は期限切れのトークンを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// NewsRepository はnewsコレクションの永続化インターフェース。
type NewsRepository interface {
	// Create はニュースを作成する。
	Create(ctx context.Context, item *model.FeedItem) error
	// ListByUserID は指定ユーザーのニュースを作成日時の降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]model.FeedItem, error)
	// ListAll は全ニュースを作成日時の降順で返す。
	ListAll(ctx context.Context) ([]model.FeedItem, error)
	// DeleteByIDAndUser は指定ユーザーが所有するニュースを削除する。削除した場合にtrueを返す。
	DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error)
}
