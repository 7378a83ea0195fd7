package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/amiot/internal/model"
)

// PostgresPasswordResetRepo はPostgreSQLを使用したパスワードリセットトークンのリポジトリ。
type PostgresPasswordResetRepo struct {
	db *sql.DB
}

// NewPostgresPasswordResetRepo はPostgresPasswordResetRepoを生成する。
func NewPostgresPasswordResetRepo(db *sql.DB) *PostgresPasswordResetRepo {
	return &PostgresPasswordResetRepo{db: db}
}

// Create はトークンを保存する。
func (r *PostgresPasswordResetRepo) Create(ctx context.Context, reset *model.PasswordReset) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_resets (token, user_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		reset.Token, reset.UserID, reset.ExpiresAt, reset.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create password reset: %w", err)
	}
	return nil
}

// Consume は有効なトークンを1回限り取り出す。
// 期限切れのトークンは削除せずクリーンアップジョブに任せる。
func (r *PostgresPasswordResetRepo) Consume(ctx context.Context, token string) (*model.PasswordReset, error) {
	reset := &model.PasswordReset{}
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM password_resets
		 WHERE token = $1 AND expires_at > now()
		 RETURNING token, user_id, expires_at, created_at`,
		token,
	).Scan(&reset.Token, &reset.UserID, &reset.ExpiresAt, &reset.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume password reset: %w", err)
	}
	return reset, nil
}

// DeleteExpired は期限切れのトークンを削除する。
func (r *PostgresPasswordResetRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return deleteExpired(ctx, r.db, "password_resets")
}

// compile-time interface check
var _ PasswordResetRepository = (*PostgresPasswordResetRepo)(nil)
