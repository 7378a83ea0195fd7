package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/amiot/internal/model"
)

// PostgresNewsRepo はPostgreSQLを使用したニュースリポジトリ。
type PostgresNewsRepo struct {
	db *sql.DB
}

// NewPostgresNewsRepo はPostgresNewsRepoを生成する。
func NewPostgresNewsRepo(db *sql.DB) *PostgresNewsRepo {
	return &PostgresNewsRepo{db: db}
}

const newsColumns = `id, user_id, title, content, full_content, date_label, category, is_user_created, created_at`

// Create はニュースを作成する。
func (r *PostgresNewsRepo) Create(ctx context.Context, item *model.FeedItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO news (`+newsColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.ID, item.OwnerID, item.Title, item.Summary, item.Body,
		item.PublishedLabel, item.Category, item.AuthoredByUser, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create news: %w", err)
	}
	return nil
}

// ListByUserID は指定ユーザーのニュースを作成日時の降順で返す。
func (r *PostgresNewsRepo) ListByUserID(ctx context.Context, userID string) ([]model.FeedItem, error) {
	return r.list(ctx,
		`SELECT `+newsColumns+` FROM news WHERE user_id = $1 ORDER BY created_at DESC, id`,
		userID,
	)
}

// ListAll は全ニュースを作成日時の降順で返す。
func (r *PostgresNewsRepo) ListAll(ctx context.Context) ([]model.FeedItem, error) {
	return r.list(ctx, `SELECT `+newsColumns+` FROM news ORDER BY created_at DESC, id`)
}

func (r *PostgresNewsRepo) list(ctx context.Context, query string, args ...any) ([]model.FeedItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list news: %w", err)
	}
	defer rows.Close()

	items := []model.FeedItem{}
	for rows.Next() {
		var item model.FeedItem
		if err := rows.Scan(
			&item.ID, &item.OwnerID, &item.Title, &item.Summary, &item.Body,
			&item.PublishedLabel, &item.Category, &item.AuthoredByUser, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan news: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate news: %w", err)
	}
	return items, nil
}

// DeleteByIDAndUser は指定ユーザーが所有するニュースを削除する。
func (r *PostgresNewsRepo) DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM news WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete news: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count deleted news: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ NewsRepository = (*PostgresNewsRepo)(nil)
