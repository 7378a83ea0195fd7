// Package docstore はプロバイダー側のnewsコレクションとライブクエリを提供する。
package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/amiot/internal/feed"
	"github.com/hitoshi/amiot/internal/model"
	"github.com/hitoshi/amiot/internal/repository"
	"github.com/hitoshi/amiot/internal/security"
)

// 各フィールドの最大文字数（DBのカラム長と一致させる）
const (
	maxTitleLength    = 500
	maxLabelLength    = 100
	maxCategoryLength = 100
)

// Service はnewsコレクションの読み書きを提供する。
type Service struct {
	repo      repository.NewsRepository
	sanitizer security.ContentSanitizerService
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.NewsRepository, sanitizer security.ContentSanitizerService) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Add はownerIDのニュースを作成して返す。
// 入力はサニタイズ後に検証し、日付ラベルが空の場合は「Hace unos momentos」とする。
func (s *Service) Add(ctx context.Context, ownerID string, draft model.NewsDraft) (*model.FeedItem, error) {
	item := &model.FeedItem{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		Title:          s.sanitizer.Sanitize(draft.Title),
		Summary:        s.sanitizer.Sanitize(draft.Summary),
		Body:           s.sanitizer.Sanitize(draft.Body),
		PublishedLabel: s.sanitizer.Sanitize(draft.PublishedLabel),
		Category:       s.sanitizer.Sanitize(draft.Category),
		AuthoredByUser: true,
		CreatedAt:      s.now().UnixMilli(),
	}

	if item.Title == "" || item.Summary == "" || item.Body == "" || item.Category == "" {
		return nil, model.NewNewsFieldsRequiredError()
	}
	if item.PublishedLabel == "" {
		item.PublishedLabel = feed.LabelJustNow
	}
	if err := validateLength(item); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to add news: %w", err)
	}

	slog.Info("news added",
		slog.String("news_id", item.ID),
		slog.String("user_id", ownerID),
	)
	return item, nil
}

func validateLength(item *model.FeedItem) error {
	switch {
	case utf8.RuneCountInString(item.Title) > maxTitleLength:
		return model.NewInvalidRequestError(fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	case utf8.RuneCountInString(item.PublishedLabel) > maxLabelLength:
		return model.NewInvalidRequestError(fmt.Sprintf("date must be at most %d characters", maxLabelLength))
	case utf8.RuneCountInString(item.Category) > maxCategoryLength:
		return model.NewInvalidRequestError(fmt.Sprintf("category must be at most %d characters", maxCategoryLength))
	}
	return nil
}

// ListByOwner はownerIDのニュースを新しい順に返す。
// ユーザーIDはUUIDのため、それ以外の形式では空の一覧を返す。
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]model.FeedItem, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return []model.FeedItem{}, nil
	}

	items, err := s.repo.ListByUserID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list news: %w", err)
	}
	return items, nil
}

// ListAll は全ユーザーのニュースを新しい順に返す。
func (s *Service) ListAll(ctx context.Context) ([]model.FeedItem, error) {
	items, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list news: %w", err)
	}
	return items, nil
}

// Delete はownerIDが所有するニュースを削除する。
// 存在しないIDや他ユーザーのニュースに対しては何もせず成功とする。
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}

	deleted, err := s.repo.DeleteByIDAndUser(ctx, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete news: %w", err)
	}
	if deleted {
		slog.Info("news deleted",
			slog.String("news_id", id),
			slog.String("user_id", ownerID),
		)
	}
	return nil
}
