package newsstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/amiot/internal/event"
	"github.com/hitoshi/amiot/internal/model"
	"github.com/hitoshi/amiot/internal/prefs"
)

// Namespace はニュースを保存する設定ストアの名前空間。
const Namespace = "news_prefs"

// KeyUserNews はニュースの記録集合を保存するキー。
const KeyUserNews = "user_news"

// LocalStore はニュースを設定ストアの文字列集合として保存する。
// 更新は全件読み出し、変更、全件書き戻しを1トランザクションで行う。
type LocalStore struct {
	prefs *prefs.Store
}

// NewLocalStore はLocalStoreを生成する。
func NewLocalStore(store *prefs.Store) *LocalStore {
	return &LocalStore{prefs: store}
}

// Add は記録を1件追加する。
func (s *LocalStore) Add(ctx context.Context, record model.FeedItem) error {
	encoded, err := EncodeRecord(record)
	if err != nil {
		return err
	}
	err = s.prefs.UpdateStringSet(ctx, KeyUserNews, func(members []string) ([]string, error) {
		return append(members, encoded), nil
	})
	if err != nil {
		return fmt.Errorf("failed to add news record: %w", err)
	}
	return nil
}

// List は保存済みの全記録を返す。不正な記録は読み飛ばす。
func (s *LocalStore) List(ctx context.Context) ([]model.FeedItem, error) {
	members, err := s.prefs.GetStringSet(ctx, KeyUserNews)
	if err != nil {
		return nil, fmt.Errorf("failed to read news records: %w", err)
	}
	return decodeAll(members), nil
}

// Delete はIDの記録を削除する。該当がなくても成功する。
// 不正な記録は読み飛ばされ、書き戻し時に取り除かれる。
func (s *LocalStore) Delete(ctx context.Context, id string) error {
	err := s.prefs.UpdateStringSet(ctx, KeyUserNews, func(members []string) ([]string, error) {
		kept := make([]string, 0, len(members))
		for _, item := range decodeAll(members) {
			if item.ID == id {
				continue
			}
			encoded, err := EncodeRecord(item)
			if err != nil {
				return nil, err
			}
			kept = append(kept, encoded)
		}
		return kept, nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete news record: %w", err)
	}
	return nil
}

// Watch は記録集合を変更の度に配信する。最初に現在の内容を配信する。
func (s *LocalStore) Watch() *event.Subscription[[]model.FeedItem] {
	raw := s.prefs.ObserveStringSet(KeyUserNews)
	src := event.NewSource[[]model.FeedItem]()
	sub := src.Subscribe().OnClose(raw.Close)

	go func() {
		defer src.Close()
		for members := range raw.C() {
			src.Publish(decodeAll(members))
		}
	}()
	return sub
}

// コンパイル時にインターフェースの実装を検証する。
var _ Repository = (*LocalRepository)(nil)

// LocalRepository はLocalStoreをRepositoryとして扱うアダプタ。
type LocalRepository struct {
	store  *LocalStore
	logger *slog.Logger
	now    func() time.Time
}

// NewLocalRepository はLocalRepositoryを生成する。
func NewLocalRepository(store *LocalStore, logger *slog.Logger) *LocalRepository {
	return &LocalRepository{store: store, logger: logger, now: time.Now}
}

// AddItem はニュースを追加する。
func (r *LocalRepository) AddItem(ctx context.Context, ownerID string, draft model.NewsDraft) error {
	return r.store.Add(ctx, model.FeedItem{
		ID:             uuid.NewString(),
		Title:          draft.Title,
		Summary:        draft.Summary,
		Body:           draft.Body,
		PublishedLabel: draft.PublishedLabel,
		Category:       draft.Category,
		AuthoredByUser: true,
		OwnerID:        ownerID,
		CreatedAt:      r.now().UnixMilli(),
	})
}

// ListAllForOwner はownerIDのニュースを返す。
func (r *LocalRepository) ListAllForOwner(ctx context.Context, ownerID string) []model.FeedItem {
	return filterOwner(r.ListAll(ctx), ownerID)
}

// ListAll は全ニュースを返す。
func (r *LocalRepository) ListAll(ctx context.Context) []model.FeedItem {
	items, err := r.store.List(ctx)
	if err != nil {
		r.logger.Warn("failed to list local news, returning empty list", slog.String("error", err.Error()))
		return []model.FeedItem{}
	}
	sortNewestFirst(items)
	return items
}

// DeleteItem はニュースを削除する。
func (r *LocalRepository) DeleteItem(ctx context.Context, id string) error {
	return r.store.Delete(ctx, id)
}

// Subscribe はownerIDのニュース一覧を変更の度に配信する。
func (r *LocalRepository) Subscribe(ctx context.Context, ownerID string) *event.Subscription[[]model.FeedItem] {
	ctx, cancel := context.WithCancel(ctx)
	watch := r.store.Watch()
	src := event.NewSource[[]model.FeedItem]()
	sub := src.Subscribe().OnClose(cancel)

	go func() {
		defer src.Close()
		event.Forward(ctx, watch, func(items []model.FeedItem) {
			owned := filterOwner(items, ownerID)
			sortNewestFirst(owned)
			src.Publish(owned)
		})
	}()
	return sub
}

func filterOwner(items []model.FeedItem, ownerID string) []model.FeedItem {
	owned := make([]model.FeedItem, 0, len(items))
	for _, item := range items {
		if item.OwnerID == ownerID {
			owned = append(owned, item)
		}
	}
	return owned
}
