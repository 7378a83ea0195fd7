// Package newsstore はユーザー投稿ニュースの保存先を提供する。
//
// RemoteClientはプロバイダーのnewsコレクションを、LocalRepositoryは端末内の
// 設定ストアを保存先とする。どちらもRepositoryインターフェースを満たす。
package newsstore

import (
	"cmp"
	"context"
	"slices"

	"github.com/hitoshi/amiot/internal/event"
	"github.com/hitoshi/amiot/internal/model"
)

// Repository はユーザー投稿ニュースの操作を定義する。
type Repository interface {
	// AddItem はownerIDのニュースを1件追加する。IDと作成日時は保存先が採番する。
	AddItem(ctx context.Context, ownerID string, draft model.NewsDraft) error
	// ListAllForOwner はownerIDのニュースを新しい順に返す。失敗時は空のリストを返す。
	ListAllForOwner(ctx context.Context, ownerID string) []model.FeedItem
	// ListAll は全ユーザーのニュースを新しい順に返す。失敗時は空のリストを返す。
	ListAll(ctx context.Context) []model.FeedItem
	// DeleteItem はIDのニュースを削除する。存在しないIDの削除は成功として扱う。
	DeleteItem(ctx context.Context, id string) error
	// Subscribe はownerIDのニュース一覧を変更の度に配信する。
	// ctxがキャンセルされると配信は終了する。
	Subscribe(ctx context.Context, ownerID string) *event.Subscription[[]model.FeedItem]
}

// sortNewestFirst は作成日時の降順に並べ替える。同時刻の順序は維持する。
func sortNewestFirst(items []model.FeedItem) {
	slices.SortStableFunc(items, func(a, b model.FeedItem) int {
		return cmp.Compare(b.CreatedAt, a.CreatedAt)
	})
}
