package feed

import (
	"slices"

	"github.com/hitoshi/amiot/internal/model"
)

// Merge はユーザー投稿とシード記事を結合し、ラベルの順位で並べ替えた新しいスライスを返す。
// 同じ順位の記事は結合前の順序（ユーザー投稿が先）を保つ。
func Merge(userItems, seed []model.FeedItem) []model.FeedItem {
	merged := make([]model.FeedItem, 0, len(userItems)+len(seed))
	merged = append(merged, userItems...)
	merged = append(merged, seed...)

	slices.SortStableFunc(merged, func(a, b model.FeedItem) int {
		return Rank(a.PublishedLabel) - Rank(b.PublishedLabel)
	})
	return merged
}
