package newsstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/amiot/internal/model"
)

// EncodeRecord はニュース1件を設定ストア保存用のJSON文字列に変換する。
func EncodeRecord(item model.FeedItem) (string, error) {
	b, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("failed to encode news record: %w", err)
	}
	return string(b), nil
}

// DecodeRecord はJSON文字列をニュース1件に変換する。
// 未知のフィールドは無視し、idのない記録はエラーとする。
func DecodeRecord(s string) (model.FeedItem, error) {
	var item model.FeedItem
	if err := json.Unmarshal([]byte(s), &item); err != nil {
		return model.FeedItem{}, fmt.Errorf("failed to decode news record: %w", err)
	}
	if item.ID == "" {
		return model.FeedItem{}, errors.New("news record has no id")
	}
	return item, nil
}

// decodeAll は不正な記録を読み飛ばして全件をデコードする。
func decodeAll(members []string) []model.FeedItem {
	items := make([]model.FeedItem, 0, len(members))
	for _, m := range members {
		item, err := DecodeRecord(m)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items
}
