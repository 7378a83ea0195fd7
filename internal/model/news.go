// Package model はドメインモデルを定義する。
package model

// FeedItem はフィードに表示されるニュース1件を表す。
// 静的なシードとユーザー投稿の両方がこの形をとる。
// JSONフィールド名はリモートのnewsコレクションと共通。
type FeedItem struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Summary        string `json:"content"`
	Body           string `json:"fullContent"`
	PublishedLabel string `json:"date"` // 相対時間ラベル（タイムスタンプではない）
	Category       string `json:"category"`
	AuthoredByUser bool   `json:"isUserCreated"`
	OwnerID        string `json:"userId,omitempty"`
	CreatedAt      int64  `json:"createdAt,omitempty"` // epoch ミリ秒
}

// NewsDraft はニュース追加時の入力を表す。
type NewsDraft struct {
	Title          string `json:"title"`
	Summary        string `json:"content"`
	Body           string `json:"fullContent"`
	Category       string `json:"category"`
	PublishedLabel string `json:"date"`
}

// Categories は投稿画面で選択できるカテゴリ一覧。
var Categories = []string{
	"Tecnología", "Innovación", "Ciudad", "Gobierno", "Negocios",
	"Medio Ambiente", "Minería", "Educación", "Salud", "Deportes",
}

// FullText は詳細表示用の本文を返す。本文が空の場合は要約を返す。
func (f FeedItem) FullText() string {
	if f.Body != "" {
		return f.Body
	}
	return f.Summary
}
