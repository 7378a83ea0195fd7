package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は投稿されたニュースのテキストを無害化するインターフェース。
// クライアントはテキストとして表示するため、HTMLはすべて取り除く。
type ContentSanitizerService interface {
	// Sanitize はタグを除去したプレーンテキストを返す。
	// script, styleは中身ごと除去され、エンティティは元の文字に戻る。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// ContentSanitizer はbluemondayのStrictPolicyによる実装。
type ContentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerを生成する。
func NewContentSanitizer() *ContentSanitizer {
	return &ContentSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去したプレーンテキストを返す。前後の空白も取り除く。
func (s *ContentSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

// compile-time interface check
var _ ContentSanitizerService = (*ContentSanitizer)(nil)
