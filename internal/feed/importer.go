package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hitoshi/amiot/internal/model"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
)

// DefaultCategory はカテゴリを持たない記事に割り当てるカテゴリ。
const DefaultCategory = "Tecnología"

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Importer はRSS/Atomフィードからシード記事を生成する。
type Importer struct {
	ssrfGuard   SSRFValidator
	timeout     time.Duration
	maxBodySize int64
	now         func() time.Time
}

// NewImporter はImporterを生成する。ssrfGuardがnilの場合はURLからの取り込みを検証しない。
func NewImporter(ssrfGuard SSRFValidator) *Importer {
	return &Importer{
		ssrfGuard:   ssrfGuard,
		timeout:     10 * time.Second,
		maxBodySize: 5 * 1024 * 1024,
		now:         time.Now,
	}
}

// Import はsourceがhttp(s)のURLであれば取得し、それ以外はファイルとして読み込む。
func (im *Importer) Import(ctx context.Context, source string) ([]model.FeedItem, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return im.ImportURL(ctx, source)
	}
	return im.ImportFile(source)
}

// ImportFile はファイルのフィードを読み込む。
func (im *Importer) ImportFile(path string) ([]model.FeedItem, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed file: %w", err)
	}
	return im.Parse(body)
}

// ImportURL はSSRF防止付きクライアントでフィードを取得する。
func (im *Importer) ImportURL(ctx context.Context, rawURL string) ([]model.FeedItem, error) {
	client := &http.Client{Timeout: im.timeout}
	if im.ssrfGuard != nil {
		if err := im.ssrfGuard.ValidateURL(rawURL); err != nil {
			return nil, fmt.Errorf("feed url rejected: %w", err)
		}
		client = im.ssrfGuard.NewSafeClient(im.timeout, im.maxBodySize)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("User-Agent", "amiot/1.0")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected feed status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, im.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}
	return im.Parse(body)
}

// Parse はRSS/Atom文書をシード記事に変換する。タイトルのない記事は除外する。
func (im *Importer) Parse(body []byte) ([]model.FeedItem, error) {
	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	now := im.now()
	items := make([]model.FeedItem, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		if it == nil || strings.TrimSpace(it.Title) == "" {
			continue
		}

		summary := PlainText(it.Description)
		body := PlainText(it.Content)
		if summary == "" {
			summary = body
		}

		label := LabelOlderWeeks
		if it.PublishedParsed != nil {
			label = LabelFor(*it.PublishedParsed, now)
		} else if it.UpdatedParsed != nil {
			label = LabelFor(*it.UpdatedParsed, now)
		}

		category := DefaultCategory
		if len(it.Categories) > 0 && strings.TrimSpace(it.Categories[0]) != "" {
			category = strings.TrimSpace(it.Categories[0])
		}

		key := it.GUID
		if key == "" {
			key = it.Link
		}
		if key == "" {
			key = it.Title
		}

		items = append(items, model.FeedItem{
			ID:             SeedID(key),
			Title:          strings.TrimSpace(it.Title),
			Summary:        summary,
			Body:           body,
			PublishedLabel: label,
			Category:       category,
		})
	}
	return items, nil
}

// PlainText はHTML断片からテキストのみを取り出し、空白を1つにまとめる。
func PlainText(fragment string) string {
	if fragment == "" {
		return ""
	}

	var sb strings.Builder
	tokenizer := html.NewTokenizer(bytes.NewReader([]byte(fragment)))
	skip := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script", "style":
				skip++
			case "br", "p", "div", "li":
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "p", "div", "li":
				sb.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			sb.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				sb.Write(tokenizer.Text())
			}
		}
	}
}
