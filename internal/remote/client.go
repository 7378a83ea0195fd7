// Package remote はプロバイダーAPIへのHTTP JSONクライアントを提供する。
//
// 認証済みリクエストにはベアラートークンを付与し、エラー応答は
// model.APIErrorとして呼び出し元に返す。
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/hitoshi/amiot/internal/model"
)

// maxErrorBodySize はエラー応答として読み取る本文の上限。
const maxErrorBodySize = 64 * 1024

// Client はプロバイダーAPIのクライアント。
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu             sync.RWMutex
	tokenSource    func() string
	onUnauthorized func()
}

// NewClient はbaseURLに対するClientを生成する。
// httpClientがnilの場合はタイムアウトなしのクライアントを使用する。
// ライブクエリのストリームは長時間接続を保つため、全体タイムアウトは設定しない。
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// SetTokenSource はリクエストに付与するトークンの取得関数を設定する。
func (c *Client) SetTokenSource(fn func() string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenSource = fn
}

// OnUnauthorized はセッションが無効と判定された応答を受けた際に呼ばれる関数を設定する。
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

// Do はJSONリクエストを送信し、成功応答をoutにデコードする。
// inがnilの場合は本文なし、outがnilの場合は応答本文を読み捨てる。
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return c.decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response of %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) token() string {
	c.mu.RLock()
	fn := c.tokenSource
	c.mu.RUnlock()
	if fn == nil {
		return ""
	}
	return fn()
}

// decodeError はエラー応答をmodel.APIErrorに変換する。
// 統一フォーマットでない応答はHTTPステータスからエラーを組み立てる。
func (c *Client) decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	apiErr := &model.APIError{}
	if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Code == "" {
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		apiErr = &model.APIError{
			Code:     fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:  msg,
			Category: "system",
		}
	}

	if apiErr.Code == model.ErrCodeUnauthorized {
		c.mu.RLock()
		hook := c.onUnauthorized
		c.mu.RUnlock()
		if hook != nil {
			hook()
		}
	}
	return apiErr
}
