package newsstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/amiot/internal/event"
	"github.com/hitoshi/amiot/internal/model"
	"github.com/hitoshi/amiot/internal/remote"
)

// コンパイル時にインターフェースの実装を検証する。
var _ Repository = (*RemoteClient)(nil)

// createRequest はニュース追加APIのリクエストボディ。
type createRequest struct {
	model.NewsDraft
	UserID string `json:"userId"`
}

// listResponse はニュース一覧APIのレスポンスボディ。
type listResponse struct {
	Items []model.FeedItem `json:"items"`
}

// RemoteClient はプロバイダーのnewsコレクションを操作するクライアント。
// 認証トークンはremote.Clientに設定されたものが使われる。
type RemoteClient struct {
	api    *remote.Client
	logger *slog.Logger
}

// NewRemoteClient はRemoteClientを生成する。
func NewRemoteClient(api *remote.Client, logger *slog.Logger) *RemoteClient {
	return &RemoteClient{api: api, logger: logger}
}

// AddItem はニュースを追加する。
func (c *RemoteClient) AddItem(ctx context.Context, ownerID string, draft model.NewsDraft) error {
	return c.api.Do(ctx, http.MethodPost, "/api/news", createRequest{NewsDraft: draft, UserID: ownerID}, nil)
}

// ListAllForOwner はownerIDのニュースを返す。
func (c *RemoteClient) ListAllForOwner(ctx context.Context, ownerID string) []model.FeedItem {
	return c.list(ctx, "/api/news?owner="+url.QueryEscape(ownerID))
}

// ListAll は全ユーザーのニュースを返す。
func (c *RemoteClient) ListAll(ctx context.Context) []model.FeedItem {
	return c.list(ctx, "/api/news")
}

func (c *RemoteClient) list(ctx context.Context, path string) []model.FeedItem {
	var resp listResponse
	if err := c.api.Do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		c.logger.Warn("failed to list news, returning empty list",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return []model.FeedItem{}
	}
	if resp.Items == nil {
		return []model.FeedItem{}
	}
	return resp.Items
}

// DeleteItem はニュースを削除する。
func (c *RemoteClient) DeleteItem(ctx context.Context, id string) error {
	return c.api.Do(ctx, http.MethodDelete, "/api/news/"+url.PathEscape(id), nil, nil)
}

// Subscribe はライブクエリのストリームを購読する。
// ストリームがerrorイベントを送った場合は空のスナップショットを配信する。
// 接続が切れた場合は再接続せずに購読を終了する。
func (c *RemoteClient) Subscribe(ctx context.Context, ownerID string) *event.Subscription[[]model.FeedItem] {
	ctx, cancel := context.WithCancel(ctx)
	src := event.NewSource[[]model.FeedItem]()
	sub := src.Subscribe().OnClose(cancel)

	path := "/api/news/watch?owner=" + url.QueryEscape(ownerID)
	go func() {
		defer src.Close()
		defer cancel()

		err := c.api.Stream(ctx, path, func(ev remote.Event) {
			switch ev.Name {
			case "snapshot":
				var items []model.FeedItem
				if err := json.Unmarshal([]byte(ev.Data), &items); err != nil {
					c.logger.Warn("malformed news snapshot", slog.String("error", err.Error()))
					items = nil
				}
				if items == nil {
					items = []model.FeedItem{}
				}
				src.Publish(items)
			case "error":
				c.logger.Warn("news live query reported error", slog.String("data", ev.Data))
				src.Publish([]model.FeedItem{})
			}
		})
		if err != nil {
			c.logger.Warn("news live query ended",
				slog.String("owner_id", ownerID),
				slog.String("error", err.Error()),
			)
		}
	}()
	return sub
}
