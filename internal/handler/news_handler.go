package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/amiot/internal/event"
	"github.com/hitoshi/amiot/internal/middleware"
	"github.com/hitoshi/amiot/internal/model"
)

// NewsServiceInterface はニュースハンドラーが必要とするサービスインターフェース。
type NewsServiceInterface interface {
	Add(ctx context.Context, ownerID string, draft model.NewsDraft) (*model.FeedItem, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.FeedItem, error)
	ListAll(ctx context.Context) ([]model.FeedItem, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// Watcher はユーザーごとの変更通知を提供する。
type Watcher interface {
	Watch(ownerID string) *event.Subscription[struct{}]
}

// NewsRecorder はニュース操作のメトリクスの記録先。
type NewsRecorder interface {
	RecordNewsWrite(operation string)
	WatcherConnected()
	WatcherDisconnected()
}

// defaultHeartbeatInterval はライブクエリの接続維持コメントの送信間隔。
const defaultHeartbeatInterval = 25 * time.Second

// NewsHandler はnewsコレクションのHTTPハンドラー。
type NewsHandler struct {
	service   NewsServiceInterface
	watcher   Watcher
	recorder  NewsRecorder
	heartbeat time.Duration
}

// NewNewsHandler はNewsHandlerを生成する。recorderがnilの場合は記録しない。
func NewNewsHandler(service NewsServiceInterface, watcher Watcher, recorder NewsRecorder) *NewsHandler {
	if recorder == nil {
		recorder = nopMetrics{}
	}
	return &NewsHandler{
		service:   service,
		watcher:   watcher,
		recorder:  recorder,
		heartbeat: defaultHeartbeatInterval,
	}
}

// createNewsRequest はニュース作成リクエストのボディ。
// userIdはセッションのユーザーと一致しなければならない。
type createNewsRequest struct {
	model.NewsDraft
	UserID string `json:"userId"`
}

type newsListResponse struct {
	Items []model.FeedItem `json:"items"`
}

// List はニュース一覧を返す。ownerを指定した場合はそのユーザーの分のみ返す。
// GET /api/news[?owner=ID]
func (h *NewsHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		items []model.FeedItem
		err   error
	)
	if owner := r.URL.Query().Get("owner"); owner != "" {
		items, err = h.service.ListByOwner(r.Context(), owner)
	} else {
		items, err = h.service.ListAll(r.Context())
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if items == nil {
		items = []model.FeedItem{}
	}

	writeJSON(w, http.StatusOK, newsListResponse{Items: items})
}

// Create はセッションユーザーのニュースを作成する。
// POST /api/news
func (h *NewsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createNewsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID != "" && req.UserID != userID {
		middleware.WriteAPIError(w, model.NewForbiddenError())
		return
	}

	item, err := h.service.Add(r.Context(), userID, req.NewsDraft)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.recorder.RecordNewsWrite("add")
	writeJSON(w, http.StatusCreated, item)
}

// Delete はセッションユーザーのニュースを削除する。存在しないIDでも204を返す。
// DELETE /api/news/{id}
func (h *NewsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	h.recorder.RecordNewsWrite("delete")
	w.WriteHeader(http.StatusNoContent)
}

// Watch はセッションユーザーのニュース一覧をServer-Sent Eventsで配信する。
// 接続直後と変更の度に「snapshot」イベントで一覧全体を送り、
// 読み出しに失敗した場合は「error」イベントを送る。
// GET /api/news/watch[?owner=ID]
func (h *NewsHandler) Watch(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		owner = userID
	}
	if owner != userID {
		middleware.WriteAPIError(w, model.NewForbiddenError())
		return
	}

	rc := http.NewResponseController(w)
	// ストリームはサーバーの書き込みタイムアウトの対象外にする
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		slog.Error("streaming not supported", slog.String("error", err.Error()))
		return
	}

	sub := h.watcher.Watch(owner)
	defer sub.Close()
	h.recorder.WatcherConnected()
	defer h.recorder.WatcherDisconnected()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.C():
			if !ok {
				return
			}
			if err := h.sendSnapshot(ctx, w, owner); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// sendSnapshot は最新の一覧を1イベントとして書き込む。
// 一覧の取得に失敗した場合はerrorイベントを書き込み、ストリームは維持する。
func (h *NewsHandler) sendSnapshot(ctx context.Context, w http.ResponseWriter, owner string) error {
	items, err := h.service.ListByOwner(ctx, owner)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("failed to load snapshot",
			slog.String("user_id", owner),
			slog.String("error", err.Error()),
		)
		return writeEvent(w, "error", model.NewInternalError())
	}
	if items == nil {
		items = []model.FeedItem{}
	}
	return writeEvent(w, "snapshot", items)
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", name, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
