package docstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/amiot/internal/event"
	"github.com/lib/pq"
)

// Notifier はnewsテーブルの変更通知を受け取るインターフェース。
// *pq.Listenerがこれを満たす。通知のExtraには変更されたユーザーIDが入る。
type Notifier interface {
	NotificationChannel() <-chan *pq.Notification
	Close() error
}

// Hub は変更通知をユーザーごとのライブクエリに振り分ける。
// 購読者は変更の度に合図を受け取り、自分で最新の一覧を読み直す。
type Hub struct {
	notifier Notifier
	logger   *slog.Logger

	mu      sync.Mutex
	sources map[string]*event.Source[struct{}]
}

// NewHub はHubを生成する。
func NewHub(notifier Notifier, logger *slog.Logger) *Hub {
	return &Hub{
		notifier: notifier,
		logger:   logger,
		sources:  make(map[string]*event.Source[struct{}]),
	}
}

// Watch はownerIDのニュースが変更される度に合図を配信する購読を返す。
// 最初の合図は購読直後に届く。
func (h *Hub) Watch(ownerID string) *event.Subscription[struct{}] {
	h.mu.Lock()
	defer h.mu.Unlock()

	src, ok := h.sources[ownerID]
	if !ok {
		src = event.NewSource[struct{}]()
		h.sources[ownerID] = src
	}
	return src.SubscribeWith(struct{}{}).OnClose(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.sources[ownerID] == src && src.Len() == 0 {
			delete(h.sources, ownerID)
		}
	})
}

// Run はctxが終了するまで通知を受信して配信する。
// 再接続を表すnilの通知では全購読者に合図を送る。
func (h *Hub) Run(ctx context.Context) error {
	ch := h.notifier.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case n, ok := <-ch:
			if !ok {
				h.closeAll()
				return errors.New("notification channel closed")
			}
			if n == nil {
				h.logger.Info("change notifier reconnected, waking all watchers")
				h.wakeAll()
				continue
			}
			h.wake(n.Extra)
		}
	}
}

// Close は通知の受信を停止する。
func (h *Hub) Close() error {
	return h.notifier.Close()
}

// watchers は購読中のユーザー数を返す。
func (h *Hub) watchers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sources)
}

func (h *Hub) wake(ownerID string) {
	h.mu.Lock()
	src, ok := h.sources[ownerID]
	h.mu.Unlock()
	if ok {
		src.Publish(struct{}{})
	}
}

func (h *Hub) wakeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, src := range h.sources {
		src.Publish(struct{}{})
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	sources := h.sources
	h.sources = make(map[string]*event.Source[struct{}])
	h.mu.Unlock()

	for _, src := range sources {
		src.Close()
	}
}
