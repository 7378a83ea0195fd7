package viewmodel

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/hitoshi/amiot/internal/event"
	"github.com/hitoshi/amiot/internal/feed"
	"github.com/hitoshi/amiot/internal/model"
	"github.com/hitoshi/amiot/internal/newsstore"
)

// NewsViewModel はニュース画面の状態を保持する。
// サインイン中のユーザーの投稿をライブクエリで購読し、シード記事と結合したフィードを発行する。
type NewsViewModel struct {
	repo    newsstore.Repository
	session *event.State[model.SessionState]
	seed    []model.FeedItem
	logger  *slog.Logger

	ui       *event.State[model.NewsUiState]
	userNews *event.State[[]model.FeedItem]
	merged   *event.State[[]model.FeedItem]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	owner       string
	watchCancel context.CancelFunc
}

// NewNewsViewModel はNewsViewModelを生成し、sessionの所有者に合わせて購読を開始する。
// 不要になったらCloseを呼ぶこと。
func NewNewsViewModel(repo newsstore.Repository, session *event.State[model.SessionState], seed []model.FeedItem, logger *slog.Logger) *NewsViewModel {
	ctx, cancel := context.WithCancel(context.Background())
	vm := &NewsViewModel{
		repo:     repo,
		session:  session,
		seed:     slices.Clone(seed),
		logger:   logger,
		ui:       event.NewState(model.NewsUiState{}),
		userNews: event.NewState([]model.FeedItem{}),
		merged:   event.NewState(feed.Merge(nil, seed)),
		ctx:      ctx,
		cancel:   cancel,
	}

	sub := session.Subscribe()
	vm.wg.Add(1)
	go func() {
		defer vm.wg.Done()
		event.Forward(ctx, sub, vm.follow)
	}()
	return vm
}

// UiState は画面状態を返す。
func (vm *NewsViewModel) UiState() *event.State[model.NewsUiState] {
	return vm.ui
}

// UserNews はサインイン中のユーザーの投稿一覧を返す。
func (vm *NewsViewModel) UserNews() *event.State[[]model.FeedItem] {
	return vm.userNews
}

// Feed はユーザー投稿とシード記事を結合したフィードを返す。
func (vm *NewsViewModel) Feed() *event.State[[]model.FeedItem] {
	return vm.merged
}

// AddItem はニュースを追加し、成功時にonSuccessを呼ぶ。
// labelが空の場合は「Hace unos momentos」を使う。
func (vm *NewsViewModel) AddItem(ctx context.Context, title, summary, body, category, label string, onSuccess func()) {
	vm.pending()

	if isBlank(title) || isBlank(summary) || isBlank(body) || isBlank(category) {
		vm.fail(MsgFieldsRequired)
		return
	}

	s := vm.session.Value()
	if !s.IsAuthenticated || s.UserID == "" {
		vm.fail(MsgAuthRequired)
		return
	}

	if isBlank(label) {
		label = feed.LabelJustNow
	}
	draft := model.NewsDraft{
		Title:          title,
		Summary:        summary,
		Body:           body,
		Category:       category,
		PublishedLabel: label,
	}
	if err := vm.repo.AddItem(ctx, s.UserID, draft); err != nil {
		vm.fail(errorMessage(err, MsgAddFailed))
		return
	}
	vm.succeed()
	done(onSuccess)
}

// DeleteItem はニュースを削除し、成功時にonSuccessを呼ぶ。
func (vm *NewsViewModel) DeleteItem(ctx context.Context, id string, onSuccess func()) {
	vm.pending()

	if err := vm.repo.DeleteItem(ctx, id); err != nil {
		vm.fail(errorMessage(err, MsgDeleteFailed))
		return
	}
	vm.succeed()
	done(onSuccess)
}

// ListAll は全ユーザーのニュースを返す。取得に失敗した場合は空のリストとなる。
func (vm *NewsViewModel) ListAll(ctx context.Context) []model.FeedItem {
	return vm.repo.ListAll(ctx)
}

// ClearError はエラーメッセージを消去する。
func (vm *NewsViewModel) ClearError() {
	vm.ui.Update(func(u model.NewsUiState) model.NewsUiState {
		u.ErrorMessage = ""
		return u
	})
}

// Close はライブクエリの購読を終了し、各状態の購読者を閉じる。
func (vm *NewsViewModel) Close() {
	vm.cancel()
	vm.wg.Wait()
	vm.ui.Close()
	vm.userNews.Close()
	vm.merged.Close()
}

// follow は認証状態の変化に合わせてライブクエリを張り替える。
func (vm *NewsViewModel) follow(s model.SessionState) {
	owner := ""
	if s.IsAuthenticated {
		owner = s.UserID
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()

	if owner == vm.owner {
		return
	}
	if vm.watchCancel != nil {
		vm.watchCancel()
		vm.watchCancel = nil
	}
	vm.owner = owner

	if owner == "" {
		vm.publish([]model.FeedItem{})
		return
	}

	watchCtx, watchCancel := context.WithCancel(vm.ctx)
	vm.watchCancel = watchCancel
	sub := vm.repo.Subscribe(watchCtx, owner)

	vm.wg.Add(1)
	go func() {
		defer vm.wg.Done()
		event.Forward(watchCtx, sub, func(items []model.FeedItem) {
			vm.mu.Lock()
			defer vm.mu.Unlock()
			if vm.owner != owner || watchCtx.Err() != nil {
				return
			}
			vm.publish(items)
		})
	}()
}

// publish はユーザー投稿を更新し、結合済みフィードを再計算する。vm.muを保持して呼ぶこと。
func (vm *NewsViewModel) publish(items []model.FeedItem) {
	vm.userNews.Set(items)
	vm.merged.Set(feed.Merge(items, vm.seed))
}

func (vm *NewsViewModel) pending() {
	vm.ui.Set(model.NewsUiState{IsLoading: true})
}

func (vm *NewsViewModel) succeed() {
	vm.ui.Set(model.NewsUiState{})
}

func (vm *NewsViewModel) fail(msg string) {
	vm.logger.Debug("news flow failed", slog.String("message", msg))
	vm.ui.Set(model.NewsUiState{ErrorMessage: msg})
}
