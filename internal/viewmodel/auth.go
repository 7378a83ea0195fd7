package viewmodel

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/amiot/internal/account"
	"github.com/hitoshi/amiot/internal/event"
	"github.com/hitoshi/amiot/internal/model"
)

// AuthViewModel は認証画面の状態を保持する。
type AuthViewModel struct {
	client account.Client
	ui     *event.State[model.AuthUiState]

	cancel   context.CancelFunc
	finished chan struct{}
}

// NewAuthViewModel はAuthViewModelを生成し、認証状態の監視を開始する。
// 不要になったらCloseを呼ぶこと。
func NewAuthViewModel(client account.Client) *AuthViewModel {
	ctx, cancel := context.WithCancel(context.Background())
	vm := &AuthViewModel{
		client:   client,
		ui:       event.NewState(model.AuthUiState{IsLoggedIn: client.CurrentSession().Value().IsAuthenticated}),
		cancel:   cancel,
		finished: make(chan struct{}),
	}

	sub := client.CurrentSession().Subscribe()
	go func() {
		defer close(vm.finished)
		event.Forward(ctx, sub, func(s model.SessionState) {
			vm.ui.Update(func(u model.AuthUiState) model.AuthUiState {
				u.IsLoggedIn = s.IsAuthenticated
				return u
			})
		})
	}()
	return vm
}

// UiState は画面状態を返す。
func (vm *AuthViewModel) UiState() *event.State[model.AuthUiState] {
	return vm.ui
}

// Session は認証状態を返す。
func (vm *AuthViewModel) Session() *event.State[model.SessionState] {
	return vm.client.CurrentSession()
}

// Register はアカウントを登録し、成功時にonSuccessを呼ぶ。
func (vm *AuthViewModel) Register(ctx context.Context, email, password string, onSuccess func()) {
	vm.pending()

	if isBlank(email) || isBlank(password) {
		vm.fail(MsgCredentialsRequired)
		return
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		vm.fail(MsgPasswordTooShort)
		return
	}

	if err := vm.client.Register(ctx, email, password); err != nil {
		vm.fail(errorMessage(err, MsgRegisterFailed))
		return
	}
	vm.succeed()
	done(onSuccess)
}

// Login はサインインし、成功時にonSuccessを呼ぶ。
func (vm *AuthViewModel) Login(ctx context.Context, email, password string, onSuccess func()) {
	vm.pending()

	if isBlank(email) || isBlank(password) {
		vm.fail(MsgCredentialsRequired)
		return
	}

	ok, err := vm.client.Login(ctx, email, password)
	if err != nil {
		vm.fail(errorMessage(err, MsgLoginFailed))
		return
	}
	if !ok {
		vm.fail(MsgInvalidCredentials)
		return
	}
	vm.succeed()
	done(onSuccess)
}

// ResetPassword はパスワードリセットを要求し、成功時にonSuccessを呼ぶ。
func (vm *AuthViewModel) ResetPassword(ctx context.Context, email string, onSuccess func()) {
	vm.pending()

	if isBlank(email) {
		vm.fail(MsgEmailRequired)
		return
	}

	ok, err := vm.client.ResetPassword(ctx, email)
	if err != nil {
		vm.fail(errorMessage(err, MsgResetFailed))
		return
	}
	if !ok {
		vm.fail(MsgEmailNotFound)
		return
	}
	vm.succeed()
	done(onSuccess)
}

// Logout はサインアウトする。
func (vm *AuthViewModel) Logout(ctx context.Context) {
	vm.client.Logout(ctx)
}

// ClearError はエラーメッセージを消去する。
func (vm *AuthViewModel) ClearError() {
	vm.ui.Update(func(u model.AuthUiState) model.AuthUiState {
		u.ErrorMessage = ""
		return u
	})
}

// Close は認証状態の監視を終了し、UiStateの購読者を閉じる。
func (vm *AuthViewModel) Close() {
	vm.cancel()
	<-vm.finished
	vm.ui.Close()
}

func (vm *AuthViewModel) pending() {
	vm.ui.Update(func(u model.AuthUiState) model.AuthUiState {
		u.IsLoading = true
		u.ErrorMessage = ""
		return u
	})
}

func (vm *AuthViewModel) succeed() {
	vm.ui.Update(func(u model.AuthUiState) model.AuthUiState {
		u.IsLoading = false
		return u
	})
}

func (vm *AuthViewModel) fail(msg string) {
	vm.ui.Update(func(u model.AuthUiState) model.AuthUiState {
		u.IsLoading = false
		u.ErrorMessage = msg
		return u
	})
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
