package model

// AuthUiState は認証画面向けの状態を表す。
// ErrorMessageが空文字列の場合はエラーなし。
type AuthUiState struct {
	IsLoading    bool
	ErrorMessage string
	IsLoggedIn   bool
}

// NewsUiState はニュース投稿画面向けの状態を表す。
type NewsUiState struct {
	IsLoading    bool
	ErrorMessage string
}
