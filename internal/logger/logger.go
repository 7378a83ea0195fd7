// Package logger はJSON構造化ログの初期化を提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
)

// level は全ロガーで共有する出力レベル。起動後にSetLevelで変更できる。
var level = new(slog.LevelVar)

// SetLevel は出力レベルを変更する。Setup済みのロガーにも反映される。
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Level は現在の出力レベルを返す。
func Level() slog.Level {
	return level.Level()
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// wがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w))
}
