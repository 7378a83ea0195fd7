package app

import (
	"fmt"
	"strconv"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はプロバイダーAPIサーバーを起動する。
	CommandServe Command = "serve"
	// CommandWorker は期限切れデータの定期削除を行うワーカーを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを操作する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandShell はヘッドレスのクライアントシェルを起動する。
	CommandShell Command = "shell"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
	string(CommandShell):       CommandShell,
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}

// MigrateAction はmigrateサブコマンドの操作。
type MigrateAction struct {
	Name  string // "up" | "down" | "version"
	Steps int    // downで戻す件数
}

// ParseMigrateArgs はmigrateに続く引数を解析する。
// 引数なしは "up"、"down" の件数省略時は1件とする。
func ParseMigrateArgs(args []string) (MigrateAction, error) {
	if len(args) == 0 {
		return MigrateAction{Name: "up"}, nil
	}

	switch args[0] {
	case "up", "version":
		if len(args) > 1 {
			return MigrateAction{}, fmt.Errorf("migrate %s takes no arguments", args[0])
		}
		return MigrateAction{Name: args[0]}, nil
	case "down":
		action := MigrateAction{Name: "down", Steps: 1}
		if len(args) > 2 {
			return MigrateAction{}, fmt.Errorf("migrate down takes at most one argument")
		}
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return MigrateAction{}, fmt.Errorf("invalid migrate down steps %q", args[1])
			}
			action.Steps = n
		}
		return action, nil
	default:
		return MigrateAction{}, fmt.Errorf("unknown migrate action %q", args[0])
	}
}
