package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hitoshi/amiot/internal/account"
	"github.com/hitoshi/amiot/internal/config"
	"github.com/hitoshi/amiot/internal/feed"
	"github.com/hitoshi/amiot/internal/logger"
	"github.com/hitoshi/amiot/internal/model"
	"github.com/hitoshi/amiot/internal/newsstore"
	"github.com/hitoshi/amiot/internal/prefs"
	"github.com/hitoshi/amiot/internal/remote"
	"github.com/hitoshi/amiot/internal/security"
	"github.com/hitoshi/amiot/internal/viewmodel"
)

const shellHelp = `commands:
  register <email> <password>
  login <email> <password>
  logout
  reset <email>
  add <category>|<title>|<summary>|<body>[|<label>]
  delete <id>
  mine     自分の投稿
  feed     投稿とシード記事を結合したフィード
  all      全ユーザーの投稿
  status
  help
  quit
`

// RunShell はクライアント設定を読み込み、inから1行ずつコマンドを読んでビューモデルを操作する。
// 結果はoutに、ログはlogWに出力する。
func RunShell(ctx context.Context, in io.Reader, out, logW io.Writer) error {
	logger.SetupDefault(logW)

	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("failed to load client config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	db, err := prefs.Open(cfg.PrefsPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, repo, err := buildClient(ctx, cfg, db, slog.Default())
	if err != nil {
		return err
	}
	if closer, ok := client.(interface{ Close() }); ok {
		defer closer.Close()
	}

	seed := loadSeed(ctx, cfg.SeedSource, slog.Default())

	authVM := viewmodel.NewAuthViewModel(client)
	defer authVM.Close()
	newsVM := viewmodel.NewNewsViewModel(repo, client.CurrentSession(), seed, slog.Default())
	defer newsVM.Close()

	sh := &Shell{auth: authVM, news: newsVM, out: out}
	return sh.Run(ctx, in)
}

// buildClient はモードに応じて認証クライアントとニュースの保存先を組み立てる。
// リモートモードでは保存済みセッションを復元し、トークンの定期更新を開始する。
func buildClient(ctx context.Context, cfg *config.ClientConfig, db *prefs.DB, log *slog.Logger) (account.Client, newsstore.Repository, error) {
	authPrefs := db.Namespace(account.Namespace)

	if cfg.Mode == config.ModeLocal {
		client, err := account.NewLocalClient(ctx, authPrefs, log)
		if err != nil {
			return nil, nil, err
		}
		store := newsstore.NewLocalStore(db.Namespace(newsstore.Namespace))
		return client, newsstore.NewLocalRepository(store, log), nil
	}

	api := remote.NewClient(cfg.APIURL, nil)
	client := account.NewRemoteClient(api, authPrefs, log)
	if err := client.Restore(ctx); err != nil {
		log.Warn("could not verify saved session, continuing offline",
			slog.String("api_url", cfg.APIURL),
			slog.String("error", err.Error()),
		)
	}
	go client.RunRefresh(ctx, cfg.RefreshInterval)

	return client, newsstore.NewRemoteClient(api, log), nil
}

// loadSeed はsourceからシード記事を読み込む。sourceが空または読み込みに失敗した場合は組み込みのシードを返す。
func loadSeed(ctx context.Context, source string, log *slog.Logger) []model.FeedItem {
	if source == "" {
		return feed.DefaultSeed()
	}
	items, err := feed.NewImporter(security.NewSSRFGuard()).Import(ctx, source)
	if err != nil {
		log.Warn("failed to import seed, using built-in seed",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		return feed.DefaultSeed()
	}
	log.Info("seed imported", slog.String("source", source), slog.Int("items_count", len(items)))
	return items
}

// Shell は行単位のコマンドでビューモデルを操作するヘッドレスクライアント。
type Shell struct {
	auth *viewmodel.AuthViewModel
	news *viewmodel.NewsViewModel
	out  io.Writer
}

// Run はinが終わるか「quit」を読むまでコマンドを実行する。
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !s.Exec(ctx, line) {
			return nil
		}
	}
	return scanner.Err()
}

// Exec は1行のコマンドを実行する。終了コマンドの場合はfalseを返す。
func (s *Shell) Exec(ctx context.Context, line string) bool {
	name, rest, _ := strings.Cut(line, " ")
	args := strings.Fields(rest)

	switch name {
	case "register":
		if len(args) != 2 {
			s.usage(name)
			return true
		}
		s.auth.Register(ctx, args[0], args[1], nil)
		s.reportAuth()
	case "login":
		if len(args) != 2 {
			s.usage(name)
			return true
		}
		s.auth.Login(ctx, args[0], args[1], nil)
		s.reportAuth()
	case "logout":
		s.auth.Logout(ctx)
		s.reportAuth()
	case "reset":
		email := ""
		if len(args) > 0 {
			email = args[0]
		}
		s.auth.ResetPassword(ctx, email, nil)
		s.reportAuth()
	case "add":
		parts := strings.Split(rest, "|")
		for len(parts) < 5 {
			parts = append(parts, "")
		}
		category, title, summary, body, label := parts[0], parts[1], parts[2], parts[3], parts[4]
		s.news.AddItem(ctx, strings.TrimSpace(title), strings.TrimSpace(summary),
			strings.TrimSpace(body), strings.TrimSpace(category), strings.TrimSpace(label), nil)
		s.reportNews()
	case "delete":
		if len(args) != 1 {
			s.usage(name)
			return true
		}
		s.news.DeleteItem(ctx, args[0], nil)
		s.reportNews()
	case "mine":
		s.printItems(s.news.UserNews().Value())
	case "feed":
		s.printItems(s.news.Feed().Value())
	case "all":
		s.printItems(s.news.ListAll(ctx))
	case "status":
		st := s.auth.Session().Value()
		if st.IsAuthenticated {
			fmt.Fprintf(s.out, "signed in as %s (%s)\n", st.Email, st.UserID)
		} else {
			fmt.Fprintln(s.out, "signed out")
		}
	case "help":
		fmt.Fprint(s.out, shellHelp)
	case "quit", "exit":
		return false
	default:
		fmt.Fprintf(s.out, "unknown command: %s\n", name)
	}
	return true
}

func (s *Shell) usage(name string) {
	fmt.Fprintf(s.out, "invalid arguments for %s\n", name)
}

func (s *Shell) reportAuth() {
	ui := s.auth.UiState().Value()
	if ui.ErrorMessage != "" {
		fmt.Fprintf(s.out, "error: %s\n", ui.ErrorMessage)
		s.auth.ClearError()
		return
	}
	fmt.Fprintln(s.out, "ok")
}

func (s *Shell) reportNews() {
	ui := s.news.UiState().Value()
	if ui.ErrorMessage != "" {
		fmt.Fprintf(s.out, "error: %s\n", ui.ErrorMessage)
		s.news.ClearError()
		return
	}
	fmt.Fprintln(s.out, "ok")
}

func (s *Shell) printItems(items []model.FeedItem) {
	for _, it := range items {
		fmt.Fprintf(s.out, "%s\t%s\t%s\t%s\n", it.ID, it.PublishedLabel, it.Category, it.Title)
	}
	fmt.Fprintf(s.out, "(%d items)\n", len(items))
}
