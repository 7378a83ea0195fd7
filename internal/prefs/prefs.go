// Package prefs は端末ローカルのキー・バリュー型設定ストアを提供する。
//
// 名前空間（例: auth_prefs, news_prefs）ごとにフラットな文字列キーの
// マップを持ち、SQLiteファイルに永続化するためプロセス再起動後も値が残る。
// 複数キーの同時更新はEditで1トランザクションとして適用される。
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/amiot/internal/event"
	_ "modernc.org/sqlite"
)

// DB は設定ストアのSQLite接続を保持する。
type DB struct {
	conn *sql.DB

	mu         sync.Mutex
	namespaces map[string]*Store
}

// Open はpathのSQLiteデータベースを開き、スキーマを作成する。
// テストでは":memory:"を指定できる。
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open preference database: %w", err)
	}
	// 書き込みの直列化と:memory:の共有のため接続は1本に限定する
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set wal mode: %w", err)
	}

	db := &DB{conn: conn, namespaces: make(map[string]*Store)}
	if err := db.createSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create preference schema: %w", err)
	}
	return db, nil
}

func (db *DB) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS preferences (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (namespace, key)
	);
	CREATE TABLE IF NOT EXISTS preference_set_members (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		position INTEGER NOT NULL,
		member TEXT NOT NULL,
		PRIMARY KEY (namespace, key, member)
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Namespace は指定名の名前空間を返す。
// 同じ名前に対しては常に同じStoreを返すため、変更通知は呼び出し元をまたいで共有される。
func (db *DB) Namespace(name string) *Store {
	db.mu.Lock()
	defer db.mu.Unlock()

	if s, ok := db.namespaces[name]; ok {
		return s
	}
	s := &Store{
		db:        db,
		namespace: name,
		scalars:   make(map[string]*event.Source[Value]),
		sets:      make(map[string]*event.Source[[]string]),
	}
	db.namespaces[name] = s
	return s
}

// Close は全ての監視を終了し、接続を閉じる。
func (db *DB) Close() error {
	db.mu.Lock()
	for _, s := range db.namespaces {
		s.closeWatchers()
	}
	db.mu.Unlock()
	return db.conn.Close()
}

// Value はObserveで配信される値。Presentがfalseの場合はキーが存在しない。
type Value struct {
	String  string
	Present bool
}

// Store は1つの名前空間に対する設定ストア。
type Store struct {
	db        *DB
	namespace string

	// watchMu は「コミット→通知」と「購読→初期値読み出し」を直列化する
	watchMu sync.Mutex
	scalars map[string]*event.Source[Value]
	sets    map[string]*event.Source[[]string]
}

// Name は名前空間名を返す。
func (s *Store) Name() string {
	return s.namespace
}

// Get はキーの値を返す。キーが存在しない場合はokがfalseとなる。
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE namespace = ? AND key = ?`,
		s.namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read preference %s/%s: %w", s.namespace, key, err)
	}
	return value, true, nil
}

// Set はキーに値を書き込む。
func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.Edit(ctx, func(b *Batch) {
		b.Set(key, value)
	})
}

// queryer は*sql.DBと*sql.Txの共通部分。
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// GetStringSet は文字列セットの要素を追加順で返す。未設定の場合は空。
func (s *Store) GetStringSet(ctx context.Context, key string) ([]string, error) {
	return s.readStringSet(ctx, s.db.conn, key)
}

func (s *Store) readStringSet(ctx context.Context, q queryer, key string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT member FROM preference_set_members
		 WHERE namespace = ? AND key = ?
		 ORDER BY position`,
		s.namespace, key,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read preference set %s/%s: %w", s.namespace, key, err)
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("failed to scan preference set member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate preference set: %w", err)
	}
	return members, nil
}

// UpdateStringSet は文字列セットの現在値をfnで変換して書き戻す。
// 読み出しと書き込みは1トランザクションで行われ、同じ名前空間の他の更新と直列化される。
// fnがエラーを返した場合は何も書き込まない。
func (s *Store) UpdateStringSet(ctx context.Context, key string, fn func(members []string) ([]string, error)) error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin preference transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := s.readStringSet(ctx, tx, key)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}

	b := &Batch{}
	b.SetStringSet(key, next)
	if err := s.apply(ctx, tx, b.ops[0]); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit preference transaction: %w", err)
	}
	s.notify(b.ops[0])
	return nil
}

// Edit はfnで組み立てた変更を1トランザクションで適用し、
// コミット後に該当キーの監視者へ通知する。
func (s *Store) Edit(ctx context.Context, fn func(b *Batch)) error {
	b := &Batch{}
	fn(b)
	if len(b.ops) == 0 {
		return nil
	}

	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin preference transaction: %w", err)
	}
	defer tx.Rollback()

	for _, o := range b.ops {
		if err := s.apply(ctx, tx, o); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit preference transaction: %w", err)
	}

	for _, o := range b.ops {
		s.notify(o)
	}
	return nil
}

func (s *Store) apply(ctx context.Context, tx *sql.Tx, o op) error {
	switch o.kind {
	case opSet:
		_, err := tx.ExecContext(ctx,
			`INSERT INTO preferences (namespace, key, value) VALUES (?, ?, ?)
			 ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value`,
			s.namespace, o.key, o.value,
		)
		if err != nil {
			return fmt.Errorf("failed to write preference %s/%s: %w", s.namespace, o.key, err)
		}
	case opRemove:
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM preferences WHERE namespace = ? AND key = ?`,
			s.namespace, o.key,
		); err != nil {
			return fmt.Errorf("failed to remove preference %s/%s: %w", s.namespace, o.key, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM preference_set_members WHERE namespace = ? AND key = ?`,
			s.namespace, o.key,
		); err != nil {
			return fmt.Errorf("failed to remove preference set %s/%s: %w", s.namespace, o.key, err)
		}
	case opSetStringSet:
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM preference_set_members WHERE namespace = ? AND key = ?`,
			s.namespace, o.key,
		); err != nil {
			return fmt.Errorf("failed to clear preference set %s/%s: %w", s.namespace, o.key, err)
		}
		for i, m := range o.members {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO preference_set_members (namespace, key, position, member)
				 VALUES (?, ?, ?, ?)`,
				s.namespace, o.key, i, m,
			); err != nil {
				return fmt.Errorf("failed to write preference set %s/%s: %w", s.namespace, o.key, err)
			}
		}
	}
	return nil
}

// Observe はキーの現在値と、以後の変更を配信する購読を返す。
func (s *Store) Observe(key string) *event.Subscription[Value] {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	v, ok, err := s.Get(context.Background(), key)
	if err != nil {
		slog.Warn("failed to read preference for observer",
			slog.String("namespace", s.namespace),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	return s.scalarSource(key).SubscribeWith(Value{String: v, Present: ok})
}

// ObserveStringSet は文字列セットの現在値と、以後の変更を配信する購読を返す。
func (s *Store) ObserveStringSet(key string) *event.Subscription[[]string] {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	members, err := s.GetStringSet(context.Background(), key)
	if err != nil {
		slog.Warn("failed to read preference set for observer",
			slog.String("namespace", s.namespace),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		members = []string{}
	}
	return s.setSource(key).SubscribeWith(members)
}

func (s *Store) notify(o op) {
	switch o.kind {
	case opSet:
		if src, ok := s.scalars[o.key]; ok {
			src.Publish(Value{String: o.value, Present: true})
		}
	case opRemove:
		if src, ok := s.scalars[o.key]; ok {
			src.Publish(Value{})
		}
		if src, ok := s.sets[o.key]; ok {
			src.Publish([]string{})
		}
	case opSetStringSet:
		if src, ok := s.sets[o.key]; ok {
			members := make([]string, len(o.members))
			copy(members, o.members)
			src.Publish(members)
		}
	}
}

// scalarSource と setSource はwatchMuを保持した状態で呼ぶこと。
func (s *Store) scalarSource(key string) *event.Source[Value] {
	src, ok := s.scalars[key]
	if !ok {
		src = event.NewSource[Value]()
		s.scalars[key] = src
	}
	return src
}

func (s *Store) setSource(key string) *event.Source[[]string] {
	src, ok := s.sets[key]
	if !ok {
		src = event.NewSource[[]string]()
		s.sets[key] = src
	}
	return src
}

func (s *Store) closeWatchers() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, src := range s.scalars {
		src.Close()
	}
	for _, src := range s.sets {
		src.Close()
	}
}
