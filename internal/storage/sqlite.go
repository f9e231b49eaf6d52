package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voicechat/internal/chat"

	_ "modernc.org/sqlite"
)

// SQLiteStore 基于 SQLite (WAL 模式) 的持久化实现
// SQLiteStore implements Store using SQLite with WAL mode
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore 创建并初始化 SQLite 数据库
// NewSQLiteStore creates and initializes a SQLite database
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// 单连接避免 WAL 下的写锁竞争 / one connection avoids writer contention under WAL
	db.SetMaxOpenConns(1)

	// 启用 WAL 模式和优化 PRAGMA / Enable WAL and performance PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chats (
		id         TEXT PRIMARY KEY,
		thread_id  TEXT NOT NULL UNIQUE,
		title      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		thread_id  TEXT NOT NULL REFERENCES chats(thread_id) ON DELETE CASCADE,
		seq        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL DEFAULT '',
		kwargs     TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		UNIQUE(thread_id, seq)
	);

	CREATE TABLE IF NOT EXISTS files (
		name       TEXT PRIMARY KEY,
		original   TEXT NOT NULL DEFAULT '',
		mime_type  TEXT NOT NULL DEFAULT '',
		size       INTEGER NOT NULL DEFAULT 0,
		path       TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close 关闭数据库连接 / Close the database connection
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- Chat Operations ---

func (s *SQLiteStore) CreateChat(ctx context.Context, title string) (Chat, error) {
	now := time.Now().UTC()
	c := Chat{
		ID:        NewID("chat"),
		ThreadID:  NewID("thread"),
		Title:     strings.TrimSpace(title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, thread_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.ThreadID, c.Title, formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return Chat{}, fmt.Errorf("insert chat: %w", err)
	}
	return c, nil
}

// ListChats 按创建时间倒序 / ListChats returns chats newest first
func (s *SQLiteStore) ListChats(ctx context.Context) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, title, created_at, updated_at
		FROM chats ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

func (s *SQLiteStore) ChatByThread(ctx context.Context, threadID string) (Chat, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return Chat{}, fmt.Errorf("thread id is empty")
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, title, created_at, updated_at
		FROM chats WHERE thread_id=?`, threadID)
	c, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Chat{}, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
		}
		return Chat{}, fmt.Errorf("load chat: %w", err)
	}
	return c, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(row scanner) (Chat, error) {
	var c Chat
	var created, updated string
	if err := row.Scan(&c.ID, &c.ThreadID, &c.Title, &created, &updated); err != nil {
		return Chat{}, err
	}
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return c, nil
}

// --- Message Operations ---

func (s *SQLiteStore) AppendMessages(ctx context.Context, threadID string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// 先更新 chat 时间戳，同时确认线程存在 / Touch the chat first, which also checks the thread exists
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, "UPDATE chats SET updated_at=? WHERE thread_id=?", formatTime(now), threadID)
	if err != nil {
		return fmt.Errorf("update chat timestamp: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), -1) + 1 FROM messages WHERE thread_id=?", threadID).Scan(&next); err != nil {
		return fmt.Errorf("next seq: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (thread_id, seq, role, content, kwargs, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, msg := range msgs {
		kwargs := "{}"
		if len(msg.Kwargs) > 0 {
			data, err := json.Marshal(msg.Kwargs)
			if err != nil {
				return fmt.Errorf("marshal kwargs %d: %w", i, err)
			}
			kwargs = string(data)
		}
		created := msg.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx, threadID, next+i, string(msg.Role), msg.Content, kwargs, formatTime(created)); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Messages(ctx context.Context, threadID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, role, content, kwargs, created_at
		FROM messages WHERE thread_id=? ORDER BY seq`, threadID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var role, kwargs, created string
		if err := rows.Scan(&msg.Seq, &role, &msg.Content, &kwargs, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = chat.Role(role)
		msg.CreatedAt = parseTime(created)
		if kwargs != "" && kwargs != "{}" {
			if err := json.Unmarshal([]byte(kwargs), &msg.Kwargs); err != nil {
				return nil, fmt.Errorf("decode kwargs of message %d: %w", msg.Seq, err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// --- File Operations ---

func (s *SQLiteStore) SaveFile(ctx context.Context, f File) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (name, original, mime_type, size, path, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.Name, f.Original, f.MimeType, f.Size, f.Path, formatTime(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (s *SQLiteStore) File(ctx context.Context, name string) (File, error) {
	var f File
	var created string
	err := s.db.QueryRowContext(ctx, `
		SELECT name, original, mime_type, size, path, created_at FROM files WHERE name=?`, name).
		Scan(&f.Name, &f.Original, &f.MimeType, &f.Size, &f.Path, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return File{}, fmt.Errorf("file %s: %w", name, ErrNotFound)
		}
		return File{}, fmt.Errorf("load file: %w", err)
	}
	f.CreatedAt = parseTime(created)
	return f, nil
}

// --- Helpers ---

// timeLayout 定宽，字符串顺序即时间顺序 / fixed width so string order is time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Path 数据库文件路径 / Path is the database file path
func (s *SQLiteStore) Path() string { return s.path }
