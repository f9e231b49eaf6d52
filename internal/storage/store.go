package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound 记录不存在 / ErrNotFound means the record does not exist
var ErrNotFound = errors.New("not found")

// Store 开发服务器的持久化接口
// Store is the development server persistence interface
type Store interface {
	CreateChat(ctx context.Context, title string) (Chat, error)
	ListChats(ctx context.Context) ([]Chat, error)
	ChatByThread(ctx context.Context, threadID string) (Chat, error)

	// AppendMessages 按顺序追加到线程日志末尾 / appends to the end of the thread log in order
	AppendMessages(ctx context.Context, threadID string, msgs ...Message) error
	Messages(ctx context.Context, threadID string) ([]Message, error)

	SaveFile(ctx context.Context, f File) error
	File(ctx context.Context, name string) (File, error)

	Close() error
}

// NewID 生成带前缀的唯一 ID / NewID returns a unique id with the given prefix
func NewID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UTC().Unix(), strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
