// Package responder 为开发服务器生成 AI 回复
// Package responder produces the ai reply for a thread on the development server.
package responder

import (
	"context"
	"fmt"
	"strings"

	"voicechat/internal/chat"
	"voicechat/internal/config"
)

// Turn 历史中的一条消息 / Turn is one message of the history handed to a responder
type Turn struct {
	Role    chat.Role
	Content string
	// AudioURL 录音引用；尚无转写时内容可能为空
	AudioURL string
}

// Responder 根据完整历史给出下一条 AI 回复
// Responder returns the next ai reply for a full thread history
type Responder interface {
	Name() string
	Reply(ctx context.Context, history []Turn) (string, error)
}

// New 根据配置选择实现 / New selects the implementation named by the config
func New(cfg config.ServerConfig) (Responder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Responder)) {
	case "", "echo":
		return Echo{}, nil
	case "openai":
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown responder %q", cfg.Responder)
	}
}

// Echo 复述最后一条人类消息，用于离线开发
// Echo repeats the last human message, for offline development
type Echo struct{}

func (Echo) Name() string { return "echo" }

func (Echo) Reply(ctx context.Context, history []Turn) (string, error) {
	for i := len(history) - 1; i >= 0; i-- {
		t := history[i]
		if t.Role != chat.RoleHuman {
			continue
		}
		text := strings.TrimSpace(t.Content)
		switch {
		case text != "" && t.AudioURL != "":
			return fmt.Sprintf("You said: %s (with a recording)", text), nil
		case text != "":
			return "You said: " + text, nil
		case t.AudioURL != "":
			return "I received your recording.", nil
		}
	}
	return "Hello! How can I assist you today?", nil
}
