package responder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"voicechat/internal/chat"
	"voicechat/internal/config"
	"voicechat/internal/tokens"
)

const systemPrompt = "You are a helpful voice assistant. Recordings appear as links; reply to the text you have."

// OpenAI 调用任意 OpenAI 兼容端点
// OpenAI calls any OpenAI-compatible chat completions endpoint
type OpenAI struct {
	client     *openai.Client
	model      string
	budget     int
	maxRetries int

	tokOnce sync.Once
	tok     *tokens.Tokenizer
}

func NewOpenAI(cfg config.ServerConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai responder requires server.api_key or OPENAI_API_KEY")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		clientCfg.BaseURL = base
	}
	httpClient := &http.Client{}
	if cfg.TimeoutMS > 0 {
		httpClient.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	clientCfg.HTTPClient = httpClient

	budget := cfg.HistoryTokens
	if budget <= 0 {
		budget = config.DefaultHistoryTokens
	}
	return &OpenAI{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		budget:     budget,
		maxRetries: 2,
	}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Reply(ctx context.Context, history []Turn) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: convertTurns(Trim(history, o.budget, o.tokenizer())),
	}

	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(150*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
		resp, err := o.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
			if !retryable(err) {
				break
			}
			continue
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("openai: empty choices")
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}
	return "", fmt.Errorf("openai reply: %w", lastErr)
}

// tokenizer 首次使用时才加载 BPE / BPE ranks load on first use
func (o *OpenAI) tokenizer() *tokens.Tokenizer {
	o.tokOnce.Do(func() {
		if o.tok == nil {
			o.tok = tokens.ForModel(o.model)
		}
	})
	return o.tok
}

// retryable 只重试 429 与 5xx / only 429 and 5xx are retried
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return false
}

func convertTurns(history []Turn) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	for _, t := range history {
		content := turnText(t)
		if content == "" {
			continue
		}
		role := openai.ChatMessageRoleUser
		switch t.Role {
		case chat.RoleAI:
			role = openai.ChatMessageRoleAssistant
		case chat.RoleSystem:
			role = openai.ChatMessageRoleSystem
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: content})
	}
	return out
}

func turnText(t Turn) string {
	text := strings.TrimSpace(t.Content)
	if t.AudioURL == "" {
		return text
	}
	if text == "" {
		return "[recording] " + t.AudioURL
	}
	return text + "\n[recording] " + t.AudioURL
}

// Trim 保留预算内最新的若干条消息，至少保留最后一条
// Trim keeps the newest turns that fit the token budget, always keeping the last one
func Trim(history []Turn, budget int, tok *tokens.Tokenizer) []Turn {
	if len(history) == 0 {
		return nil
	}
	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := tok.CountTurn(history[i].Role, turnText(history[i]))
		if start < len(history) && used+cost > budget {
			break
		}
		used += cost
		start = i
	}
	return history[start:]
}
