// Package tokens 对话 token 计数，tiktoken 不可用时使用启发式估算
// Package tokens counts conversation tokens with tiktoken, falling back to a
// heuristic when the BPE ranks cannot be loaded (offline environments).
package tokens

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"voicechat/internal/chat"
)

// Tokenizer 精确 token 计数器，支持 tiktoken 和启发式回退
// Tokenizer provides precise token counting with tiktoken and heuristic fallback
type Tokenizer struct {
	encoder      *tiktoken.Tiktoken
	encodingName string
	fallback     bool
	mu           sync.Mutex
}

var (
	defaultTokenizer     *Tokenizer
	defaultTokenizerOnce sync.Once
)

// Default 返回全局 cl100k_base tokenizer / Default returns the shared cl100k_base tokenizer
func Default() *Tokenizer {
	defaultTokenizerOnce.Do(func() {
		defaultTokenizer = New("cl100k_base")
	})
	return defaultTokenizer
}

func New(encodingName string) *Tokenizer {
	t := &Tokenizer{encodingName: encodingName}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		t.fallback = true
		return t
	}
	t.encoder = enc
	return t
}

// ForModel 根据模型名选择编码 / ForModel picks the encoding for a model name
func ForModel(model string) *Tokenizer {
	return New(modelToEncoding(model))
}

// Heuristic 不加载 BPE 的估算器 / Heuristic never loads BPE ranks
func Heuristic() *Tokenizer {
	return &Tokenizer{encodingName: "heuristic", fallback: true}
}

func (t *Tokenizer) IsPrecise() bool { return !t.fallback }

func (t *Tokenizer) EncodingName() string { return t.encodingName }

func (t *Tokenizer) CountText(text string) int {
	if text == "" {
		return 0
	}
	if t.fallback {
		return heuristicCount(text)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.encoder.Encode(text, nil, nil))
}

// CountTurn 一条消息的 token 数，含约 4 token 的结构开销
// CountTurn is one message including the ~4 token per-message overhead
func (t *Tokenizer) CountTurn(role chat.Role, content string) int {
	return 4 + t.CountText(string(role)) + t.CountText(content)
}

// Count 显示消息列表的总 token 数；录音引用按链接文本计
// Count totals a displayed conversation; audio references count as their URL
func (t *Tokenizer) Count(messages []chat.Message) int {
	total := 0
	for _, m := range messages {
		total += t.CountTurn(m.Role, m.Content)
		if m.AudioReference != "" {
			total += t.CountText(m.AudioReference)
		}
	}
	return total
}

// heuristicCount CJK 约 1.5 token/字，其他约 4 字符/token
// heuristicCount assumes ~1.5 tokens per CJK rune and ~4 chars per token otherwise
func heuristicCount(text string) int {
	cjk, other := 0, 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	estimate := int(float64(cjk)*1.5 + float64(other)*0.25)
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols
		(r >= 0xFF00 && r <= 0xFFEF) || // Fullwidth Forms
		(r >= 0xAC00 && r <= 0xD7AF) // Korean Hangul
}

func modelToEncoding(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"),
		strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "gpt-4.1"), strings.HasPrefix(m, "chatgpt-4o"):
		return "o200k_base"
	default:
		return "cl100k_base"
	}
}
