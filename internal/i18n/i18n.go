package i18n

import (
	"fmt"
	"maps"
	"os"
	"strings"
	"sync/atomic"
)

// I18n 国际化目录；创建后只读，可并发使用
// I18n is a read-only message catalog, safe for concurrent use
type I18n struct {
	locale   string
	messages map[string]string
}

var global atomic.Pointer[I18n]

// Global 返回全局 i18n 实例
// Global returns the global i18n instance
func Global() *I18n {
	if g := global.Load(); g != nil {
		return g
	}
	global.CompareAndSwap(nil, New(""))
	return global.Load()
}

// Init 初始化全局 i18n 实例
// Init initializes the global i18n instance
func Init(locale string) *I18n {
	i := New(locale)
	global.Store(i)
	return i
}

// T 全局翻译快捷函数
// T is a global translation shortcut
func T(key string, args ...any) string {
	return Global().T(key, args...)
}

// New 创建 i18n 实例，英文作为回退
// New creates an i18n instance with English as fallback
func New(locale string) *I18n {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		locale = DetectLocale()
	}
	locale = normalizeLocale(locale)

	messages := maps.Clone(EnMessages)
	if locale == "zh-CN" {
		maps.Copy(messages, ZhCNMessages)
	}
	return &I18n{locale: locale, messages: messages}
}

// T 翻译函数；缺失的 key 原样返回
// T translates key; a missing key is returned verbatim
func (i *I18n) T(key string, args ...any) string {
	tmpl, ok := i.messages[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

// Locale 返回当前 locale
// Locale returns current locale
func (i *I18n) Locale() string {
	return i.locale
}

// DetectLocale 根据环境变量检测 locale
// DetectLocale detects the locale from environment variables
func DetectLocale() string {
	for _, env := range []string{"VOICECHAT_LANG", "LC_ALL", "LC_MESSAGES", "LANG"} {
		v := strings.TrimSpace(os.Getenv(env))
		if v == "" {
			continue
		}
		return normalizeLocale(v)
	}
	return "en"
}

func normalizeLocale(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "C" || s == "POSIX" {
		return "en"
	}
	// 去掉 .UTF-8 等后缀 / Remove .UTF-8 suffix
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		s = s[:idx]
	}
	s = strings.ReplaceAll(s, "_", "-")
	lower := strings.ToLower(s)

	switch {
	case strings.HasPrefix(lower, "zh"):
		return "zh-CN"
	case strings.HasPrefix(lower, "en"):
		return "en"
	}
	return s
}
