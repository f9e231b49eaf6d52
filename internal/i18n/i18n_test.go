package i18n

import "testing"

func TestNew_English(t *testing.T) {
	i := New("en")
	if i.Locale() != "en" {
		t.Fatalf("Locale()=%q, want en", i.Locale())
	}
	if got := i.T("sidebar.title"); got != "Chats" {
		t.Fatalf("T(sidebar.title)=%q, want Chats", got)
	}
}

func TestNew_ChineseFromLang(t *testing.T) {
	i := New("zh_CN.UTF-8")
	if i.Locale() != "zh-CN" {
		t.Fatalf("Locale()=%q, want zh-CN", i.Locale())
	}
	if got := i.T("sidebar.title"); got != "对话" {
		t.Fatalf("T(sidebar.title)=%q, want 对话", got)
	}
}

func TestCatalogsHaveSameKeys(t *testing.T) {
	for k := range EnMessages {
		if _, ok := ZhCNMessages[k]; !ok {
			t.Errorf("zh-CN catalog missing %q", k)
		}
	}
	for k := range ZhCNMessages {
		if _, ok := EnMessages[k]; !ok {
			t.Errorf("zh-CN catalog has extra key %q", k)
		}
	}
}

func TestT_WithArgs(t *testing.T) {
	i := New("en")
	got := i.T("notice.send_failed", "timeout")
	if got != "Failed to send message: timeout" {
		t.Fatalf("T with args=%q", got)
	}
}

func TestT_MissingKey(t *testing.T) {
	i := New("en")
	if got := i.T("nonexistent.key"); got != "nonexistent.key" {
		t.Fatalf("T missing key=%q, want key itself", got)
	}
}

func TestNormalizeLocale(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en_US.UTF-8", "en"},
		{"zh_CN.UTF-8", "zh-CN"},
		{"zh_TW", "zh-CN"},
		{"C", "en"},
		{"", "en"},
		{"fr_FR", "fr-FR"},
	}
	for _, tt := range tests {
		if got := normalizeLocale(tt.input); got != tt.expected {
			t.Errorf("normalizeLocale(%q)=%q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestGlobalAndInit(t *testing.T) {
	prev := Global()
	t.Cleanup(func() { global.Store(prev) })

	// 应该返回同一实例 / Should return same instance
	if Global() != Global() {
		t.Fatal("Global() should return same instance")
	}
	zh := Init("zh-CN")
	if Global() != zh {
		t.Fatal("Init should replace the global instance")
	}
	if T("status.ready") != "就绪" {
		t.Fatalf("T(status.ready)=%q", T("status.ready"))
	}
}
