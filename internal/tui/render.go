package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"voicechat/internal/chat"
	"voicechat/internal/i18n"
	"voicechat/internal/session"
)

// markdown 按宽度缓存 Glamour 渲染器
// markdown caches one Glamour renderer per wrap width
type markdown struct {
	width    int
	renderer *glamour.TermRenderer
}

// Render 渲染 markdown；失败时退回原文
// Render renders markdown text, falling back to the raw text on error
func (m *markdown) Render(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	if m.renderer == nil || m.width != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return content
		}
		m.renderer, m.width = r, width
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(rendered, "\n")
}

// renderMessages 当前会话的消息文本，人类消息原样显示，AI 消息经 markdown 渲染
func renderMessages(msgs []chat.Message, width int, md *markdown, theme Theme, locale *i18n.I18n) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch m.Role {
		case chat.RoleAI:
			b.WriteString(theme.AIStyle.Render(locale.T("chat.assistant")))
			b.WriteString("\n")
			b.WriteString(md.Render(m.Content, width))
		default:
			b.WriteString(theme.HumanStyle.Render(locale.T("chat.you")))
			if content := strings.TrimSpace(m.Content); content != "" {
				b.WriteString("\n")
				b.WriteString(content)
			}
		}
		if m.HasAudio() {
			b.WriteString("\n")
			b.WriteString(theme.AudioStyle.Render(locale.T("chat.audio", m.AudioReference)))
		}
	}
	return b.String()
}

// renderSessionList 侧边栏会话列表 / the sidebar session list
func renderSessionList(st *session.State, width int, theme Theme, locale *i18n.I18n) string {
	lines := []string{theme.TitleStyle.Render(" " + locale.T("sidebar.title")), ""}

	newLabel := locale.T("sidebar.new")
	if st.CreatingSession {
		lines = append(lines, theme.MutedStyle.Render(" "+locale.T("sidebar.creating")))
	} else {
		lines = append(lines, theme.SuccessStyle.Render(" "+newLabel))
	}
	lines = append(lines, "")

	if st.LoadingSessionList {
		lines = append(lines, theme.MutedStyle.Render(" "+locale.T("sidebar.loading")))
		return strings.Join(lines, "\n")
	}
	for _, s := range st.Ordered() {
		label := truncate(s.Title, width-2)
		if st.AwaitingReply(s.ID) {
			label = truncate(s.Title, width-4) + " …"
		}
		if s.ID == st.CurrentID {
			lines = append(lines, theme.CurrentItemStyle.Width(width).Render(" "+label))
			continue
		}
		lines = append(lines, theme.ItemStyle.Render(" "+label))
	}
	return strings.Join(lines, "\n")
}

func renderNotice(n *session.Notice, width int, theme Theme, locale *i18n.I18n) string {
	if n == nil {
		return ""
	}
	text := fmt.Sprintf("%s  (%s)", n.Text, locale.T("notice.dismiss_hint"))
	return theme.NoticeStyle.Width(width).Render(text)
}

func truncate(s string, width int) string {
	if width <= 1 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
