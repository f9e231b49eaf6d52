package i18n

// ZhCNMessages 简体中文消息目录
// ZhCNMessages Simplified Chinese message catalog
var ZhCNMessages = map[string]string{
	// 会话 / Session store
	"session.greeting":      "你好！有什么可以帮你的吗？",
	"session.default_title": "新对话",
	"message.audio_sent":    "语音消息已发送...",

	// 提示 / Notices
	"notice.list_failed":    "无法加载对话历史。%s",
	"notice.create_failed":  "创建新对话失败。%s",
	"notice.refresh_failed": "加载 %s 的消息失败。%s",
	"notice.send_failed":    "发送消息失败：%s",
	"notice.no_session":     "未选择有效的对话。",
	"notice.dismiss_hint":   "按 esc 关闭",

	// 录音 / Audio
	"audio.process_failed": "[错误] 处理录音失败：%s",
	"audio.mic_denied":     "无法访问麦克风，请检查设备权限。",
	"audio.empty":          "录音内容为空",
	"audio.recording":      "● 录音中...（ctrl+r 停止）",

	// 侧边栏 / Sidebar
	"sidebar.title":    "对话",
	"sidebar.new":      "+ 新对话 (ctrl+n)",
	"sidebar.loading":  "正在加载对话...",
	"sidebar.creating": "正在创建对话...",

	// 主区域 / Main pane
	"header.fallback": "对话",
	"chat.empty":      "暂无消息。",
	"chat.loading":    "正在加载消息...",
	"chat.you":        "你",
	"chat.assistant":  "助手",
	"chat.audio":      "🎤 %s",

	// 状态栏 / Status bar
	"status.ready":     "就绪",
	"status.typing":    "助手正在输入...",
	"status.recording": "录音中",
	"status.tokens":    "约 %d tokens",

	// 输入 / Input
	"input.placeholder": "输入消息（回车发送），ctrl+r 录音",

	// 弹窗 / Alert
	"alert.title": "提示",
	"alert.hint":  "按 esc 或回车关闭",

	// REPL
	"repl.commands":   "命令: /new /list /switch <序号|id> /refresh /dismiss /record /stop /quit",
	"repl.current":    "── %s（%d 条消息）",
	"repl.no_current": "当前没有对话",
	"repl.unknown":    "未知命令：%s",
	"repl.switch_bad": "没有匹配 %q 的对话",
	"repl.bye":        "再见",
}
