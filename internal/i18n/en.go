package i18n

// EnMessages English message catalog
var EnMessages = map[string]string{
	// Session store
	"session.greeting":      "Hello! How can I assist you today?",
	"session.default_title": "New Chat",
	"message.audio_sent":    "Audio message sent...",

	// Notices (dismissible)
	"notice.list_failed":    "Could not load chat history. %s",
	"notice.create_failed":  "Failed to create new chat. %s",
	"notice.refresh_failed": "Failed to load messages for %s. %s",
	"notice.send_failed":    "Failed to send message: %s",
	"notice.no_session":     "No active chat session selected.",
	"notice.dismiss_hint":   "esc to dismiss",

	// Audio
	"audio.process_failed": "[Error] Failed to process audio: %s",
	"audio.mic_denied":     "Could not access microphone. Please check device permissions.",
	"audio.empty":          "recording captured no audio",
	"audio.recording":      "● Recording... (ctrl+r to stop)",

	// UI (TUI sidebar)
	"sidebar.title":    "Chats",
	"sidebar.new":      "+ New chat (ctrl+n)",
	"sidebar.loading":  "Loading chats...",
	"sidebar.creating": "Creating chat...",

	// UI - Main pane
	"header.fallback": "Chat",
	"chat.empty":      "No messages yet.",
	"chat.loading":    "Loading messages...",
	"chat.you":        "You",
	"chat.assistant":  "Assistant",
	"chat.audio":      "🎤 %s",

	// UI - Status bar
	"status.ready":     "Ready",
	"status.typing":    "Assistant is typing...",
	"status.recording": "Recording",
	"status.tokens":    "~%d tokens",

	// UI - Input
	"input.placeholder": "Type a message (Enter to send), ctrl+r to record",

	// UI - Alert
	"alert.title": "Alert",
	"alert.hint":  "press esc or enter to close",

	// REPL
	"repl.commands":   "commands: /new /list /switch <n|id> /refresh /dismiss /record /stop /quit",
	"repl.current":    "── %s (%d messages)",
	"repl.no_current": "no current session",
	"repl.unknown":    "unknown command: %s",
	"repl.switch_bad": "no session matches %q",
	"repl.bye":        "bye",
}
