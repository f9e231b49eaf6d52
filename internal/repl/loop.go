// Package repl 行模式聊天客户端
// Package repl is the line-mode chat client: every line is sent to the current
// session and slash commands drive the session store.
package repl

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"voicechat/internal/chat"
	"voicechat/internal/i18n"
	"voicechat/internal/session"
)

// ANSI colors for prompt
const (
	ansiReset  = "\x1b[0m"
	ansiDim    = "\x1b[90m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

// Sessions REPL 使用的会话存储操作；*session.Store 实现它
type Sessions interface {
	Snapshot() *session.State
	Updates() <-chan struct{}
	Initialize(ctx context.Context) error
	CreateSession(ctx context.Context) error
	SwitchSession(id string)
	RefreshMessages(ctx context.Context, sessionID string) error
	SendMessage(ctx context.Context, text, audioRef string) (session.SendOutcome, error)
	DismissNotice()
}

// Recorder 录音流水线；*audio.Recorder 实现它
type Recorder interface {
	Recording() bool
	Start(ctx context.Context) error
	Stop(ctx context.Context, pendingText string) (session.SendOutcome, error)
}

type Options struct {
	Sessions Sessions
	Recorder Recorder
	Input    LineInput
	Out      io.Writer
	I18n     *i18n.I18n
	// Color 是否输出 ANSI 颜色 / whether to emit ANSI colors
	Color bool
}

// Loop holds REPL state.
// Loop 持有 REPL 状态：会话存储、录音器与输入输出。
type Loop struct {
	sessions Sessions
	recorder Recorder
	in       LineInput
	out      io.Writer
	locale   *i18n.I18n
	color    bool
	loadWait time.Duration
}

func NewLoop(opts Options) *Loop {
	if opts.I18n == nil {
		opts.I18n = i18n.Global()
	}
	return &Loop{
		sessions: opts.Sessions,
		recorder: opts.Recorder,
		in:       opts.Input,
		out:      opts.Out,
		locale:   opts.I18n,
		color:    opts.Color,
		loadWait: 2 * time.Second,
	}
}

// Run 读取并执行输入直到 /quit、EOF 或 Ctrl+C
// Run reads and executes input until /quit, EOF or Ctrl+C
func (l *Loop) Run(ctx context.Context) error {
	if err := l.sessions.Initialize(ctx); err != nil {
		l.printf("%s\n", l.paint(ansiYellow, err.Error()))
	}
	if id := l.sessions.Snapshot().CurrentID; id != "" {
		l.awaitLoaded(ctx, id)
	}
	l.printf("%s\n", l.paint(ansiDim, l.locale.T("repl.commands")))
	l.printCurrent()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := l.in.ReadLine(l.prompt())
		if err != nil {
			if isEndOfInput(err) {
				l.printf("%s\n", l.locale.T("repl.bye"))
				return nil
			}
			return err
		}
		if quit := l.Handle(ctx, line); quit {
			l.printf("%s\n", l.locale.T("repl.bye"))
			return nil
		}
	}
}

// Handle 执行一行输入；返回 true 表示退出
// Handle executes one input line and reports whether the REPL should quit
func (l *Loop) Handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		_, _ = l.sessions.SendMessage(ctx, line, "")
		l.printCurrent()
		return false
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true
	case "/new":
		_ = l.sessions.CreateSession(ctx)
	case "/list":
		l.printList()
		return false
	case "/switch":
		id, ok := l.resolve(arg)
		if !ok {
			l.printf("%s\n", l.paint(ansiYellow, l.locale.T("repl.switch_bad", arg)))
			return false
		}
		l.sessions.SwitchSession(id)
		l.awaitLoaded(ctx, id)
	case "/refresh":
		if id := l.sessions.Snapshot().CurrentID; id != "" {
			_ = l.sessions.RefreshMessages(ctx, id)
		}
	case "/dismiss":
		l.sessions.DismissNotice()
	case "/record":
		l.startRecording(ctx)
		return false
	case "/stop":
		l.stopRecording(ctx, arg)
	case "/help":
		l.printf("%s\n", l.locale.T("repl.commands"))
		return false
	default:
		l.printf("%s\n", l.paint(ansiYellow, l.locale.T("repl.unknown", name)))
		return false
	}
	l.printCurrent()
	return false
}

// awaitLoaded 等待切换触发的后台刷新完成
// awaitLoaded waits for the background refresh started by a switch
func (l *Loop) awaitLoaded(ctx context.Context, id string) {
	timeout := time.NewTimer(l.loadWait)
	defer timeout.Stop()
	for {
		st := l.sessions.Snapshot()
		if sess, ok := st.Session(id); !ok || len(sess.Messages) > 0 || (st.Notice != nil && st.Notice.SessionID == id) {
			return
		}
		select {
		case <-l.sessions.Updates():
		case <-timeout.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (l *Loop) startRecording(ctx context.Context) {
	if l.recorder == nil {
		l.printf("%s\n", l.paint(ansiYellow, l.locale.T("audio.mic_denied")))
		return
	}
	if err := l.recorder.Start(ctx); err != nil {
		l.printf("%s\n", l.paint(ansiYellow, l.locale.T("audio.mic_denied")))
		return
	}
	l.printf("%s\n", l.paint(ansiYellow, l.locale.T("audio.recording")))
}

func (l *Loop) stopRecording(ctx context.Context, pending string) {
	if l.recorder == nil || !l.recorder.Recording() {
		return
	}
	_, _ = l.recorder.Stop(ctx, pending)
}

// resolve 支持列表序号（从 1 开始）或会话 id
// resolve accepts a 1-based list position or a session id
func (l *Loop) resolve(arg string) (string, bool) {
	st := l.sessions.Snapshot()
	if arg == "" {
		return "", false
	}
	if n, err := strconv.Atoi(arg); err == nil {
		if n >= 1 && n <= len(st.Order) {
			return st.Order[n-1], true
		}
		return "", false
	}
	if _, ok := st.Sessions[arg]; ok {
		return arg, true
	}
	return "", false
}

func (l *Loop) prompt() string {
	title := l.locale.T("header.fallback")
	if cur, ok := l.sessions.Snapshot().Current(); ok {
		title = cur.Title
	}
	return l.paint(ansiCyan, title) + " > "
}

func (l *Loop) printList() {
	st := l.sessions.Snapshot()
	for i, s := range st.Ordered() {
		marker := " "
		if s.ID == st.CurrentID {
			marker = "*"
		}
		l.printf("%s %2d. %s %s\n", marker, i+1, s.Title, l.paint(ansiDim, s.ID))
	}
}

func (l *Loop) printCurrent() {
	st := l.sessions.Snapshot()
	if st.Notice != nil {
		l.printf("%s\n", l.paint(ansiYellow, "! "+st.Notice.Text))
	}
	cur, ok := st.Current()
	if !ok {
		l.printf("%s\n", l.paint(ansiDim, l.locale.T("repl.no_current")))
		return
	}
	l.printf("%s\n", l.paint(ansiDim, l.locale.T("repl.current", cur.Title, len(cur.Messages))))
	for _, m := range cur.Messages {
		l.printMessage(m)
	}
}

func (l *Loop) printMessage(m chat.Message) {
	label := l.paint(ansiGreen, l.locale.T("chat.you"))
	if m.Role == chat.RoleAI {
		label = l.paint(ansiCyan, l.locale.T("chat.assistant"))
	}
	if content := strings.TrimSpace(m.Content); content != "" {
		l.printf("%s: %s\n", label, content)
	} else {
		l.printf("%s:\n", label)
	}
	if m.HasAudio() {
		l.printf("  %s\n", l.locale.T("chat.audio", m.AudioReference))
	}
}

func (l *Loop) paint(color, s string) string {
	if !l.color {
		return s
	}
	return color + s + ansiReset
}

func (l *Loop) printf(format string, args ...any) {
	if l.out == nil {
		return
	}
	fmt.Fprintf(l.out, format, args...)
}
