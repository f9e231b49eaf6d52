// Package tui 基于 Bubble Tea 的聊天客户端
// Package tui is the Bubble Tea chat client. It renders session store
// snapshots and turns keys into store, layout and recorder actions.
package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"voicechat/internal/i18n"
	"voicechat/internal/layout"
	"voicechat/internal/logging"
	"voicechat/internal/session"
	"voicechat/internal/tokens"
)

// Sessions TUI 使用的会话存储操作；*session.Store 实现它
// Sessions is the part of the session store the TUI drives
type Sessions interface {
	Snapshot() *session.State
	Updates() <-chan struct{}
	Initialize(ctx context.Context) error
	CreateSession(ctx context.Context) error
	SwitchSession(id string)
	SendMessage(ctx context.Context, text, audioRef string) (session.SendOutcome, error)
	DismissNotice()
}

// Recorder 录音流水线；*audio.Recorder 实现它
// Recorder is the capture pipeline; *audio.Recorder implements it
type Recorder interface {
	Recording() bool
	Start(ctx context.Context) error
	Stop(ctx context.Context, pendingText string) (session.SendOutcome, error)
}

// --- Tea Messages ---

// storeUpdatedMsg 会话存储发布了新快照
type storeUpdatedMsg struct{}

// storeClosedMsg 会话存储已关闭
type storeClosedMsg struct{}

// AlertMsg 阻塞式提示，关闭前屏蔽输入
// AlertMsg is a blocking alert; input is ignored until it is dismissed
type AlertMsg struct{ Text string }

// actionDoneMsg 一次后台动作结束；错误已由存储转为提示
type actionDoneMsg struct {
	op  string
	err error
}

type Options struct {
	Sessions Sessions
	Layout   *layout.Controller
	// Recorder 为 nil 时录音键只显示提示 / nil disables recording
	Recorder Recorder
	Alerts   *Alerts
	Tokens   *tokens.Tokenizer
	I18n     *i18n.I18n
	Logger   logrus.FieldLogger
}

// App Bubble Tea 主 Model
// App is the main Bubble Tea model
type App struct {
	// 布局 / Layout
	width  int
	height int

	chatView viewport.Model
	input    textarea.Model
	spin     spinner.Model
	help     help.Model

	sessions Sessions
	layout   *layout.Controller
	recorder Recorder
	alerts   *Alerts
	tok      *tokens.Tokenizer
	log      logrus.FieldLogger

	// 状态 / State
	ctx       context.Context
	state     *session.State
	alert     string
	recording bool
	starting  bool
	md        *markdown

	// 配置 / Config
	theme  Theme
	keys   KeyMap
	locale *i18n.I18n
}

// NewApp 创建 TUI 应用
// NewApp creates a new TUI application
func NewApp(ctx context.Context, opts Options) App {
	if opts.I18n == nil {
		opts.I18n = i18n.Global()
	}
	if opts.Layout == nil {
		opts.Layout = layout.New(0, layout.DefaultBreakpoint)
	}
	if opts.Tokens == nil {
		opts.Tokens = tokens.Heuristic()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	ta := textarea.New()
	ta.Placeholder = opts.I18n.T("input.placeholder")
	ta.CharLimit = 8192
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetKeys("shift+enter", "alt+enter")
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return App{
		input:    ta,
		spin:     sp,
		help:     help.New(),
		sessions: opts.Sessions,
		layout:   opts.Layout,
		recorder: opts.Recorder,
		alerts:   opts.Alerts,
		tok:      opts.Tokens,
		log:      opts.Logger,
		ctx:      ctx,
		state:    opts.Sessions.Snapshot(),
		md:       &markdown{},
		theme:    DarkTheme(),
		keys:     DefaultKeyMap(),
		locale:   opts.I18n,
	}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		a.spin.Tick,
		a.run("initialize", a.sessions.Initialize),
		waitForUpdate(a.sessions.Updates()),
		a.alerts.wait(),
	)
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, a.keys.Quit) {
			return a, tea.Quit
		}
		if a.alert != "" {
			// 提示打开时只接受关闭 / an open alert only accepts dismissal
			if key.Matches(msg, a.keys.Dismiss, a.keys.Submit) {
				a.alert = ""
			}
			return a, nil
		}
		if cmd, handled := a.handleKey(msg); handled {
			a.refreshContent()
			return a, cmd
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.layout.Resize(msg.Width)
		a.relayout()
		return a, nil

	case storeUpdatedMsg:
		a.state = a.sessions.Snapshot()
		a.refreshContent()
		return a, waitForUpdate(a.sessions.Updates())

	case storeClosedMsg:
		return a, nil

	case AlertMsg:
		a.alert = msg.Text
		return a, a.alerts.wait()

	case actionDoneMsg:
		if msg.err != nil {
			a.log.WithError(msg.err).WithField("op", msg.op).Debug("action finished with error")
		}
		switch msg.op {
		case "record-start":
			a.starting = false
			a.recording = msg.err == nil
		case "record-stop":
			a.recording = false
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)
	a.chatView, cmd = a.chatView.Update(msg)
	cmds = append(cmds, cmd)
	return a, tea.Batch(cmds...)
}

// handleKey 处理全局快捷键；未处理的键交给输入框
func (a *App) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, a.keys.Dismiss):
		if a.state.Notice != nil {
			a.sessions.DismissNotice()
			a.state = a.sessions.Snapshot()
		}
		return nil, true

	case key.Matches(msg, a.keys.Submit):
		text := a.input.Value()
		if strings.TrimSpace(text) == "" || a.busy() {
			return nil, true
		}
		a.input.Reset()
		return a.run("send", func(ctx context.Context) error {
			_, err := a.sessions.SendMessage(ctx, text, "")
			return err
		}), true

	case key.Matches(msg, a.keys.NewSession):
		if a.state.CreatingSession {
			return nil, true
		}
		return a.run("create", a.sessions.CreateSession), true

	case key.Matches(msg, a.keys.NextSession):
		a.switchBy(1)
		return nil, true

	case key.Matches(msg, a.keys.PrevSession):
		a.switchBy(-1)
		return nil, true

	case key.Matches(msg, a.keys.ToggleSidebar):
		a.layout.Toggle()
		a.relayout()
		return nil, true

	case key.Matches(msg, a.keys.Record):
		if a.busy() {
			return nil, true
		}
		return a.toggleRecording(), true

	case key.Matches(msg, a.keys.ScrollUp):
		a.chatView.HalfPageUp()
		return nil, true

	case key.Matches(msg, a.keys.ScrollDown):
		a.chatView.HalfPageDown()
		return nil, true
	}
	return nil, false
}

func (a *App) switchBy(delta int) {
	order := a.state.Order
	if len(order) == 0 {
		return
	}
	idx := slices.Index(order, a.state.CurrentID)
	next := (idx + delta + len(order)) % len(order)
	if idx < 0 {
		next = 0
	}
	a.sessions.SwitchSession(order[next])
	a.state = a.sessions.Snapshot()
	a.relayout()
}

// busy 创建会话或等待回复时禁用发送与录音
// busy reports whether sending and recording are disabled
func (a *App) busy() bool {
	return a.state.CreatingSession || a.state.AwaitingReply(a.state.CurrentID)
}

func (a *App) toggleRecording() tea.Cmd {
	if a.recorder == nil {
		a.alert = a.locale.T("audio.mic_denied")
		return nil
	}
	rec := a.recorder
	switch {
	case a.starting:
		return nil
	case a.recording:
		pending := a.input.Value()
		a.input.Reset()
		a.recording = false
		return a.run("record-stop", func(ctx context.Context) error {
			_, err := rec.Stop(ctx, pending)
			return err
		})
	}
	// 打开设备可能要等探测结束；失败时录音器自己发出提示
	a.starting = true
	return a.run("record-start", rec.Start)
}

// run 在后台执行存储动作 / run executes a store action off the update loop
func (a App) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := a.ctx
	return func() tea.Msg {
		return actionDoneMsg{op: op, err: fn(ctx)}
	}
}

func waitForUpdate(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return storeClosedMsg{}
		}
		return storeUpdatedMsg{}
	}
}

func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Initializing..."
	}
	if a.alert != "" {
		return a.renderAlert()
	}

	sidebarWidth, mainWidth := a.columns()
	statusBar := a.renderStatusBar(a.width)
	bodyHeight := a.height - lipgloss.Height(statusBar)

	if mainWidth == 0 {
		// 窄屏打开侧栏时侧栏占满宽度 / on narrow layouts an open sidebar takes the whole width
		sidebar := a.theme.SidebarStyle.BorderRight(false).Width(a.width).Height(bodyHeight).
			Render(renderSessionList(a.state, a.width, a.theme, a.locale))
		return lipgloss.JoinVertical(lipgloss.Left, sidebar, statusBar)
	}

	main := a.renderMain(mainWidth, bodyHeight)
	if sidebarWidth > 0 {
		sidebar := a.theme.SidebarStyle.Width(sidebarWidth).Height(bodyHeight).
			Render(renderSessionList(a.state, sidebarWidth, a.theme, a.locale))
		main = lipgloss.JoinHorizontal(lipgloss.Top, sidebar, main)
	}
	return lipgloss.JoinVertical(lipgloss.Left, main, statusBar)
}

// --- 内部方法 / Internal methods ---

// columns 侧栏与主区域宽度；主区域为 0 表示侧栏占满
func (a App) columns() (sidebar, main int) {
	v := a.layout.View()
	if !v.SidebarOpen {
		return 0, a.width
	}
	if v.Narrow {
		return a.width, 0
	}
	sidebar = a.width * 25 / 100
	sidebar = max(20, min(sidebar, 40))
	return sidebar, a.width - sidebar - 1
}

func (a *App) relayout() {
	_, mainWidth := a.columns()
	if mainWidth == 0 {
		mainWidth = a.width
	}
	panelHeight := a.height - 9
	if a.state.Notice != nil {
		panelHeight--
	}
	if panelHeight < 3 {
		panelHeight = 3
	}
	a.chatView = viewport.New(mainWidth, panelHeight)
	a.input.SetWidth(max(mainWidth-2, 10))
	a.help.Width = a.width
	a.refreshContent()
}

func (a *App) refreshContent() {
	cur, ok := a.state.Current()
	if !ok {
		a.chatView.SetContent(a.theme.MutedStyle.Render("  " + a.locale.T("chat.empty")))
		return
	}
	if len(cur.Messages) == 0 {
		a.chatView.SetContent(a.theme.MutedStyle.Render("  " + a.locale.T("chat.loading")))
		return
	}
	a.chatView.SetContent(renderMessages(cur.Messages, a.chatView.Width-2, a.md, a.theme, a.locale))
	a.chatView.GotoBottom()
}

// --- 渲染方法 / Render methods ---

func (a App) renderMain(width, height int) string {
	title := a.locale.T("header.fallback")
	if cur, ok := a.state.Current(); ok && cur.Title != "" {
		title = cur.Title
	}
	parts := []string{a.theme.TitleStyle.Width(width).Render(" " + title)}
	if notice := renderNotice(a.state.Notice, width, a.theme, a.locale); notice != "" {
		parts = append(parts, notice)
	}
	parts = append(parts, lipgloss.NewStyle().Width(width).Render(a.chatView.View()))

	indicator := ""
	switch {
	case a.recording:
		indicator = a.theme.RecordingStyle.Render(" " + a.locale.T("audio.recording"))
	case a.state.AwaitingReply(a.state.CurrentID):
		indicator = " " + a.spin.View() + a.theme.MutedStyle.Render(a.locale.T("status.typing"))
	}
	parts = append(parts, indicator)
	parts = append(parts, a.theme.InputStyle.Width(width).Render(a.input.View()))
	return lipgloss.NewStyle().Width(width).MaxHeight(height).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (a App) renderStatusBar(width int) string {
	status := a.locale.T("status.ready")
	switch {
	case a.recording:
		status = a.locale.T("status.recording")
	case a.state.AwaitingReply(a.state.CurrentID):
		status = a.locale.T("status.typing")
	}
	count := 0
	if cur, ok := a.state.Current(); ok {
		count = a.tok.Count(cur.Messages)
	}

	left := fmt.Sprintf(" %s · %s", status, a.locale.T("status.tokens", count))
	right := a.help.ShortHelpView(a.keys.ShortHelp()) + " "

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		right, gap = "", max(width-lipgloss.Width(left), 0)
	}
	bar := left + strings.Repeat(" ", gap) + right
	return a.theme.StatusBarStyle.Width(width).Render(bar)
}

func (a App) renderAlert() string {
	body := lipgloss.JoinVertical(lipgloss.Left,
		a.theme.ErrorStyle.Render(a.locale.T("alert.title")),
		"",
		a.alert,
		"",
		a.theme.MutedStyle.Render(a.locale.T("alert.hint")),
	)
	box := a.theme.AlertStyle.Width(min(60, max(a.width-4, 20))).Render(body)
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, box)
}

// Run 启动 Bubble Tea TUI
// Run starts the Bubble Tea TUI application
func Run(ctx context.Context, opts Options) error {
	app := NewApp(ctx, opts)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
