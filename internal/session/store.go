// Package session 会话同步引擎：多会话缓存、乐观更新与远端对账
// Package session is the chat session synchronization engine. It caches the
// remote threads, applies optimistic sends and reconciles every session
// against the authoritative remote log.
package session

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"voicechat/internal/chat"
	"voicechat/internal/gateway"
	"voicechat/internal/i18n"
	"voicechat/internal/logging"
)

// Gateway 远端对话存储；*gateway.Client 实现它
// Gateway is the remote chat store; *gateway.Client implements it
type Gateway interface {
	ListThreads(ctx context.Context) ([]gateway.Thread, error)
	CreateThread(ctx context.Context, title string) (gateway.CreatedThread, error)
	FetchMessages(ctx context.Context, threadID string) ([]chat.RemoteMessage, error)
	SendMessage(ctx context.Context, threadID, text, audioRef string) (gateway.SendResult, error)
}

// Navigator 新建或切换会话时的布局副作用；*layout.Controller 实现它
// Navigator receives the layout side effect of create and switch
type Navigator interface {
	CollapseIfNarrow()
}

type Options struct {
	// RemoteOrder 保留远端列表顺序，而不是按 CreatedAt 倒序
	// RemoteOrder keeps the remote listing order instead of CreatedAt descending
	RemoteOrder bool
	// ReconcileDelay 发送完成到刷新之间的等待 / wait between a completed send and its refresh
	ReconcileDelay time.Duration
	IDs            chat.IDFunc
	Navigator      Navigator
	Logger         logrus.FieldLogger
	I18n           *i18n.I18n
	Now            func() time.Time
}

// Store 会话状态容器。锁只在挂起点之间持有，从不跨越网关调用
// Store is the session state container. The mutex is held only between
// suspension points and never across a gateway call.
type Store struct {
	gw   Gateway
	opts Options
	log  logrus.FieldLogger
	tr   *i18n.I18n

	mu          sync.Mutex
	state       *State
	generations map[string]uint64
	initialized bool
	closed      bool
	updatesDone bool
	updates     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(gw Gateway, opts Options) *Store {
	if opts.IDs == nil {
		opts.IDs = NewMessageID
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.I18n == nil {
		opts.I18n = i18n.Global()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		gw:          gw,
		opts:        opts,
		log:         opts.Logger,
		tr:          opts.I18n,
		state:       emptyState(),
		generations: map[string]uint64{},
		updates:     make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// NewMessageID 生成本地唯一的消息 id / NewMessageID returns a locally unique message id
func NewMessageID() string {
	return "msg_" + uuid.NewString()
}

// Snapshot 返回当前不可变快照 / Snapshot returns the current immutable snapshot
func (s *Store) Snapshot() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Updates 每次状态变化后收到一个信号（合并通知）；Close 后关闭
// Updates signals after state changes (coalesced) and is closed by Close
func (s *Store) Updates() <-chan struct{} {
	return s.updates
}

// Close 停止后台反应并等待其退出 / Close stops background reactions and waits for them
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.updatesDone = true
	close(s.updates)
	s.mu.Unlock()
}

// apply 在锁内做整体替换并发出通知
// apply replaces the state wholesale under the lock and notifies observers
func (s *Store) apply(f func(*State) *State) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(f)
	return s.state
}

func (s *Store) applyLocked(f func(*State) *State) {
	next := f(s.state)
	if next == s.state {
		return
	}
	s.state = next
	if s.updatesDone {
		return
	}
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// Initialize 加载远端会话列表；列表为空或失败时退回 CreateSession
// Initialize loads the remote thread list, falling back to CreateSession when
// the list is empty or fails. Only the first call does anything.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.initialized = true
	s.applyLocked(func(st *State) *State {
		next := st.clone()
		next.LoadingSessionList = true
		return next
	})
	s.mu.Unlock()

	threads, err := s.gw.ListThreads(ctx)

	s.mu.Lock()
	var current string
	s.applyLocked(func(st *State) *State {
		next := st.clone()
		next.LoadingSessionList = false
		if err != nil {
			next.Notice = &Notice{Kind: NoticeTransport, Text: s.tr.T("notice.list_failed", err.Error()), Err: err}
			return next
		}
		if len(threads) == 0 {
			return next
		}
		next = next.withInstalled(s.sessionsFromThreads(threads))
		if next.CurrentID == "" && len(next.Order) > 0 {
			next.CurrentID = next.Order[0]
			current = next.CurrentID
		}
		return next
	})
	installed := len(s.state.Order) > 0
	s.mu.Unlock()

	if err != nil {
		s.log.WithError(err).Warn("list threads failed, creating a session")
	}
	if err == nil && installed {
		s.log.WithField("sessions", len(threads)).Info("session list loaded")
		if current != "" {
			s.react(current)
		}
		return nil
	}
	return s.CreateSession(ctx)
}

func (s *Store) sessionsFromThreads(threads []gateway.Thread) []chat.ChatSession {
	list := make([]chat.ChatSession, 0, len(threads))
	for _, t := range threads {
		if strings.TrimSpace(t.ChatID) == "" {
			continue
		}
		title := strings.TrimSpace(t.Title)
		if title == "" {
			title = chat.DefaultTitle(t.ChatID)
		}
		list = append(list, chat.ChatSession{
			ID:             t.ChatID,
			RemoteThreadID: t.ThreadID,
			Title:          title,
			CreatedAt:      t.CreatedAt,
		})
	}
	if !s.opts.RemoteOrder {
		slices.SortStableFunc(list, func(a, b chat.ChatSession) int {
			return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
		})
	}
	return list
}

// CreateSession 新建远端线程并设为当前；失败时状态保持不变
// CreateSession creates a remote thread and makes it current. On failure the
// sessions and current id are left exactly as they were.
func (s *Store) CreateSession(ctx context.Context) error {
	s.apply(func(st *State) *State {
		next := st.clone()
		next.CreatingSession = true
		return next
	})
	defer s.apply(func(st *State) *State {
		next := st.clone()
		next.CreatingSession = false
		return next
	})

	title := s.tr.T("session.default_title")
	created, err := s.gw.CreateThread(ctx, title)
	if err != nil {
		s.log.WithError(err).WithField("op", "create").Warn("create session failed")
		s.apply(func(st *State) *State {
			return st.withNotice(&Notice{Kind: NoticeTransport, Text: s.tr.T("notice.create_failed", err.Error()), Err: err})
		})
		return fmt.Errorf("create session: %w", err)
	}

	now := s.opts.Now()
	sess := chat.ChatSession{
		ID:             created.ChatID,
		RemoteThreadID: created.ThreadID,
		Title:          cmp.Or(strings.TrimSpace(created.Title), title),
		CreatedAt:      created.CreatedAt,
		Messages: []chat.Message{{
			ID:        s.opts.IDs(),
			Role:      chat.RoleAI,
			Content:   s.tr.T("session.greeting"),
			Timestamp: now,
			Origin:    chat.OriginOptimistic,
		}},
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}

	// 新线程的远端日志为空，问候语就是完整视图，因此这里不触发刷新
	// A new thread has an empty remote log, so the seeded greeting is the whole
	// view and no refresh reaction is started here.
	s.mu.Lock()
	s.generations[sess.ID]++
	s.applyLocked(func(st *State) *State {
		next := st.withFront(sess)
		next.CurrentID = sess.ID
		return next
	})
	s.mu.Unlock()

	s.collapse()
	s.log.WithFields(logrus.Fields{"session": sess.ID, "thread": sess.RemoteThreadID}).Info("session created")
	return nil
}

// SwitchSession 切换当前会话；重复切换或未知 id 为空操作
// SwitchSession changes the current session. Loading its messages is a
// reaction to the change and runs in the background.
func (s *Store) SwitchSession(id string) {
	s.mu.Lock()
	if id == s.state.CurrentID {
		s.mu.Unlock()
		return
	}
	if _, ok := s.state.Sessions[id]; !ok {
		s.mu.Unlock()
		s.log.WithField("session", id).Debug("switch to unknown session ignored")
		return
	}
	s.applyLocked(func(st *State) *State { return st.withCurrent(id) })
	s.mu.Unlock()

	s.collapse()
	s.react(id)
}

// react 当前会话变化后在后台刷新该会话
// react refreshes the newly current session in the background
func (s *Store) react(id string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		_ = s.RefreshMessages(s.ctx, id)
	}()
}

func (s *Store) collapse() {
	if s.opts.Navigator != nil {
		s.opts.Navigator.CollapseIfNarrow()
	}
}

// RefreshMessages 用远端日志整体替换会话消息
// RefreshMessages replaces the session's messages with the projection of the
// remote log. Every mutation is keyed by sessionID; a refresh superseded by a
// newer one for the same session drops its result. Failures are recorded as a
// notice and returned for information only.
func (s *Store) RefreshMessages(ctx context.Context, sessionID string) error {
	return s.refresh(ctx, sessionID, true)
}

// refresh 发送后的对账不清空消息，乐观消息一直可见到替换完成
// refresh after a send keeps the messages visible, so the optimistic message
// stays on screen until the replacement lands.
func (s *Store) refresh(ctx context.Context, sessionID string, wipe bool) error {
	s.mu.Lock()
	sess, ok := s.state.Sessions[sessionID]
	if !ok || sess.RemoteThreadID == "" {
		s.mu.Unlock()
		return nil
	}
	s.generations[sessionID]++
	gen := s.generations[sessionID]
	threadID := sess.RemoteThreadID
	if wipe {
		s.applyLocked(func(st *State) *State { return st.withMessages(sessionID, nil) })
	}
	s.mu.Unlock()

	log := s.log.WithFields(logrus.Fields{"session": sessionID, "thread": threadID, "op": "refresh"})
	records, err := s.gw.FetchMessages(ctx, threadID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[sessionID] != gen {
		log.Debug("stale refresh dropped")
		return nil
	}
	if err != nil {
		log.WithError(err).Warn("refresh failed")
		s.applyLocked(func(st *State) *State {
			return st.withNotice(&Notice{
				Kind:      NoticeTransport,
				SessionID: sessionID,
				Text:      s.tr.T("notice.refresh_failed", sess.Title, err.Error()),
				Err:       err,
			})
		})
		return fmt.Errorf("refresh %s: %w", sessionID, err)
	}
	msgs := chat.Project(records, s.opts.IDs, s.opts.Now())
	s.applyLocked(func(st *State) *State { return st.withMessages(sessionID, msgs) })
	log.WithField("messages", len(msgs)).Debug("messages reconciled")
	return nil
}

// SendMessage 乐观插入后发送，完成后对账
// SendMessage appends an optimistic human message, dispatches it, and then
// reconciles the session. Without an active session it fails before anything
// else; blank text without audio is then a silent no-op.
func (s *Store) SendMessage(ctx context.Context, text, audioRef string) (SendOutcome, error) {
	audioRef = strings.TrimSpace(audioRef)
	blank := strings.TrimSpace(text) == ""

	s.mu.Lock()
	sessionID := s.state.CurrentID
	sess, ok := s.state.Sessions[sessionID]
	if !ok || sess.RemoteThreadID == "" {
		s.applyLocked(func(st *State) *State {
			return st.withNotice(&Notice{Kind: NoticePrecondition, SessionID: sessionID, Text: s.tr.T("notice.no_session"), Err: ErrNoActiveSession})
		})
		s.mu.Unlock()
		return OutcomeFailed, ErrNoActiveSession
	}
	if blank && audioRef == "" {
		s.mu.Unlock()
		return OutcomeSkipped, nil
	}
	threadID := sess.RemoteThreadID
	content := text
	if blank {
		content = s.tr.T("message.audio_sent")
	}
	optimistic := chat.Message{
		ID:             s.opts.IDs(),
		Role:           chat.RoleHuman,
		Content:        content,
		AudioReference: audioRef,
		Timestamp:      s.opts.Now(),
		Origin:         chat.OriginOptimistic,
	}
	s.applyLocked(func(st *State) *State {
		return st.withAppended(sessionID, optimistic).withAwaiting(sessionID, true)
	})
	s.mu.Unlock()
	// 对账刷新结束前保持 typing / the reply stays pending until the reconcile refresh ends
	defer s.apply(func(st *State) *State { return st.withAwaiting(sessionID, false) })

	outcome, err := s.dispatch(ctx, sessionID, threadID, text, audioRef)
	if err != nil {
		return outcome, err
	}
	if !s.wait(ctx, s.opts.ReconcileDelay) {
		return outcome, nil
	}
	_ = s.refresh(ctx, sessionID, false)
	return outcome, nil
}

func (s *Store) dispatch(ctx context.Context, sessionID, threadID, text, audioRef string) (SendOutcome, error) {
	log := s.log.WithFields(logrus.Fields{"session": sessionID, "thread": threadID, "op": "send"})
	res, err := s.gw.SendMessage(ctx, threadID, text, audioRef)
	if err != nil {
		log.WithError(err).Warn("send failed")
		s.apply(func(st *State) *State {
			return st.withNotice(&Notice{Kind: NoticeTransport, SessionID: sessionID, Text: s.tr.T("notice.send_failed", err.Error()), Err: err})
		})
		return OutcomeFailed, fmt.Errorf("send message: %w", err)
	}
	log.WithField("status", res.Status).Info("message sent")
	if res.Status == gateway.StatusInterrupted {
		return OutcomeInterrupted, nil
	}
	return OutcomeSuccess, nil
}

func (s *Store) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-s.ctx.Done():
		return false
	}
}

// RaiseNotice 记录外部组件（例如录音）的错误
// RaiseNotice records an error reported by a collaborator such as the recorder
func (s *Store) RaiseNotice(kind NoticeKind, text string, err error) {
	s.mu.Lock()
	sessionID := s.state.CurrentID
	s.applyLocked(func(st *State) *State {
		return st.withNotice(&Notice{Kind: kind, SessionID: sessionID, Text: text, Err: err})
	})
	s.mu.Unlock()
}

// DismissNotice 清除当前提示 / DismissNotice clears the visible notice
func (s *Store) DismissNotice() {
	s.apply(func(st *State) *State {
		if st.Notice == nil {
			return st
		}
		return st.withNotice(nil)
	})
}
