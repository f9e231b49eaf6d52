package session

import (
	"maps"
	"slices"

	"voicechat/internal/chat"
)

// State 会话存储在某一时刻的不可变快照
// State is an immutable snapshot of the session store. Every mutation builds a
// new State; callers must treat the maps and slices they read as read-only.
type State struct {
	Sessions  map[string]chat.ChatSession
	Order     []string
	CurrentID string

	LoadingSessionList bool
	CreatingSession    bool
	awaiting           map[string]int

	Notice *Notice
}

func emptyState() *State {
	return &State{Sessions: map[string]chat.ChatSession{}}
}

// clone 浅拷贝；需要修改的 map 由调用者再拷贝
// clone is shallow; callers copy whichever map they are about to change
func (s *State) clone() *State {
	next := *s
	return &next
}

// Current 返回当前会话 / Current returns the current session
func (s *State) Current() (chat.ChatSession, bool) {
	return s.Session(s.CurrentID)
}

func (s *State) Session(id string) (chat.ChatSession, bool) {
	if id == "" {
		return chat.ChatSession{}, false
	}
	sess, ok := s.Sessions[id]
	return sess, ok
}

// Ordered 按显示顺序返回会话 / Ordered returns sessions in display order
func (s *State) Ordered() []chat.ChatSession {
	out := make([]chat.ChatSession, 0, len(s.Order))
	for _, id := range s.Order {
		if sess, ok := s.Sessions[id]; ok {
			out = append(out, sess)
		}
	}
	return out
}

// AwaitingReply 该会话是否有发送中的消息 / AwaitingReply reports an in-flight send for the session
func (s *State) AwaitingReply(id string) bool {
	return s.awaiting[id] > 0
}

func (s *State) withSession(sess chat.ChatSession) *State {
	next := s.clone()
	next.Sessions = maps.Clone(s.Sessions)
	next.Sessions[sess.ID] = sess
	return next
}

func (s *State) withMessages(id string, msgs []chat.Message) *State {
	sess, ok := s.Sessions[id]
	if !ok {
		return s
	}
	sess.Messages = msgs
	return s.withSession(sess)
}

func (s *State) withAppended(id string, msg chat.Message) *State {
	sess, ok := s.Sessions[id]
	if !ok {
		return s
	}
	msgs := make([]chat.Message, 0, len(sess.Messages)+1)
	msgs = append(msgs, sess.Messages...)
	sess.Messages = append(msgs, msg)
	return s.withSession(sess)
}

// withFront 插入或移动会话到显示顺序最前
// withFront inserts the session, or moves it, to the front of the display order
func (s *State) withFront(sess chat.ChatSession) *State {
	next := s.withSession(sess)
	order := make([]string, 0, len(s.Order)+1)
	order = append(order, sess.ID)
	for _, id := range s.Order {
		if id != sess.ID {
			order = append(order, id)
		}
	}
	next.Order = order
	return next
}

// withInstalled 追加远端列表中尚未知道的会话
// withInstalled appends sessions from a remote listing that are not known yet
func (s *State) withInstalled(list []chat.ChatSession) *State {
	next := s.clone()
	next.Sessions = maps.Clone(s.Sessions)
	next.Order = slices.Clone(s.Order)
	for _, sess := range list {
		if _, dup := next.Sessions[sess.ID]; dup {
			continue
		}
		next.Sessions[sess.ID] = sess
		next.Order = append(next.Order, sess.ID)
	}
	return next
}

func (s *State) withCurrent(id string) *State {
	next := s.clone()
	next.CurrentID = id
	return next
}

func (s *State) withAwaiting(id string, on bool) *State {
	next := s.clone()
	next.awaiting = maps.Clone(s.awaiting)
	if next.awaiting == nil {
		next.awaiting = map[string]int{}
	}
	// 每个发送各计一次，重叠发送互不清除 / one count per send so overlapping sends never clear each other
	if on {
		next.awaiting[id]++
	} else if next.awaiting[id] > 1 {
		next.awaiting[id]--
	} else {
		delete(next.awaiting, id)
	}
	return next
}

func (s *State) withNotice(n *Notice) *State {
	next := s.clone()
	next.Notice = n
	return next
}
