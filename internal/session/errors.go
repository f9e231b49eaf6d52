package session

import "errors"

// ErrNoActiveSession 没有可发送的当前会话（前置条件错误，不发起网络请求）
// ErrNoActiveSession means there is no current session with a thread to send to
var ErrNoActiveSession = errors.New("no active session")

// NoticeKind 错误分类 / NoticeKind classifies a user-visible error
type NoticeKind string

const (
	NoticeTransport    NoticeKind = "transport"
	NoticePrecondition NoticeKind = "precondition"
	NoticeDevice       NoticeKind = "device"
)

// Notice 一条可关闭的用户可见错误
// Notice is one dismissible user-visible error
type Notice struct {
	Kind      NoticeKind
	SessionID string
	Text      string
	Err       error
}

// SendOutcome 一次发送的结果 / SendOutcome is how a send ended
type SendOutcome int

const (
	OutcomeSkipped SendOutcome = iota
	OutcomeSuccess
	OutcomeInterrupted
	OutcomeFailed
)

func (o SendOutcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSuccess:
		return "success"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}
