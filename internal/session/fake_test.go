package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"voicechat/internal/chat"
	"voicechat/internal/gateway"
)

var errBoom = errors.New("boom")

type sentCall struct {
	ThreadID, Text, AudioRef string
}

// fakeGateway 内存网关；gate 让指定调用阻塞直到测试放行
// fakeGateway is an in-memory gateway; gates block chosen calls until released
type fakeGateway struct {
	mu sync.Mutex

	threads []gateway.Thread
	listErr error

	created   []gateway.CreatedThread
	createErr error

	logs       map[string][]chat.RemoteMessage
	fetchErr   map[string]error
	fetchGates map[string][]chan struct{}
	fetchCalls map[string]int
	started    chan string

	sendStatus gateway.SendStatus
	sendErr    error
	sendGate   chan struct{}
	sends      []sentCall
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		logs:       map[string][]chat.RemoteMessage{},
		fetchErr:   map[string]error{},
		fetchGates: map[string][]chan struct{}{},
		fetchCalls: map[string]int{},
		started:    make(chan string, 64),
		sendStatus: gateway.StatusSuccess,
	}
}

func (f *fakeGateway) ListThreads(ctx context.Context) ([]gateway.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return slices.Clone(f.threads), nil
}

func (f *fakeGateway) CreateThread(ctx context.Context, title string) (gateway.CreatedThread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return gateway.CreatedThread{}, f.createErr
	}
	n := len(f.created) + 1
	c := gateway.CreatedThread{
		ChatID:    fmt.Sprintf("new-chat-%d", n),
		ThreadID:  fmt.Sprintf("new-thread-%d", n),
		Title:     title,
		CreatedAt: time.Date(2030, 1, 1, 0, 0, n, 0, time.UTC),
	}
	f.created = append(f.created, c)
	return c, nil
}

// gate 让 threadID 的下一次未分配 fetch 阻塞 / gate blocks the next unassigned fetch of threadID
func (f *fakeGateway) gate(threadID string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.fetchGates[threadID] = append(f.fetchGates[threadID], ch)
	return ch
}

func (f *fakeGateway) setLog(threadID string, log ...chat.RemoteMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[threadID] = log
}

func (f *fakeGateway) FetchMessages(ctx context.Context, threadID string) ([]chat.RemoteMessage, error) {
	f.mu.Lock()
	f.fetchCalls[threadID]++
	log := slices.Clone(f.logs[threadID])
	err := f.fetchErr[threadID]
	var gate chan struct{}
	if gates := f.fetchGates[threadID]; len(gates) > 0 {
		gate = gates[0]
		f.fetchGates[threadID] = gates[1:]
	}
	f.mu.Unlock()

	f.started <- threadID
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return log, nil
}

func (f *fakeGateway) SendMessage(ctx context.Context, threadID, text, audioRef string) (gateway.SendResult, error) {
	f.mu.Lock()
	f.sends = append(f.sends, sentCall{ThreadID: threadID, Text: text, AudioRef: audioRef})
	gate, status, err := f.sendGate, f.sendStatus, f.sendErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return gateway.SendResult{}, ctx.Err()
		}
	}
	if err != nil {
		return gateway.SendResult{}, err
	}
	return gateway.SendResult{Status: status}, nil
}

func (f *fakeGateway) calls(threadID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls[threadID]
}

func (f *fakeGateway) sent() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sends)
}

func human(text string) chat.RemoteMessage {
	return chat.RemoteMessage{Type: chat.RoleHuman, Content: chat.TextContent(text)}
}

func ai(text string) chat.RemoteMessage {
	return chat.RemoteMessage{Type: chat.RoleAI, Content: chat.TextContent(text)}
}

func thread(chatID, threadID string, created time.Time) gateway.Thread {
	return gateway.Thread{ChatID: chatID, ThreadID: threadID, CreatedAt: created, UpdatedAt: created}
}

// waitFor 轮询快照直到条件成立 / waitFor polls snapshots until cond holds
func waitFor(t *testing.T, s *Store, what string, cond func(*State) bool) *State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st := s.Snapshot()
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitStarted(t *testing.T, f *fakeGateway, threadID string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case got := <-f.started:
			if got == threadID {
				return
			}
		case <-timeout:
			t.Fatalf("fetch of %s never started", threadID)
		}
	}
}
