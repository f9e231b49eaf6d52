package repl

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"voicechat/internal/chat"
	"voicechat/internal/gateway"
	"voicechat/internal/i18n"
	"voicechat/internal/session"
)

type stubGateway struct {
	mu    sync.Mutex
	logs  map[string][]chat.RemoteMessage
	sends []string
}

func (g *stubGateway) ListThreads(context.Context) ([]gateway.Thread, error) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []gateway.Thread{
		{ChatID: "a", ThreadID: "ta", Title: "Alpha", CreatedAt: base.Add(time.Hour)},
		{ChatID: "b", ThreadID: "tb", Title: "Beta", CreatedAt: base},
	}, nil
}

func (g *stubGateway) CreateThread(_ context.Context, title string) (gateway.CreatedThread, error) {
	return gateway.CreatedThread{ChatID: "c", ThreadID: "tc", Title: title, CreatedAt: time.Now()}, nil
}

func (g *stubGateway) FetchMessages(_ context.Context, threadID string) ([]chat.RemoteMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.logs[threadID], nil
}

func (g *stubGateway) SendMessage(_ context.Context, threadID, text, _ string) (gateway.SendResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sends = append(g.sends, threadID+":"+text)
	g.logs[threadID] = append(g.logs[threadID],
		chat.RemoteMessage{Type: chat.RoleHuman, Content: chat.TextContent(text)},
		chat.RemoteMessage{Type: chat.RoleAI, Content: chat.TextContent("re: "+text)},
	)
	return gateway.SendResult{Status: gateway.StatusSuccess}, nil
}

type stubRecorder struct {
	recording bool
	pending   []string
}

func (r *stubRecorder) Recording() bool { return r.recording }

func (r *stubRecorder) Start(context.Context) error {
	r.recording = true
	return nil
}

func (r *stubRecorder) Stop(_ context.Context, pending string) (session.SendOutcome, error) {
	r.recording = false
	r.pending = append(r.pending, pending)
	return session.OutcomeSuccess, nil
}

func runScript(t *testing.T, script string, rec Recorder) (string, *stubGateway) {
	t.Helper()
	gw := &stubGateway{logs: map[string][]chat.RemoteMessage{
		"ta": {{Type: chat.RoleAI, Content: chat.TextContent("alpha log")}},
		"tb": {{Type: chat.RoleAI, Content: chat.TextContent("beta log")}},
	}}
	store := session.New(gw, session.Options{I18n: i18n.New("en")})
	defer store.Close()

	var out bytes.Buffer
	loop := NewLoop(Options{
		Sessions: store,
		Recorder: rec,
		Input:    NewBasicLineInput(strings.NewReader(script), nil),
		Out:      &out,
		I18n:     i18n.New("en"),
	})
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String(), gw
}

func TestLoopSendsLinesToCurrentSession(t *testing.T) {
	out, gw := runScript(t, "hello\n/quit\n", nil)
	if len(gw.sends) != 1 || gw.sends[0] != "ta:hello" {
		t.Fatalf("sends = %v", gw.sends)
	}
	for _, want := range []string{"You: hello", "Assistant: re: hello", "bye"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLoopListAndSwitch(t *testing.T) {
	out, _ := runScript(t, "/list\n/switch 2\n", nil)
	if !strings.Contains(out, "*  1. Alpha") || !strings.Contains(out, "   2. Beta") {
		t.Fatalf("list output wrong:\n%s", out)
	}
	if !strings.Contains(out, "── Beta (1 messages)") || !strings.Contains(out, "beta log") {
		t.Fatalf("switch should print Beta:\n%s", out)
	}
}

func TestLoopCommandErrors(t *testing.T) {
	out, gw := runScript(t, "/switch 9\n/bogus\n   \n", nil)
	if !strings.Contains(out, `no session matches "9"`) {
		t.Fatalf("missing switch error:\n%s", out)
	}
	if !strings.Contains(out, "unknown command: /bogus") {
		t.Fatalf("missing unknown command:\n%s", out)
	}
	if len(gw.sends) != 0 {
		t.Fatalf("nothing should be sent, got %v", gw.sends)
	}
}

func TestLoopNewSession(t *testing.T) {
	out, _ := runScript(t, "/new\n", nil)
	if !strings.Contains(out, "Hello! How can I assist you today?") {
		t.Fatalf("new session should show the greeting:\n%s", out)
	}
}

func TestLoopRecordAndStop(t *testing.T) {
	rec := &stubRecorder{}
	out, _ := runScript(t, "/record\n/stop look at this\n", rec)
	if !strings.Contains(out, "Recording") {
		t.Fatalf("missing recording notice:\n%s", out)
	}
	if len(rec.pending) != 1 || rec.pending[0] != "look at this" {
		t.Fatalf("stop pending = %v", rec.pending)
	}

	out, _ = runScript(t, "/record\n", nil)
	if !strings.Contains(out, "Could not access microphone") {
		t.Fatalf("recording without a device should warn:\n%s", out)
	}
}

func TestBasicLineInputTrimsAndHandlesEOF(t *testing.T) {
	var prompt bytes.Buffer
	in := NewBasicLineInput(strings.NewReader("one\r\ntwo"), &prompt)
	line, err := in.ReadLine("> ")
	if err != nil || line != "one" {
		t.Fatalf("first line = %q, %v", line, err)
	}
	line, err = in.ReadLine("> ")
	if err != nil || line != "two" {
		t.Fatalf("unterminated last line = %q, %v", line, err)
	}
	if _, err := in.ReadLine("> "); !isEndOfInput(err) {
		t.Fatalf("want EOF, got %v", err)
	}
	if prompt.String() != "> > > " {
		t.Fatalf("prompts = %q", prompt.String())
	}
}
