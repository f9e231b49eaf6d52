package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicechat/internal/chat"
	"voicechat/internal/config"
	"voicechat/internal/gateway"
	"voicechat/internal/i18n"
	"voicechat/internal/responder"
	"voicechat/internal/session"
	"voicechat/internal/storage"
)

type failingResponder struct{}

func (failingResponder) Name() string { return "failing" }

func (failingResponder) Reply(context.Context, []responder.Turn) (string, error) {
	return "", errors.New("model offline")
}

type recordingResponder struct {
	history []responder.Turn
}

func (r *recordingResponder) Name() string { return "recording" }

func (r *recordingResponder) Reply(_ context.Context, history []responder.Turn) (string, error) {
	r.history = history
	return "noted", nil
}

func newTestServer(t *testing.T, resp responder.Responder) (*httptest.Server, storage.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStore(filepath.Join(dir, "chatd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv, err := New(store, resp, Options{UploadDir: filepath.Join(dir, "uploads")})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func newClient(ts *httptest.Server) *gateway.Client {
	return gateway.NewClient(config.GatewayConfig{BaseURL: ts.URL, TimeoutMS: 5000})
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestListChatsEnvelope(t *testing.T) {
	ts, store := newTestServer(t, nil)
	_, err := store.CreateChat(context.Background(), "first")
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/chats/get-all")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "success", body["status"])
	data, ok := body["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 1)
	assert.Equal(t, "first", data[0].(map[string]any)["title"])
}

func TestSendTextStoresReply(t *testing.T) {
	ts, _ := newTestServer(t, responder.Echo{})
	gw := newClient(ts)
	ctx := context.Background()

	created, err := gw.CreateThread(ctx, "Chat")
	require.NoError(t, err)
	res, err := gw.SendMessage(ctx, created.ThreadID, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusSuccess, res.Status)

	log, err := gw.FetchMessages(ctx, created.ThreadID)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, chat.RoleHuman, log[0].Type)
	assert.Equal(t, "hello", log[0].Text())
	assert.Equal(t, chat.RoleAI, log[1].Type)
	assert.Equal(t, "You said: hello", log[1].Text())
}

func TestSendAudioOnlyIsInterrupted(t *testing.T) {
	ts, _ := newTestServer(t, failingResponder{})
	gw := newClient(ts)
	ctx := context.Background()

	created, err := gw.CreateThread(ctx, "")
	require.NoError(t, err)
	res, err := gw.SendMessage(ctx, created.ThreadID, "", "http://files/a.wav")
	require.NoError(t, err, "the responder is not consulted for audio-only messages")
	assert.Equal(t, gateway.StatusInterrupted, res.Status)

	log, err := gw.FetchMessages(ctx, created.ThreadID)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, "http://files/a.wav", log[0].AdditionalKwargs[chat.AudioURLKey])
	assert.Equal(t, chat.RoleSystem, log[1].Type)
	assert.Equal(t, awaitingTranscription, log[1].Text())

	shown := chat.Project(log, nil, time.Now())
	require.Len(t, shown, 1, "system records are not displayed")
	assert.Equal(t, "http://files/a.wav", shown[0].AudioReference)
}

func TestSendPassesHistoryWithoutSystemRecords(t *testing.T) {
	rec := &recordingResponder{}
	ts, _ := newTestServer(t, rec)
	gw := newClient(ts)
	ctx := context.Background()

	created, err := gw.CreateThread(ctx, "")
	require.NoError(t, err)
	_, err = gw.SendMessage(ctx, created.ThreadID, "", "http://files/a.wav")
	require.NoError(t, err)
	_, err = gw.SendMessage(ctx, created.ThreadID, "what did I say?", "")
	require.NoError(t, err)

	require.Len(t, rec.history, 2)
	assert.Equal(t, "http://files/a.wav", rec.history[0].AudioURL)
	assert.Equal(t, "what did I say?", rec.history[1].Content)
}

func TestSendErrors(t *testing.T) {
	ts, _ := newTestServer(t, failingResponder{})
	gw := newClient(ts)
	ctx := context.Background()

	_, err := gw.SendMessage(ctx, "missing", "hi", "")
	var statusErr *gateway.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	created, err := gw.CreateThread(ctx, "")
	require.NoError(t, err)
	_, err = gw.SendMessage(ctx, created.ThreadID, "hi", "")
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)

	resp, err := http.Post(ts.URL+"/chats/threads/"+created.ThreadID+"/messages", "application/json", strings.NewReader(`{"message":"  "}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "error", decode(t, resp)["status"])
}

func TestFetchUnknownThread(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	_, err := newClient(ts).FetchMessages(context.Background(), "nope")
	var statusErr *gateway.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "404 Not Found", statusErr.Status)
}

func TestUploadAndDownload(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	gw := gateway.NewClient(config.GatewayConfig{BaseURL: ts.URL, TimeoutMS: 5000})
	payload := []byte("RIFF....WAVEfmt ")

	up, err := gw.UploadAudioArtifact(context.Background(), payload, "recording-2024-01-02T03-04-05-000Z.wav")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(up.RemoteFilename, ".wav"), up.RemoteFilename)
	assert.Equal(t, "recording-2024-01-02T03-04-05-000Z.wav", up.Filename)

	resp, err := http.Get(gw.DownloadURL(up.RemoteFilename))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	resp, err = http.Get(ts.URL + "/files/download/unknown.wav")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadRequiresFileField(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/files/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUniqueFilename(t *testing.T) {
	now := time.Unix(1700000000, 0)
	a := uniqueFilename("Clip.WAV", now)
	b := uniqueFilename("Clip.WAV", now)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "1700000000_"))
	assert.True(t, strings.HasSuffix(a, ".wav"))
	assert.NotContains(t, uniqueFilename("noext", now), ".")
}

// TestSessionStoreAgainstServer 客户端会话存储与开发服务器端到端
func TestSessionStoreAgainstServer(t *testing.T) {
	ts, _ := newTestServer(t, responder.Echo{})
	store := session.New(newClient(ts), session.Options{I18n: i18n.New("en")})
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Initialize(ctx))
	cur, ok := store.Snapshot().Current()
	require.True(t, ok)
	require.Len(t, cur.Messages, 1, "fresh store starts with the greeting")

	outcome, err := store.SendMessage(ctx, "ping", "")
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeSuccess, outcome)

	cur, _ = store.Snapshot().Current()
	require.Len(t, cur.Messages, 2)
	assert.Equal(t, "ping", cur.Messages[0].Content)
	assert.Equal(t, chat.OriginReconciled, cur.Messages[0].Origin)
	assert.Equal(t, "You said: ping", cur.Messages[1].Content)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewSQLiteStore(filepath.Join(dir, "chatd.db"))
	require.NoError(t, err)
	defer store.Close()
	srv, err := New(store, nil, Options{UploadDir: filepath.Join(dir, "uploads")})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeListener(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/chats/get-all")
	require.NoError(t, err)
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
