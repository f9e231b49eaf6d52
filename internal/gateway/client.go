package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voicechat/internal/chat"
	"voicechat/internal/config"
)

// maxErrorBody 错误响应体保留的最大字节数 / Max bytes of an error body kept in StatusError
const maxErrorBody = 512

// Client 远端对话存储的无状态 HTTP 网关
// Client is the stateless HTTP gateway to the remote chat store
type Client struct {
	baseURL      string
	downloadBase string
	cookie       string
	token        string
	httpClient   *http.Client
}

// Option 自定义 Client / Option customizes a Client
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client / WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithDownloadBase 设置录音下载地址前缀 / WithDownloadBase sets the recording download prefix
func WithDownloadBase(base string) Option {
	return func(c *Client) {
		c.downloadBase = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

func NewClient(cfg config.GatewayConfig, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	c := &Client{
		baseURL:      base,
		downloadBase: base + "/files/download",
		cookie:       strings.TrimSpace(cfg.Cookie),
		token:        strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL 返回网关根地址 / BaseURL returns the gateway root
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) ListThreads(ctx context.Context) ([]Thread, error) {
	var threads []Thread
	if err := c.doJSON(ctx, "list threads", http.MethodGet, "/chats/get-all", nil, &threads); err != nil {
		return nil, err
	}
	return threads, nil
}

func (c *Client) CreateThread(ctx context.Context, title string) (CreatedThread, error) {
	var created CreatedThread
	if err := c.doJSON(ctx, "create thread", http.MethodPost, "/chats/create-thread", createRequest{Title: title}, &created); err != nil {
		return CreatedThread{}, err
	}
	if strings.TrimSpace(created.ChatID) == "" || strings.TrimSpace(created.ThreadID) == "" {
		return CreatedThread{}, &TransportError{Op: "create thread", Err: fmt.Errorf("response is missing chat_id or thread_id")}
	}
	if created.Title == "" {
		created.Title = title
	}
	return created, nil
}

func (c *Client) FetchMessages(ctx context.Context, threadID string) ([]chat.RemoteMessage, error) {
	var records []chat.RemoteMessage
	path := "/chats/threads/" + url.PathEscape(threadID) + "/messages"
	if err := c.doJSON(ctx, "fetch messages", http.MethodGet, path, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// SendMessage 只携带非空字段：空白文本与空音频引用都不会发送
// SendMessage only includes non-empty fields: blank text and empty audio refs are omitted
func (c *Client) SendMessage(ctx context.Context, threadID, text, audioRef string) (SendResult, error) {
	payload := sendRequest{AudioPath: strings.TrimSpace(audioRef)}
	if strings.TrimSpace(text) != "" {
		payload.Message = text
	}

	const op = "send message"
	path := "/chats/threads/" + url.PathEscape(threadID) + "/messages"
	data, err := c.do(ctx, op, http.MethodPost, path, payload)
	if err != nil {
		return SendResult{}, err
	}
	var result SendResult
	if err := json.Unmarshal(data, &result); err != nil {
		return SendResult{}, &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	switch SendStatus(strings.ToLower(strings.TrimSpace(string(result.Status)))) {
	case "", StatusSuccess:
		result.Status = StatusSuccess
	case StatusInterrupted:
		result.Status = StatusInterrupted
	default:
		return SendResult{}, &StatusError{Op: op, StatusCode: http.StatusOK, Status: "backend status " + string(result.Status)}
	}
	return result, nil
}

// UploadAudioArtifact 以 multipart 字段 file 上传录音
// UploadAudioArtifact uploads a recording as multipart field "file"
func (c *Client) UploadAudioArtifact(ctx context.Context, data []byte, filename string) (Upload, error) {
	const op = "upload audio"
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Upload{}, fmt.Errorf("%s: create form: %w", op, err)
	}
	if _, err := part.Write(data); err != nil {
		return Upload{}, fmt.Errorf("%s: write form: %w", op, err)
	}
	if err := mw.Close(); err != nil {
		return Upload{}, fmt.Errorf("%s: close form: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files/upload", &body)
	if err != nil {
		return Upload{}, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	respBody, err := c.send(op, req)
	if err != nil {
		return Upload{}, err
	}

	var upload Upload
	if err := decodeEnvelope(respBody, &upload); err != nil {
		return Upload{}, &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if strings.TrimSpace(upload.RemoteFilename) == "" {
		return Upload{}, &TransportError{Op: op, Err: fmt.Errorf("backend did not return a valid filename for the audio")}
	}
	return upload, nil
}

// DownloadURL 由远端文件名确定性地推导可播放地址
// DownloadURL deterministically derives the playable URL from a remote filename
func (c *Client) DownloadURL(remoteFilename string) string {
	return c.downloadBase + "/" + url.PathEscape(remoteFilename)
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	data, err := c.do(ctx, op, method, path, in)
	if err != nil {
		return err
	}
	if err := decodeEnvelope(data, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(op, req)
}

func (c *Client) send(op string, req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := strings.TrimSpace(string(data))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Status: resp.Status, Body: text}
	}
	if readErr != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read response: %w", readErr)}
	}
	return data, nil
}

// decodeEnvelope 同时接受裸 JSON 与 {status, message, data} 外壳
// decodeEnvelope accepts both bare JSON and the {status, message, data} wrapper
func decodeEnvelope(data []byte, out any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err == nil && len(env.Data) > 0 {
			// data: null 表示空结果 / a null payload decodes as the zero value
			if string(bytes.TrimSpace(env.Data)) == "null" {
				return nil
			}
			return json.Unmarshal(env.Data, out)
		}
	}
	return json.Unmarshal(trimmed, out)
}
