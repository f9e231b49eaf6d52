package gateway

import (
	"encoding/json"
	"strings"
	"time"
)

// Thread 远端存储中的一个对话
// Thread is one conversation known to the remote store
type Thread struct {
	ChatID    string    `json:"chat_id"`
	ThreadID  string    `json:"thread_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UnmarshalJSON 容忍缺失或非 RFC3339 的时间戳（后端可能返回 Python isoformat）
// UnmarshalJSON tolerates missing or non-RFC3339 timestamps (the backend may send Python isoformat)
func (t *Thread) UnmarshalJSON(data []byte) error {
	var raw struct {
		ChatID    string `json:"chat_id"`
		ThreadID  string `json:"thread_id"`
		Title     string `json:"title"`
		CreatedAt string `json:"created_at"`
		UpdatedAt string `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.ChatID = raw.ChatID
	t.ThreadID = raw.ThreadID
	t.Title = raw.Title
	t.CreatedAt = parseTime(raw.CreatedAt)
	t.UpdatedAt = parseTime(raw.UpdatedAt)
	return nil
}

// CreatedThread createThread 的返回
// CreatedThread is the createThread result
type CreatedThread = Thread

// SendStatus 后端处理一条消息后的状态
// SendStatus is the backend status after processing a message
type SendStatus string

const (
	StatusSuccess     SendStatus = "success"
	StatusInterrupted SendStatus = "interrupted"
)

// SendResult sendMessage 的返回
// SendResult is the sendMessage result
type SendResult struct {
	Status SendStatus      `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Upload 上传后的远端文件信息
// Upload describes an uploaded artifact
type Upload struct {
	RemoteFilename string `json:"unique_filename"`
	Filename       string `json:"filename,omitempty"`
	URL            string `json:"url,omitempty"`
}

type sendRequest struct {
	Message   string `json:"message,omitempty"`
	AudioPath string `json:"audio_path,omitempty"`
}

type createRequest struct {
	Title string `json:"title"`
}

// envelope 后端统一响应外壳 {status, message, data}
// envelope is the backend response wrapper {status, message, data}
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}
