package storage

import (
	"time"

	"voicechat/internal/chat"
)

// Chat 一个对话及其消息日志线程
// Chat is one conversation and the thread holding its message log
type Chat struct {
	ID        string
	ThreadID  string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message 线程日志中的一条记录
// Message is one record of a thread log
type Message struct {
	Seq       int
	Role      chat.Role
	Content   string
	Kwargs    map[string]any
	CreatedAt time.Time
}

// File 已上传的文件
// File is an uploaded artifact kept on disk
type File struct {
	Name      string
	Original  string
	MimeType  string
	Size      int64
	Path      string
	CreatedAt time.Time
}
