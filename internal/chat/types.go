package chat

import (
	"encoding/json"
	"time"
)

// Role is the author of a conversation turn.
type Role string

const (
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleSystem Role = "system" // wire only, never displayed
)

// Origin tells a locally synthesized message apart from one returned by the store.
type Origin string

const (
	OriginOptimistic Origin = "optimistic"
	OriginReconciled Origin = "reconciled"
)

// AudioURLKey is the metadata key the remote store uses for an attached recording.
const AudioURLKey = "file_url"

// Message is one displayed turn.
type Message struct {
	ID             string         `json:"id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content,omitempty"`
	AudioReference string         `json:"audio_reference,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Origin         Origin         `json:"origin"`
}

// HasAudio reports whether the message carries a playable recording.
func (m Message) HasAudio() bool {
	return m.AudioReference != ""
}

// ChatSession is one conversation thread as known to the client.
// Messages is either empty or a complete reconciled snapshot.
type ChatSession struct {
	ID             string    `json:"id"`
	RemoteThreadID string    `json:"remote_thread_id"`
	Title          string    `json:"title"`
	Messages       []Message `json:"messages"`
	CreatedAt      time.Time `json:"created_at"`
}

// RemoteMessage is a message record as stored by the remote chat store.
type RemoteMessage struct {
	Type             Role            `json:"type"`
	Content          json.RawMessage `json:"content"`
	AdditionalKwargs map[string]any  `json:"additional_kwargs,omitempty"`
}

// Text returns the record content flattened to display text.
func (r RemoteMessage) Text() string {
	return ParseContent(r.Content)
}
