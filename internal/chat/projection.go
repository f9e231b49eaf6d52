package chat

import (
	"fmt"
	"maps"
	"time"
)

// IDFunc returns a fresh locally unique message id.
type IDFunc func() string

// Project maps a remote message log to display messages. System-role and
// unknown-role records are dropped; the audio reference is lifted out of the
// metadata. Ids are local only and change on every projection.
func Project(records []RemoteMessage, ids IDFunc, now time.Time) []Message {
	out := make([]Message, 0, len(records))
	for i, rec := range records {
		if rec.Type != RoleHuman && rec.Type != RoleAI {
			continue
		}
		msg := Message{
			Role:      rec.Type,
			Content:   rec.Text(),
			Timestamp: now,
			Origin:    OriginReconciled,
		}
		if ids != nil {
			msg.ID = ids()
		} else {
			msg.ID = fmt.Sprintf("msg_%d_%d", i, now.UnixNano())
		}
		msg.AudioReference, msg.Metadata = splitAudio(rec.AdditionalKwargs)
		out = append(out, msg)
	}
	return out
}

// splitAudio extracts the audio URL and returns the metadata without it.
func splitAudio(kwargs map[string]any) (string, map[string]any) {
	if len(kwargs) == 0 {
		return "", nil
	}
	url, _ := kwargs[AudioURLKey].(string)
	if url == "" {
		return "", maps.Clone(kwargs)
	}
	rest := make(map[string]any, len(kwargs)-1)
	for k, v := range kwargs {
		if k == AudioURLKey {
			continue
		}
		rest[k] = v
	}
	if len(rest) == 0 {
		rest = nil
	}
	return url, rest
}

// DefaultTitle is the label used for a thread the store did not title.
func DefaultTitle(chatID string) string {
	short := []rune(chatID)
	if len(short) > 8 {
		short = short[:8]
	}
	return "Chat " + string(short)
}
