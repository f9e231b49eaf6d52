package chat

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func seqIDs() IDFunc {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("m%d", n)
	}
}

func TestProject_FiltersSystemAndExtractsAudio(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	records := []RemoteMessage{
		{Type: RoleSystem, Content: TextContent("you are an accountant")},
		{Type: RoleHuman, Content: TextContent(""), AdditionalKwargs: map[string]any{
			AudioURLKey: "https://files.example/rec.wav",
			"duration":  3.5,
		}},
		{Type: RoleAI, Content: json.RawMessage(`[{"type":"reasoning","text":"hmm"},{"type":"text","text":"Got it."}]`)},
		{Type: "tool", Content: TextContent("ignored")},
	}

	got := Project(records, seqIDs(), now)
	want := []Message{
		{
			ID:             "m1",
			Role:           RoleHuman,
			AudioReference: "https://files.example/rec.wav",
			Metadata:       map[string]any{"duration": 3.5},
			Timestamp:      now,
			Origin:         OriginReconciled,
		},
		{
			ID:        "m2",
			Role:      RoleAI,
			Content:   "Got it.",
			Timestamp: now,
			Origin:    OriginReconciled,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Project mismatch (-want +got):\n%s", diff)
	}
}

func TestProject_DoesNotMutateRemoteMetadata(t *testing.T) {
	kwargs := map[string]any{AudioURLKey: "u", "k": "v"}
	Project([]RemoteMessage{{Type: RoleHuman, AdditionalKwargs: kwargs}}, seqIDs(), time.Now())
	if _, ok := kwargs[AudioURLKey]; !ok {
		t.Fatal("projection must not edit the remote record")
	}
}

func TestProject_IdempotentApartFromIDs(t *testing.T) {
	records := []RemoteMessage{
		{Type: RoleHuman, Content: TextContent("hello")},
		{Type: RoleAI, Content: TextContent("hi"), AdditionalKwargs: map[string]any{"model": "x"}},
	}
	now := time.Now()
	first := Project(records, seqIDs(), now)
	second := Project(records, func() string { return "other" }, now)
	if diff := cmp.Diff(first, second, cmpopts.IgnoreFields(Message{}, "ID")); diff != "" {
		t.Fatalf("projection not stable (-first +second):\n%s", diff)
	}
}

func TestProject_FallbackIDsUnique(t *testing.T) {
	records := []RemoteMessage{
		{Type: RoleHuman, Content: TextContent("a")},
		{Type: RoleHuman, Content: TextContent("b")},
	}
	got := Project(records, nil, time.Now())
	if got[0].ID == got[1].ID {
		t.Fatalf("ids should differ: %q", got[0].ID)
	}
}

func TestParseContent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain string", raw: `"hello"`, want: "hello"},
		{name: "null", raw: `null`, want: ""},
		{name: "typed parts", raw: `[{"type":"text","text":"a"},{"type":"text","text":"b"}]`, want: "ab"},
		{name: "nested object", raw: `{"content":[{"type":"text","text":"inner"}]}`, want: "inner"},
		{name: "unknown object", raw: `{"foo":"bar"}`, want: `{"foo":"bar"}`},
		{name: "invalid json", raw: `not-json`, want: "not-json"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseContent(json.RawMessage(tc.raw)); got != tc.want {
				t.Fatalf("ParseContent(%s)=%q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestDefaultTitle(t *testing.T) {
	if got := DefaultTitle("0123456789abcdef"); got != "Chat 01234567" {
		t.Fatalf("DefaultTitle=%q", got)
	}
	if got := DefaultTitle("abc"); got != "Chat abc" {
		t.Fatalf("DefaultTitle short=%q", got)
	}
}
