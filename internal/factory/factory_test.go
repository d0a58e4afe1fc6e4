package factory

import (
	"testing"

	"github.com/nugget/msghub/internal/hub"
)

func newFactory() *Factory {
	c := hub.NewConstants()
	return New(c, nil)
}

func TestCreateMessage_Defaults(t *testing.T) {
	f := newFactory()
	m, reason := f.CreateMessage(Raw{Ref: "a", Level: hub.LevelWarning})
	if m == nil {
		t.Fatalf("unexpected rejection: %s", reason)
	}
	if m.Kind != hub.KindStatus {
		t.Errorf("kind = %v, want default status", m.Kind)
	}
	if m.Lifecycle.State != hub.StateOpen {
		t.Errorf("state = %v, want open", m.Lifecycle.State)
	}
}

func TestCreateMessage_RejectsEmptyRef(t *testing.T) {
	f := newFactory()
	m, reason := f.CreateMessage(Raw{Ref: "  ", Level: hub.LevelInfo})
	if m != nil || reason == "" {
		t.Fatalf("expected rejection for empty ref, got m=%v reason=%q", m, reason)
	}
}

func TestCreateMessage_RejectsBadLevel(t *testing.T) {
	f := newFactory()
	m, reason := f.CreateMessage(Raw{Ref: "a", Level: hub.Level(999)})
	if m != nil || reason == "" {
		t.Fatal("expected rejection for invalid level")
	}
}

func TestCreateMessage_RejectsUnknownKind(t *testing.T) {
	f := newFactory()
	m, reason := f.CreateMessage(Raw{Ref: "a", Kind: hub.Kind("nonsense"), Level: hub.LevelInfo})
	if m != nil || reason == "" {
		t.Fatal("expected rejection for unrecognized kind")
	}
}

func TestCreateMessage_AcceptsRegisteredKind(t *testing.T) {
	c := hub.NewConstants()
	c.RegisterKind("custom-widget")
	f := New(c, nil)
	m, reason := f.CreateMessage(Raw{Ref: "a", Kind: hub.Kind("custom-widget"), Level: hub.LevelInfo})
	if m == nil {
		t.Fatalf("unexpected rejection: %s", reason)
	}
}

func TestCreateMessage_RejectsMalformedAction(t *testing.T) {
	f := newFactory()
	m, reason := f.CreateMessage(Raw{
		Ref:     "a",
		Level:   hub.LevelInfo,
		Actions: []hub.Action{{ID: "", Type: hub.ActionAck}},
	})
	if m != nil || reason == "" {
		t.Fatal("expected rejection for action with empty id")
	}
}

func TestCreateMessage_NormalizesWhitespaceAndControlChars(t *testing.T) {
	f := newFactory()
	m, reason := f.CreateMessage(Raw{
		Ref:   "a",
		Level: hub.LevelInfo,
		Title: "  hello\x00 world\r\n  ",
	})
	if m == nil {
		t.Fatalf("unexpected rejection: %s", reason)
	}
	if m.Title != "hello world" {
		t.Errorf("title = %q, want %q", m.Title, "hello world")
	}
}

func TestCreateMessage_NormalizesChannels(t *testing.T) {
	f := newFactory()
	m, _ := f.CreateMessage(Raw{
		Ref:   "a",
		Level: hub.LevelInfo,
		Audience: hub.Audience{
			Channels: hub.Channels{Include: []string{"  Kitchen ", "MOBILE"}},
		},
	})
	if m.Audience.Channels.Include[0] != "kitchen" || m.Audience.Channels.Include[1] != "mobile" {
		t.Errorf("channels not normalized: %v", m.Audience.Channels.Include)
	}
}
