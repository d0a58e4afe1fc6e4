// Package factory normalizes, defaults, and validates raw message
// descriptors into hub.Message values. It never writes to the
// Store — callers (ingest plugins, the rule engine) pass the normalized
// message on to Store.AddMessage/AddOrUpdateMessage themselves.
package factory

import (
	"log/slog"
	"strings"

	"github.com/nugget/msghub/internal/hub"
)

// Factory builds normalized messages from raw descriptors.
type Factory struct {
	constants *hub.Constants
	logger    *slog.Logger
}

// New creates a Factory backed by the given Constants façade (used to
// validate kind against host-registered kinds in addition to the built-in
// set).
func New(constants *hub.Constants, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{constants: constants, logger: logger}
}

// Raw is an unvalidated message descriptor as an ingest plugin or the rule
// engine would build it; fields mirror hub.Message but omit anything the
// factory itself computes (StateChangedAt).
type Raw struct {
	Ref    string
	Kind   hub.Kind
	Level  hub.Level
	Origin string

	Title         string
	Text          string
	TextRecovered string
	Icon          string
	Details       hub.Details
	Attachments   []hub.Attachment

	State hub.LifecycleState // defaults to StateOpen if empty

	Timing hub.Timing

	Actions []hub.Action

	Audience hub.Audience
}

// CreateMessage normalizes raw into a hub.Message, applying defaults and
// validating invariants. Returns (nil, reason) on rejection; the caller is
// responsible for logging the reason if desired (CreateMessage also logs
// internally so a silently-dropped ingest event still shows up somewhere).
func (f *Factory) CreateMessage(raw Raw) (*hub.Message, string) {
	if strings.TrimSpace(raw.Ref) == "" {
		f.logger.Warn("factory: rejected message with empty ref")
		return nil, "empty ref"
	}

	level := raw.Level
	if !level.Valid() {
		f.logger.Warn("factory: rejected message with invalid level", "ref", raw.Ref, "level", raw.Level)
		return nil, "invalid level"
	}

	kind := raw.Kind
	if kind == "" {
		kind = hub.KindStatus
	}
	if f.constants != nil && !f.constants.KindValid(kind) {
		f.logger.Warn("factory: rejected message with unrecognized kind", "ref", raw.Ref, "kind", kind)
		return nil, "invalid kind"
	}

	for _, a := range raw.Actions {
		if a.ID == "" || !a.Type.Valid() {
			f.logger.Warn("factory: rejected message with malformed action", "ref", raw.Ref, "action", a)
			return nil, "malformed action"
		}
	}

	state := raw.State
	if state == "" {
		state = hub.StateOpen
	}

	m := &hub.Message{
		Ref:           strings.TrimSpace(raw.Ref),
		Kind:          kind,
		Level:         level,
		Origin:        raw.Origin,
		Title:         normalizeText(raw.Title),
		Text:          normalizeText(raw.Text),
		TextRecovered: normalizeText(raw.TextRecovered),
		Icon:          raw.Icon,
		Details:       raw.Details,
		Attachments:   raw.Attachments,
		Lifecycle:     hub.Lifecycle{State: state},
		Timing:        raw.Timing,
		Actions:       raw.Actions,
		Audience:      normalizeAudience(raw.Audience),
	}

	if err := hub.ValidateInvariants(m); err != nil {
		f.logger.Warn("factory: rejected message failing invariants", "ref", raw.Ref, "error", err)
		return nil, err.Error()
	}

	return m, ""
}

// normalizeText collapses CR/LF to LF, strips control characters, and
// trims surrounding whitespace.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' || !isControl(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}

// normalizeAudience trims and lowercases channel include/exclude
// entries.
func normalizeAudience(a hub.Audience) hub.Audience {
	a.Channels.Include = normalizeChannelList(a.Channels.Include)
	a.Channels.Exclude = normalizeChannelList(a.Channels.Exclude)
	return a
}

func normalizeChannelList(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}
