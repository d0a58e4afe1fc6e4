package hub

import "github.com/nugget/msghub/internal/jsonmap"

// Message is the central entity of the hub, keyed by a unique,
// caller-supplied Ref.
type Message struct {
	Ref    string `json:"ref"`
	Kind   Kind   `json:"kind"`
	Level  Level  `json:"level"`
	Origin string `json:"origin"`

	Title         string       `json:"title"`
	Text          string       `json:"text"`
	TextRecovered string       `json:"textRecovered,omitempty"`
	Icon          string       `json:"icon,omitempty"`
	Details       Details      `json:"details"`
	Attachments   []Attachment `json:"attachments,omitempty"`

	Lifecycle Lifecycle `json:"lifecycle"`
	Timing    Timing    `json:"timing"`

	Actions []Action `json:"actions,omitempty"`

	Metrics  jsonmap.Map `json:"metrics"`
	Progress Progress    `json:"progress"`

	Audience Audience `json:"audience"`
}

// Details holds the free-form presentation fields shown alongside a
// message's title and text.
type Details struct {
	Location    string   `json:"location,omitempty"`
	Task        string   `json:"task,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Tools       []string `json:"tools,omitempty"`
	Consumables []string `json:"consumables,omitempty"`
}

// Attachment is an opaque presentation attachment (e.g. an image or a
// QR code rendered by a notify sink); the core does not interpret Data.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Lifecycle tracks the message's current workflow state.
type Lifecycle struct {
	State          LifecycleState `json:"state"`
	StateChangedAt int64          `json:"stateChangedAt"`
	StateChangedBy string         `json:"stateChangedBy,omitempty"`
}

// Timing holds every epoch-ms timestamp and ms-duration field relevant to
// scheduling. The nullable timestamps are *int64 and a nil pointer means
// "null" — Go has no first-class optional-int, so Timing tracks presence
// explicitly rather than overloading zero. RemindEvery and Cooldown are
// plain values where zero means unset.
type Timing struct {
	StartAt      *int64 `json:"startAt,omitempty"`
	NotifyAt     *int64 `json:"notifyAt,omitempty"`
	RemindEvery  int64  `json:"remindEvery,omitempty"`
	Cooldown     int64  `json:"cooldown,omitempty"`
	TimeBudget   *int64 `json:"timeBudget,omitempty"`
	DueAt        *int64 `json:"dueAt,omitempty"`
	ExpiresAt    *int64 `json:"expiresAt,omitempty"`
}

// Action is one entry in a message's actions[] whitelist.
type Action struct {
	ID      string         `json:"id"`
	Type    ActionType     `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Progress tracks percent-complete for task-kind messages.
type Progress struct {
	Percentage int    `json:"percentage,omitempty"`
	StartedAt  *int64 `json:"startedAt,omitempty"`
	FinishedAt *int64 `json:"finishedAt,omitempty"`
}

// Audience carries routing hints consumed by notify plugins.
type Audience struct {
	Tags     []string `json:"tags,omitempty"`
	Channels Channels `json:"channels"`
}

// Channels is the include/exclude/routeTo routing hint set. Include/Exclude
// are normalized (trimmed + lowercased) by the factory before the message
// ever reaches the Store.
type Channels struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
	RouteTo string   `json:"routeTo,omitempty"`
}

// Clone returns a deep copy of m suitable for handing to a caller by value
// (the Store's read APIs never return pointers into live state).
func (m Message) Clone() Message {
	out := m
	out.Details.Tools = append([]string(nil), m.Details.Tools...)
	out.Details.Consumables = append([]string(nil), m.Details.Consumables...)
	if m.Attachments != nil {
		out.Attachments = make([]Attachment, len(m.Attachments))
		for i, a := range m.Attachments {
			a.Data = append([]byte(nil), a.Data...)
			out.Attachments[i] = a
		}
	}
	if m.Actions != nil {
		out.Actions = make([]Action, len(m.Actions))
		copy(out.Actions, m.Actions)
	}
	out.Metrics = *m.Metrics.Clone()
	out.Audience.Tags = append([]string(nil), m.Audience.Tags...)
	out.Audience.Channels.Include = append([]string(nil), m.Audience.Channels.Include...)
	out.Audience.Channels.Exclude = append([]string(nil), m.Audience.Channels.Exclude...)
	if m.Timing.StartAt != nil {
		v := *m.Timing.StartAt
		out.Timing.StartAt = &v
	}
	if m.Timing.NotifyAt != nil {
		v := *m.Timing.NotifyAt
		out.Timing.NotifyAt = &v
	}
	if m.Timing.TimeBudget != nil {
		v := *m.Timing.TimeBudget
		out.Timing.TimeBudget = &v
	}
	if m.Timing.DueAt != nil {
		v := *m.Timing.DueAt
		out.Timing.DueAt = &v
	}
	if m.Timing.ExpiresAt != nil {
		v := *m.Timing.ExpiresAt
		out.Timing.ExpiresAt = &v
	}
	if m.Progress.StartedAt != nil {
		v := *m.Progress.StartedAt
		out.Progress.StartedAt = &v
	}
	if m.Progress.FinishedAt != nil {
		v := *m.Progress.FinishedAt
		out.Progress.FinishedAt = &v
	}
	return out
}

// FindAction returns the action with the given id, or nil if absent.
func (m *Message) FindAction(id string) *Action {
	for i := range m.Actions {
		if m.Actions[i].ID == id {
			return &m.Actions[i]
		}
	}
	return nil
}

// UpsertAction inserts a into m.Actions, or replaces the existing entry
// with the same id (idempotent — used by the rule engine to inject a
// `close` action without duplicating it).
func (m *Message) UpsertAction(a Action) {
	for i := range m.Actions {
		if m.Actions[i].ID == a.ID {
			m.Actions[i] = a
			return
		}
	}
	m.Actions = append(m.Actions, a)
}
