package admin

import (
	"github.com/nugget/msghub/internal/hub"
	"github.com/nugget/msghub/internal/store"
)

func hubKind(s string) hub.Kind            { return hub.Kind(s) }
func hubLevel(n int) hub.Level             { return hub.Level(n) }
func hubState(s string) hub.LifecycleState { return hub.LifecycleState(s) }

// MessageQueryRequest is the wire payload for admin.messages.query. It
// mirrors store.Where/store.Query field-for-field rather than inventing a
// parallel filter language — the core already implements kind/level-range/
// state/tags/routeTo/startAt filtering and startAt-desc/ref-asc sorting
// (store.QueryMessages), so admin only needs to translate JSON into
// a store.Query and hand it off.
type MessageQueryRequest struct {
	Kind           string   `json:"kind,omitempty"`
	LevelMin       int      `json:"levelMin,omitempty"`
	LevelMax       int      `json:"levelMax,omitempty"`
	HasLevelRange  bool     `json:"hasLevelRange,omitempty"`
	State          string   `json:"state,omitempty"`
	HasState       bool     `json:"hasState,omitempty"`
	TagsAny        []string `json:"tagsAny,omitempty"`
	RouteTo        string   `json:"routeTo,omitempty"`
	StartAtReached bool     `json:"startAtReached,omitempty"`
	Now            int64    `json:"now,omitempty"`

	Page     int `json:"page,omitempty"`
	PageSize int `json:"pageSize,omitempty"`
}

func (r MessageQueryRequest) toStoreQuery() store.Query {
	return store.Query{
		Where: store.Where{
			Kind:           hubKind(r.Kind),
			LevelMin:       hubLevel(r.LevelMin),
			LevelMax:       hubLevel(r.LevelMax),
			HasLevelRange:  r.HasLevelRange,
			State:          hubState(r.State),
			HasState:       r.HasState,
			TagsAny:        r.TagsAny,
			RouteTo:        r.RouteTo,
			StartAtReached: r.StartAtReached,
			Now:            r.Now,
		},
		Page:     r.Page,
		PageSize: r.PageSize,
	}
}
