package store

import (
	"time"

	"github.com/nugget/msghub/internal/hub"
)

// Where filters QueryMessages results by kind, level range,
// lifecycle.state, audience.tags.any, audience.channels.routeTo, and
// timing.startAt <= now or missing.
type Where struct {
	Kind           hub.Kind
	LevelMin       hub.Level
	LevelMax       hub.Level
	HasLevelRange  bool
	State          hub.LifecycleState
	HasState       bool
	TagsAny        []string
	RouteTo        string
	StartAtReached bool // timing.startAt <= now or missing
	Now            int64
}

// Query is the input to QueryMessages.
type Query struct {
	Where    Where
	Page     int
	PageSize int
}

// Result is the DTO returned by QueryMessages (matches admin.messages.query
// response shape: {items,total,pages,meta}).
type Result struct {
	Items []hub.Message
	Total int
	Pages int
}

// QueryMessages filters, sorts (startAt desc, ref asc tie-break), and
// paginates the message set.
func (s *Store) QueryMessages(q Query) Result {
	s.mu.RLock()
	all := make([]hub.Message, 0, len(s.messages))
	for _, m := range s.messages {
		all = append(all, m.Clone())
	}
	s.mu.RUnlock()

	filtered := all[:0]
	for _, m := range all {
		if matchesWhere(m, q.Where) {
			filtered = append(filtered, m)
		}
	}
	sortByStartAtDescRefAsc(filtered)

	total := len(filtered)
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = total
		if pageSize == 0 {
			pageSize = 1
		}
	}
	pages := (total + pageSize - 1) / pageSize
	if pages == 0 {
		pages = 1
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return Result{Items: append([]hub.Message(nil), filtered[start:end]...), Total: total, Pages: pages}
}

func matchesWhere(m hub.Message, w Where) bool {
	if w.Kind != "" && m.Kind != w.Kind {
		return false
	}
	if w.HasLevelRange && (m.Level < w.LevelMin || m.Level > w.LevelMax) {
		return false
	}
	if w.HasState && m.Lifecycle.State != w.State {
		return false
	}
	if len(w.TagsAny) > 0 && !tagsIntersect(m.Audience.Tags, w.TagsAny) {
		return false
	}
	if w.RouteTo != "" && m.Audience.Channels.RouteTo != w.RouteTo {
		return false
	}
	if w.StartAtReached {
		now := w.Now
		if now == 0 {
			now = time.Now().UnixMilli()
		}
		if m.Timing.StartAt != nil && *m.Timing.StartAt > now {
			return false
		}
	}
	return true
}

func tagsIntersect(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}
