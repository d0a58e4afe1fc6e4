// Package hub defines the message hub's shared data model: levels, kinds,
// lifecycle states, action types, notification events, and the Message
// type itself. Everything here is read-only/value-typed and has no
// dependency on Store, Archive, or any other subsystem, so every other
// package in this module imports it.
package hub

// Level is the ordered severity of a message (none < info < notice <
// warning < error < critical). Numeric gaps between adjacent levels are
// intentional headroom
// for host-side customization (a host may define its own intermediate
// levels without colliding with ours).
type Level int

const (
	LevelNone     Level = 0
	LevelInfo     Level = 5
	LevelNotice   Level = 10
	LevelWarning  Level = 20
	LevelError    Level = 30
	LevelCritical Level = 40
)

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	switch l {
	case LevelNone, LevelInfo, LevelNotice, LevelWarning, LevelError, LevelCritical:
		return true
	default:
		return false
	}
}

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelInfo:
		return "info"
	case LevelNotice:
		return "notice"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// AllLevels is the ordered level set, used by admin.constants.get.
var AllLevels = []Level{LevelNone, LevelInfo, LevelNotice, LevelWarning, LevelError, LevelCritical}
