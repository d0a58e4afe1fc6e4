package action

import "errors"

var (
	errInvalidSnooze    = errors.New("snooze forMs must be finite and > 0")
	errUnsupportedAction = errors.New("unsupported action type")
)
