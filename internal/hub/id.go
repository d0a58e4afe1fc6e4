package hub

import "github.com/google/uuid"

// NewID generates a new UUIDv7, falling back to v4 if v7 fails (the v7
// constructor can only fail when the system clock or entropy source
// misbehaves). Used wherever the hub needs an identifier no caller
// supplies, such as audit record ids.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
