package hub

import "fmt"

// ValidateInvariants checks the invariants that must hold on every Store
// read. It does not check cross-message uniqueness (the Store owns that).
func ValidateInvariants(m *Message) error {
	if m.Ref == "" {
		return fmt.Errorf("ref must not be empty")
	}
	if !m.Level.Valid() {
		return fmt.Errorf("level %d is not a recognized level", m.Level)
	}
	if !m.Lifecycle.State.Valid() {
		return fmt.Errorf("lifecycle.state %q is not one of the six enumerated states", m.Lifecycle.State)
	}
	seen := make(map[string]struct{}, len(m.Actions))
	for _, a := range m.Actions {
		if a.ID == "" {
			return fmt.Errorf("actions[].id must not be empty")
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("actions[].id %q is not unique within the message", a.ID)
		}
		seen[a.ID] = struct{}{}
		if !a.Type.Valid() {
			return fmt.Errorf("actions[].type %q is not in the fixed type set", a.Type)
		}
	}
	if m.Kind != KindTask {
		if m.Timing.DueAt != nil || m.Timing.TimeBudget != nil {
			return fmt.Errorf("timing.dueAt/timeBudget must be absent for kind %q", m.Kind)
		}
	}
	return nil
}
