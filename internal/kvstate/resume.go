package kvstate

import (
	"fmt"
	"strconv"
)

// ResumeNamespace builds the namespace a rule-engine instance's resume
// state lives under: IngestStates.<instance>.<rule>. Keys within that
// namespace are per-tracked-id fields such as "resetAt" or "openedAt"
// (rule state must survive restarts).
func ResumeNamespace(instance, rule string) string {
	return fmt.Sprintf("IngestStates.%s.%s", instance, rule)
}

// SetResumeInt64 stores an epoch-ms (or similar integer) resume field.
func (s *Store) SetResumeInt64(instance, rule, id, field string, value int64) error {
	return s.Set(ResumeNamespace(instance, rule), id+"."+field, strconv.FormatInt(value, 10))
}

// GetResumeInt64 returns a previously stored resume field, or false if
// it was never set.
func (s *Store) GetResumeInt64(instance, rule, id, field string) (int64, bool, error) {
	raw, ok, err := s.Get(ResumeNamespace(instance, rule), id+"."+field)
	if err != nil || !ok {
		return 0, false, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse resume field %s.%s: %w", id, field, err)
	}
	return v, true, nil
}

// ClearResumeField removes one resume field for one tracked id.
func (s *Store) ClearResumeField(instance, rule, id, field string) error {
	return s.Delete(ResumeNamespace(instance, rule), id+"."+field)
}
