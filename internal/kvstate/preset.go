package kvstate

import (
	"encoding/json"
	"fmt"
	"sort"
)

const presetNamespace = "admin.ingestStates.presets"

// Preset is a named, persisted rule-engine configuration snapshot:
// an instance id plus the JSON-encoded rule config
// a host admin surface can recall later without re-authoring it.
type Preset struct {
	Name       string          `json:"name"`
	InstanceID string          `json:"instanceId"`
	Config     json.RawMessage `json:"config"`
}

// SavePreset persists a preset under its name, overwriting any existing
// preset of the same name.
func (s *Store) SavePreset(p Preset) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal preset %s: %w", p.Name, err)
	}
	return s.Set(presetNamespace, p.Name, string(data))
}

// LoadPreset returns the named preset, or false if it doesn't exist.
func (s *Store) LoadPreset(name string) (Preset, bool, error) {
	raw, ok, err := s.Get(presetNamespace, name)
	if err != nil || !ok {
		return Preset{}, false, err
	}
	var p Preset
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Preset{}, false, fmt.Errorf("unmarshal preset %s: %w", name, err)
	}
	return p, true, nil
}

// DeletePreset removes a named preset. A missing preset is not an error.
func (s *Store) DeletePreset(name string) error {
	return s.Delete(presetNamespace, name)
}

// ListPresets returns every saved preset, ordered by name.
func (s *Store) ListPresets() ([]Preset, error) {
	raw, err := s.List(presetNamespace)
	if err != nil {
		return nil, err
	}
	out := make([]Preset, 0, len(raw))
	for _, v := range raw {
		var p Preset
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return nil, fmt.Errorf("unmarshal preset: %w", err)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
