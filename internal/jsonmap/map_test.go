package jsonmap

import (
	"encoding/json"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	m := New()
	m.Set("temp", 21.5)
	m.Set("humidity", 40)
	m.Set("label", "kitchen")

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got Map
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if !m.Equal(&got) {
		t.Fatalf("round trip changed contents: got keys %v, want %v", got.Keys(), m.Keys())
	}
	if got.Keys()[0] != "temp" || got.Keys()[2] != "label" {
		t.Errorf("insertion order not preserved: %v", got.Keys())
	}
}

func TestSetUpdatePreservesPosition(t *testing.T) {
	m := New()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("a", 99)

	if got, _ := m.Get("a"); got != 99 {
		t.Errorf("Get(a) = %v, want 99", got)
	}
	if m.Keys()[0] != "a" {
		t.Errorf("update should not reorder: %v", m.Keys())
	}
}

func TestDelete(t *testing.T) {
	m := New()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)
	m.Delete("b")

	if _, ok := m.Get("b"); ok {
		t.Error("expected b deleted")
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
	if m.Keys()[0] != "a" || m.Keys()[1] != "c" {
		t.Errorf("unexpected keys after delete: %v", m.Keys())
	}
}

func TestUnmarshalRejectsWrongMarker(t *testing.T) {
	var m Map
	err := json.Unmarshal([]byte(`{"__type":"Set","value":[]}`), &m)
	if err == nil {
		t.Fatal("expected error for wrong __type marker")
	}
}
