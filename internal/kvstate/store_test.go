package kvstate

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestGetMissingReturnsFalse(t *testing.T) {
	s := setupTestStore(t)
	_, ok, err := s.Get("ns", "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected missing key to report false")
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Set("ns", "k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.Get("ns", "k")
	if err != nil || !ok {
		t.Fatalf("get: v=%q ok=%v err=%v", v, ok, err)
	}
	if v != "v1" {
		t.Errorf("value = %q, want v1", v)
	}
}

func TestSetOverwrites(t *testing.T) {
	s := setupTestStore(t)
	s.Set("ns", "k", "v1")
	s.Set("ns", "k", "v2")
	v, _, _ := s.Get("ns", "k")
	if v != "v2" {
		t.Errorf("value = %q, want v2", v)
	}
}

func TestDelete(t *testing.T) {
	s := setupTestStore(t)
	s.Set("ns", "k", "v1")
	if err := s.Delete("ns", "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, ok, _ := s.Get("ns", "k")
	if ok {
		t.Fatal("expected key to be gone after delete")
	}
}

func TestDeleteNamespace(t *testing.T) {
	s := setupTestStore(t)
	s.Set("ns", "a", "1")
	s.Set("ns", "b", "2")
	s.Set("other", "c", "3")
	if err := s.DeleteNamespace("ns"); err != nil {
		t.Fatalf("delete namespace: %v", err)
	}
	list, _ := s.List("ns")
	if len(list) != 0 {
		t.Errorf("expected ns empty, got %v", list)
	}
	other, _ := s.List("other")
	if len(other) != 1 {
		t.Errorf("expected other namespace untouched, got %v", other)
	}
}

func TestList(t *testing.T) {
	s := setupTestStore(t)
	s.Set("ns", "b", "2")
	s.Set("ns", "a", "1")
	list, err := s.List("ns")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list["a"] != "1" || list["b"] != "2" {
		t.Errorf("list = %v", list)
	}
}

func TestListNamespaces(t *testing.T) {
	s := setupTestStore(t)
	s.Set("ns-b", "k", "1")
	s.Set("ns-a", "k", "1")
	nses, err := s.ListNamespaces()
	if err != nil {
		t.Fatalf("list namespaces: %v", err)
	}
	if len(nses) != 2 || nses[0] != "ns-a" || nses[1] != "ns-b" {
		t.Errorf("namespaces = %v", nses)
	}
}

func TestPresetRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	p := Preset{Name: "kitchen-temp", InstanceID: "inst-1", Config: []byte(`{"threshold":30}`)}
	if err := s.SavePreset(p); err != nil {
		t.Fatalf("save preset: %v", err)
	}
	got, ok, err := s.LoadPreset("kitchen-temp")
	if err != nil || !ok {
		t.Fatalf("load preset: ok=%v err=%v", ok, err)
	}
	if got.InstanceID != "inst-1" || string(got.Config) != `{"threshold":30}` {
		t.Errorf("preset = %+v", got)
	}
}

func TestPresetDeleteAndList(t *testing.T) {
	s := setupTestStore(t)
	s.SavePreset(Preset{Name: "b", InstanceID: "i2", Config: []byte(`{}`)})
	s.SavePreset(Preset{Name: "a", InstanceID: "i1", Config: []byte(`{}`)})

	all, err := s.ListPresets()
	if err != nil {
		t.Fatalf("list presets: %v", err)
	}
	if len(all) != 2 || all[0].Name != "a" || all[1].Name != "b" {
		t.Fatalf("presets = %+v", all)
	}

	if err := s.DeletePreset("a"); err != nil {
		t.Fatalf("delete preset: %v", err)
	}
	remaining, _ := s.ListPresets()
	if len(remaining) != 1 || remaining[0].Name != "b" {
		t.Fatalf("remaining presets = %+v", remaining)
	}
}

func TestResumeFieldRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	if err := s.SetResumeInt64("inst-1", "threshold", "sensor.kitchen", "resetAt", 12345); err != nil {
		t.Fatalf("set resume: %v", err)
	}
	v, ok, err := s.GetResumeInt64("inst-1", "threshold", "sensor.kitchen", "resetAt")
	if err != nil || !ok {
		t.Fatalf("get resume: ok=%v err=%v", ok, err)
	}
	if v != 12345 {
		t.Errorf("resume value = %d, want 12345", v)
	}

	if err := s.ClearResumeField("inst-1", "threshold", "sensor.kitchen", "resetAt"); err != nil {
		t.Fatalf("clear resume: %v", err)
	}
	_, ok, _ = s.GetResumeInt64("inst-1", "threshold", "sensor.kitchen", "resetAt")
	if ok {
		t.Fatal("expected resume field cleared")
	}
}
