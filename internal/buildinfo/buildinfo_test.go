package buildinfo

import (
	"strings"
	"testing"
)

func TestBuildInfo(t *testing.T) {
	info := BuildInfo()
	if info["version"] != Version {
		t.Errorf("version = %q, want %q", info["version"], Version)
	}
	if info["go_version"] == "" {
		t.Error("expected non-empty go_version")
	}
}

func TestRuntimeInfo(t *testing.T) {
	info := RuntimeInfo()
	if _, ok := info["uptime"]; !ok {
		t.Error("expected uptime key in RuntimeInfo")
	}
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	if !strings.HasPrefix(ua, "msghub/") {
		t.Errorf("UserAgent() = %q, want prefix msghub/", ua)
	}
}

func TestString(t *testing.T) {
	if !strings.Contains(String(), "msghub") {
		t.Errorf("String() = %q, want it to mention msghub", String())
	}
}
