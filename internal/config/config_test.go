package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("data_dir: /tmp/data\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("data_dir: /tmp/data\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("ai:\n  enabled: true\n  openai:\n    api_key: ${MSGHUB_TEST_KEY}\n"), 0600)
	os.Setenv("MSGHUB_TEST_KEY", "secret123")
	defer os.Unsetenv("MSGHUB_TEST_KEY")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.AI.OpenAI.APIKey != "secret123" {
		t.Errorf("api_key = %q, want %q", cfg.AI.OpenAI.APIKey, "secret123")
	}
	if !cfg.AI.Configured() {
		t.Error("expected AI.Configured() true once enabled with an api key")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Default()
	if cfg.DataDir != "./data" {
		t.Errorf("data_dir = %q, want ./data", cfg.DataDir)
	}
	if cfg.Archive.StrategyLock != "native" {
		t.Errorf("archive.strategy_lock = %q, want native", cfg.Archive.StrategyLock)
	}
	if cfg.Archive.BaseDir != filepath.Join(cfg.DataDir, "archive") {
		t.Errorf("archive.base_dir = %q", cfg.Archive.BaseDir)
	}
	if cfg.Scheduler.TickIntervalMs != 2000 {
		t.Errorf("scheduler.tick_interval_ms = %d, want 2000", cfg.Scheduler.TickIntervalMs)
	}
}

func TestValidate_BadStrategyLock(t *testing.T) {
	cfg := Default()
	cfg.Archive.StrategyLock = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for bad archive.strategy_lock")
	}
}

func TestValidate_BadQuietHours(t *testing.T) {
	cfg := Default()
	cfg.QuietHours = &QuietHoursConfig{StartMin: 2000, EndMin: 10}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for out-of-range quiet hours")
	}
}

func TestValidate_LogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for bad log level")
	}
	cfg.LogLevel = "debug"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error for valid log level: %v", err)
	}
}

func TestNormalize_SecretsSplit(t *testing.T) {
	cfg := Default()
	cfg.AI.Enabled = true
	cfg.AI.OpenAI.APIKey = "sk-test"
	cfg.AI.OpenAI.BaseURL = "https://api.example.com"

	eff := cfg.Normalize()
	pub := eff.Public()

	if eff.AI.OpenAI.APIKey != "sk-test" {
		t.Error("private effective view should retain the api key")
	}
	if _, has := reflect.TypeOf(pub.AI.OpenAI).FieldByName("APIKey"); has {
		t.Error("public view must strip the api key")
	}
	if _, has := reflect.TypeOf(pub.AI.OpenAI).FieldByName("BaseURL"); has {
		t.Error("public view must strip the base url")
	}
	if pub.AI.Enabled != eff.AI.Enabled {
		t.Error("public view should retain non-secret fields")
	}
}
