package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  port: "9090"
quiz:
  id: hanacaraka
  shuffle: false
duel:
  initial_time: 60
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PORT", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Quiz.ID != "hanacaraka" || cfg.Quiz.Shuffle {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Duel.InitialTime != 60 || cfg.Duel.Countdown != 3 {
		t.Fatalf("expected file initial time and default countdown, got %+v", cfg.Duel)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Duel.InitialTime != 120 {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"PORT":       "7000",
		"REDIS_ADDR": "redis:6379",
		"JWT_SECRET": "s3cret",
		"LOG_LEVEL":  " debug ",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Server.Port != "7000" || cfg.Redis.Addr != "redis:6379" || cfg.Auth.JWTSecret != "s3cret" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected trimmed level, got %q", cfg.Log.Level)
	}
	if cfg.Postgres.URL != "" {
		t.Fatalf("unset env must not override")
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("AKSARA_TEST_VALUE=from-file\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("AKSARA_TEST_VALUE", "")
	os.Unsetenv("AKSARA_TEST_VALUE")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load .env: %v", err)
	}
	if got := os.Getenv("AKSARA_TEST_VALUE"); got != "from-file" {
		t.Fatalf("expected value from .env, got %q", got)
	}
}

func TestTTLDuration(t *testing.T) {
	if d := TTLDuration("", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback, got %s", d)
	}
	if d := TTLDuration("bogus", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback on parse error, got %s", d)
	}
	if d := TTLDuration("90s", time.Minute); d != 90*time.Second {
		t.Fatalf("expected 90s, got %s", d)
	}
}
