package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadLayersFileAndEnvironment(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "socialcredit.yaml")
	content := `
environment: staging
http_address: ":9090"
store:
  driver: postgres
  postgres_dsn: postgres://file/db
  max_open_conns: 50
auth:
  secret: file-secret
  session_ttl: 2h
discord:
  client_id: "123"
  bot_token: file-bot
jobs:
  server_refresh: ""
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SOCIALCREDIT_AUTH_SECRET", "env-secret")
	t.Setenv("SOCIALCREDIT_DISCORD_BOT_TOKEN", "env-bot")
	t.Setenv("SOCIALCREDIT_RATE_LIMIT_BURST", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Environment != "staging" || cfg.HTTPAddress != ":9090" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Store.Driver != "postgres" || cfg.Store.MaxOpenConns != 50 || cfg.Store.MaxIdleConns != 5 {
		t.Fatalf("unexpected store config %+v", cfg.Store)
	}
	if cfg.Auth.Secret != "env-secret" {
		t.Fatalf("expected env to override file secret, got %s", cfg.Auth.Secret)
	}
	if cfg.Auth.SessionTTL != 2*time.Hour {
		t.Fatalf("unexpected session ttl %v", cfg.Auth.SessionTTL)
	}
	if cfg.Discord.ClientID != "123" || cfg.Discord.BotToken != "env-bot" {
		t.Fatalf("unexpected discord config %+v", cfg.Discord)
	}
	if cfg.RateLimit.Burst != 5 || cfg.RateLimit.RequestsPerSecond != 2 {
		t.Fatalf("unexpected rate limit %+v", cfg.RateLimit)
	}
	if cfg.Jobs.ServerRefresh != "" || cfg.Jobs.StateSweep != "@every 1m" {
		t.Fatalf("unexpected jobs %+v", cfg.Jobs)
	}
}

func TestLoadWithoutDefaultFile(t *testing.T) {
	wd, _ := os.Getwd()
	tmp := t.TempDir()
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("SOCIALCREDIT_AUTH_SECRET", "s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddress != ":8000" || cfg.Store.Driver != "sqlite" {
		t.Fatalf("expected defaults, got %+v", cfg)
	}

	if _, err := Load(filepath.Join(tmp, "missing.yaml")); err == nil {
		t.Fatalf("an explicit missing file must be an error")
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "auth.secret") {
		t.Fatalf("expected missing secret error, got %v", err)
	}

	cfg.Auth.Secret = "s"
	cfg.Store.Driver = "mongo"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "unknown store driver") {
		t.Fatalf("expected driver error, got %v", err)
	}

	cfg.Store.Driver = "memory"
	cfg.Environment = "production"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "api_key_salt") {
		t.Fatalf("expected salt error in production, got %v", err)
	}
	cfg.Auth.APIKeySalt = "pepper"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}
