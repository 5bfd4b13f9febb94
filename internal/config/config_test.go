package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *GathererConfig {
	cfg := &GathererConfig{}
	cfg.Instance.ID = "gatherer-1"
	cfg.Exchange.Name = "stub"
	cfg.Exchange.RestURL = "https://api.example.com/v1"
	cfg.Exchange.WSURL = "wss://stream.example.com/ws"
	cfg.Database.Timescale = DBConfig{
		Host:     "localhost",
		Name:     "marketdata",
		User:     "gatherer",
		Password: "secret",
	}
	cfg.applyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()

	if cfg.Exchange.Timeout != DefaultAPITimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Exchange.Timeout, DefaultAPITimeout)
	}
	if cfg.Exchange.RateLimit != DefaultRateLimit {
		t.Errorf("RateLimit = %v, want %v", cfg.Exchange.RateLimit, DefaultRateLimit)
	}
	if cfg.Database.Timescale.Port != DefaultDBPort {
		t.Errorf("Port = %d, want %d", cfg.Database.Timescale.Port, DefaultDBPort)
	}
	if cfg.Connections.ReconnectBaseDelay != time.Second {
		t.Errorf("ReconnectBaseDelay = %v, want 1s", cfg.Connections.ReconnectBaseDelay)
	}
	if cfg.Writers.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d, want %d", cfg.Writers.BatchSize, DefaultBatchSize)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Path = %q, want /metrics", cfg.Metrics.Path)
	}
	if cfg.Replay.Mode != "off" {
		t.Errorf("Replay.Mode = %q, want off", cfg.Replay.Mode)
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidate_MissingInstanceID(t *testing.T) {
	cfg := validConfig()
	cfg.Instance.ID = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing instance.id")
	}
}

func TestValidate_MissingExchangeURLs(t *testing.T) {
	cfg := validConfig()
	cfg.Exchange.RestURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing exchange.rest_url")
	}

	cfg = validConfig()
	cfg.Exchange.WSURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing exchange.ws_url")
	}
}

func TestValidate_UserStreamRequiresCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.UserStream.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for user stream without credentials")
	}

	cfg.Exchange.APIKey = "key"
	cfg.Exchange.APISecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidate_ReplayMode(t *testing.T) {
	cfg := validConfig()
	cfg.Replay.Mode = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid replay.mode")
	}

	cfg.Replay.Mode = "record"
	cfg.Replay.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for record mode without path")
	}

	cfg.Replay.Path = "fixtures.db"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidate_DBMinMaxConns(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Timescale.MinConns = 20
	cfg.Database.Timescale.MaxConns = 10
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when min_conns > max_conns")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gatherer.yaml")

	os.Setenv("TEST_DB_PASSWORD", "supersecret")
	defer os.Unsetenv("TEST_DB_PASSWORD")

	raw := `
instance:
  id: gatherer-test
exchange:
  name: stub
  rest_url: https://api.example.com/v1
  ws_url: wss://stream.example.com/ws
database:
  timescale:
    host: localhost
    name: marketdata
    user: gatherer
    password: ${TEST_DB_PASSWORD}
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}

	if cfg.Database.Timescale.Password != "supersecret" {
		t.Errorf("Password = %q, want expanded env var", cfg.Database.Timescale.Password)
	}
	if cfg.Poller.Interval != DefaultPollInterval {
		t.Errorf("Poller.Interval = %v, want default applied", cfg.Poller.Interval)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/gatherer.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
