package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSetDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"Telegram.APIBase", cfg.Telegram.APIBase, "https://api.telegram.org"},
		{"Monitor.DefaultInterval", cfg.Monitor.DefaultInterval, 10},
		{"Monitor.MinimalInterval", cfg.Monitor.MinimalInterval, 5},
		{"Monitor.Concurrency", cfg.Monitor.Concurrency, 8},
		{"Monitor.UserSubLimit", cfg.Monitor.UserSubLimit, -1},
		{"Monitor.ChannelSubLimit", cfg.Monitor.ChannelSubLimit, -1},
		{"Media.WeservBase", cfg.Media.WeservBase, "https://wsrv.nl/"},
		{"Log.Level", cfg.Log.Level, "info"},
	}

	for _, c := range checks {
		switch want := c.want.(type) {
		case int:
			if c.got.(int) != want {
				t.Errorf("%s: got %v, want %v", c.name, c.got, want)
			}
		case string:
			if c.got.(string) != want {
				t.Errorf("%s: got %v, want %v", c.name, c.got, want)
			}
		}
	}
}

func TestSetDefaults_DoesNotOverride(t *testing.T) {
	cfg := &Config{
		Monitor: MonitorConfig{DefaultInterval: 30, MinimalInterval: 15, Concurrency: 2},
		Media:   MediaConfig{WeservBase: "https://images.example.com/"},
		Log:     LogConfig{Level: "debug"},
	}
	setDefaults(cfg)

	if cfg.Monitor.DefaultInterval != 30 {
		t.Errorf("DefaultInterval should not be overridden: got %d", cfg.Monitor.DefaultInterval)
	}
	if cfg.Monitor.MinimalInterval != 15 {
		t.Errorf("MinimalInterval should not be overridden: got %d", cfg.Monitor.MinimalInterval)
	}
	if cfg.Monitor.Concurrency != 2 {
		t.Errorf("Concurrency should not be overridden: got %d", cfg.Monitor.Concurrency)
	}
	if cfg.Media.WeservBase != "https://images.example.com/" {
		t.Errorf("WeservBase should not be overridden: got %s", cfg.Media.WeservBase)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level should not be overridden: got %s", cfg.Log.Level)
	}
}

func TestSetDefaults_NormalizesBaseURLs(t *testing.T) {
	cfg := &Config{
		Media: MediaConfig{WeservBase: "wsrv.nl", RelayBase: "https://relay.example.com"},
	}
	setDefaults(cfg)

	if cfg.Media.WeservBase != "https://wsrv.nl/" {
		t.Errorf("WeservBase: got %q, want %q", cfg.Media.WeservBase, "https://wsrv.nl/")
	}
	if cfg.Media.RelayBase != "https://relay.example.com/" {
		t.Errorf("RelayBase: got %q, want %q", cfg.Media.RelayBase, "https://relay.example.com/")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	yamlContent := `
telegram:
  token: "123456:test-token"
  proxy: "127.0.0.1:1080"
  admin_ids: "100, 200"
telegraph:
  token: tg-token
monitor:
  default_interval: 20
database:
  path: /tmp/tgfeed-test.db
log:
  level: debug
`
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Telegram.Token != "123456:test-token" {
		t.Errorf("Telegram.Token: got %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.Proxy != "127.0.0.1:1080" {
		t.Errorf("Telegram.Proxy: got %q", cfg.Telegram.Proxy)
	}
	ids := cfg.Telegram.AdminIDList()
	if len(ids) != 2 || ids[0] != 100 || ids[1] != 200 {
		t.Errorf("AdminIDList: got %v, want [100 200]", ids)
	}
	if cfg.Monitor.DefaultInterval != 20 {
		t.Errorf("Monitor.DefaultInterval: got %d, want 20", cfg.Monitor.DefaultInterval)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %q, want %q", cfg.Log.Level, "debug")
	}
	// Defaults should be applied for unset fields
	if cfg.Monitor.MinimalInterval != 5 {
		t.Errorf("Monitor.MinimalInterval should default to 5, got %d", cfg.Monitor.MinimalInterval)
	}
	if !cfg.Telegram.IsMultiuser() {
		t.Error("Multiuser should default to true")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "secret-from-env")

	yamlContent := `
telegram:
  token: "${TEST_BOT_TOKEN}"
`
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Telegram.Token != "secret-from-env" {
		t.Errorf("expected env var expansion, got %q", cfg.Telegram.Token)
	}
}

func TestLoad_MissingToken(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(tmpFile, []byte("log:\n  level: info\n"), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if _, err := Load(tmpFile); err == nil {
		t.Fatal("expected error for missing telegram token")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestSetDefaults_TrimsToken(t *testing.T) {
	cfg := &Config{
		Telegram: TelegramConfig{Token: "  token-with-spaces  "},
	}
	setDefaults(cfg)
	if cfg.Telegram.Token != "token-with-spaces" {
		t.Errorf("expected trimmed token, got %q", cfg.Telegram.Token)
	}
}
