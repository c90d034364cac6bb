package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cascade.toml")
	content := `db_path = "/var/lib/cascade/state.db"
rules_dir = "/etc/cascade/rules"
chat_webhook_url = "https://chat.example.com/hook"

[scheduler]
workers = 8
overdue_scan_interval = "2m"
blocked_after = "36h"
resignal_after = "6h"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.DBPath != "/var/lib/cascade/state.db" {
		t.Errorf("db path = %q", c.DBPath)
	}
	if c.ChatWebhookURL != "https://chat.example.com/hook" {
		t.Errorf("chat url = %q", c.ChatWebhookURL)
	}

	sc := c.SchedulerConfig()
	if sc.Workers != 8 {
		t.Errorf("workers = %d", sc.Workers)
	}
	if sc.OverdueScanInterval != 2*time.Minute {
		t.Errorf("overdue interval = %v", sc.OverdueScanInterval)
	}
	if sc.BlockedAfter != 36*time.Hour {
		t.Errorf("blocked after = %v", sc.BlockedAfter)
	}
	if sc.ResignalAfter != 6*time.Hour {
		t.Errorf("resignal after = %v", sc.ResignalAfter)
	}
	if sc.QueueSize != 0 {
		t.Errorf("queue size = %d, want 0 (scheduler default applies)", sc.QueueSize)
	}
}

func TestLoadBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cascade.toml")
	if err := os.WriteFile(path, []byte("[scheduler]\noverdue_scan_interval = \"soon\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected duration parse error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	c, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if c.DBPath != "cascade.db" || c.RulesDir != "rules" {
		t.Errorf("defaults = %+v", c)
	}
}
