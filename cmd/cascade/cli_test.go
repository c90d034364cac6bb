package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// runCLI executes the root command with args against a config in dir.
func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func testConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cascade.toml")
	content := "db_path = \"" + filepath.Join(dir, "state.db") + "\"\n" +
		"rules_dir = \"" + filepath.Join(dir, "rules") + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDepsAddListRemove(t *testing.T) {
	cfg := testConfig(t)

	out, err := runCLI(t, cfg, "deps", "add", "a", "b", "--lag", "2")
	if err != nil {
		t.Fatalf("deps add: %v", err)
	}
	if !strings.Contains(out, "edge added") {
		t.Errorf("output = %q", out)
	}

	out, err = runCLI(t, cfg, "deps", "list")
	if err != nil {
		t.Fatalf("deps list: %v", err)
	}
	if !strings.Contains(out, "finish_to_start") || !strings.Contains(out, "a") {
		t.Errorf("list output = %q", out)
	}

	if _, err = runCLI(t, cfg, "deps", "remove", "a", "b"); err != nil {
		t.Fatalf("deps remove: %v", err)
	}
	out, err = runCLI(t, cfg, "deps", "list")
	if err != nil {
		t.Fatalf("deps list after remove: %v", err)
	}
	if !strings.Contains(out, "no dependencies") {
		t.Errorf("list output = %q", out)
	}
}

func TestDepsAddRejectsCycle(t *testing.T) {
	cfg := testConfig(t)

	if _, err := runCLI(t, cfg, "deps", "add", "a", "b"); err != nil {
		t.Fatalf("deps add a b: %v", err)
	}
	if _, err := runCLI(t, cfg, "deps", "add", "b", "c"); err != nil {
		t.Fatalf("deps add b c: %v", err)
	}
	if _, err := runCLI(t, cfg, "deps", "add", "c", "a"); err == nil {
		t.Fatal("expected cycle rejection")
	}

	out, err := runCLI(t, cfg, "deps", "list")
	if err != nil {
		t.Fatalf("deps list: %v", err)
	}
	if strings.Count(out, "finish_to_start") != 2 {
		t.Errorf("list output = %q", out)
	}
}

func TestRulesImportAndList(t *testing.T) {
	cfg := testConfig(t)
	rulesDir := t.TempDir()
	ruleFile := `rules:
  - id: notify-blocked
    name: Notify when blocked
    trigger: task_status_change
    actions:
      - type: send_notification
        config:
          notify_assignee: true
`
	if err := os.WriteFile(filepath.Join(rulesDir, "r.yaml"), []byte(ruleFile), 0o644); err != nil {
		t.Fatalf("write rule file: %v", err)
	}

	out, err := runCLI(t, cfg, "rules", "import", rulesDir)
	if err != nil {
		t.Fatalf("rules import: %v", err)
	}
	if !strings.Contains(out, "imported 1 rules") {
		t.Errorf("output = %q", out)
	}

	out, err = runCLI(t, cfg, "rules", "list")
	if err != nil {
		t.Fatalf("rules list: %v", err)
	}
	if !strings.Contains(out, "notify-blocked") || !strings.Contains(out, "never") {
		t.Errorf("list output = %q", out)
	}
}

func TestRulesImportRejectsBadRule(t *testing.T) {
	cfg := testConfig(t)
	rulesDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(rulesDir, "bad.yaml"),
		[]byte("rules:\n  - name: X\n    trigger: no_such_trigger\n    actions:\n      - type: send_chat\n"), 0o644); err != nil {
		t.Fatalf("write rule file: %v", err)
	}
	if _, err := runCLI(t, cfg, "rules", "import", rulesDir); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestBottlenecksListEmpty(t *testing.T) {
	cfg := testConfig(t)
	out, err := runCLI(t, cfg, "bottlenecks", "list")
	if err != nil {
		t.Fatalf("bottlenecks list: %v", err)
	}
	if !strings.Contains(out, "no bottlenecks") {
		t.Errorf("output = %q", out)
	}
}

func TestLogsEmpty(t *testing.T) {
	cfg := testConfig(t)
	out, err := runCLI(t, cfg, "logs")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if !strings.Contains(out, "no events") {
		t.Errorf("output = %q", out)
	}
}
