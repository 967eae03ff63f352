package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mytunmcp "github.com/sqlbridge/mysql-tunnel-mcp"
)

// doctorConfig returns a config whose ssh.key_path points at a real file, so
// the key existence check passes.
func doctorConfig(t *testing.T, dir string) mytunmcp.ServerConfig {
	t.Helper()
	keyPath := filepath.Join(dir, "id_ed25519")
	if err := os.WriteFile(keyPath, []byte("fake key material"), 0600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}
	cfg := validServerConfig()
	cfg.SSH.KeyPath = keyPath
	return cfg
}

func TestDoctorValidConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := doctorConfig(t, dir)
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	// All checks should pass
	if strings.Contains(output, "✗") {
		t.Fatalf("expected all checks to pass, but found failures in output:\n%s", output)
	}

	// Should contain pass marks
	if !strings.Contains(output, "✓") {
		t.Fatalf("expected pass marks (✓) in output:\n%s", output)
	}

	// Should contain config checks
	if !strings.Contains(output, "Config file readable") {
		t.Fatalf("expected 'Config file readable' check in output:\n%s", output)
	}
	if !strings.Contains(output, "Config file is valid JSON") {
		t.Fatalf("expected 'Config file is valid JSON' check in output:\n%s", output)
	}
	if !strings.Contains(output, "ssh.host is set") {
		t.Fatalf("expected 'ssh.host is set' check in output:\n%s", output)
	}
	if !strings.Contains(output, "ssh.key_path exists") {
		t.Fatalf("expected 'ssh.key_path exists' check in output:\n%s", output)
	}
	if !strings.Contains(output, "database.name is set") {
		t.Fatalf("expected 'database.name is set' check in output:\n%s", output)
	}
	if !strings.Contains(output, "All regex patterns compile") {
		t.Fatalf("expected 'All regex patterns compile' check in output:\n%s", output)
	}

	// Should contain agent snippets for the stdio transport
	if !strings.Contains(output, "Agent Connection Snippets") {
		t.Fatalf("expected agent snippets in output:\n%s", output)
	}
	if !strings.Contains(output, "Claude Code") {
		t.Fatalf("expected Claude Code snippet in output:\n%s", output)
	}
	// Server name in snippets should be "mysql" for AI agent discoverability
	if !strings.Contains(output, `"mysql"`) {
		t.Fatalf("expected server name 'mysql' in agent snippets:\n%s", output)
	}
	if !strings.Contains(output, "Gemini CLI") {
		t.Fatalf("expected Gemini CLI snippet in output:\n%s", output)
	}
	if !strings.Contains(output, "Cursor") {
		t.Fatalf("expected Cursor snippet in output:\n%s", output)
	}
	// stdio snippets launch a command, not a URL
	if !strings.Contains(output, `"args": ["serve"]`) {
		t.Fatalf("expected serve args in stdio snippets:\n%s", output)
	}
}

func TestDoctorMissingConfig(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := doctor(&buf, false, "/nonexistent/path/config.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failure mark (✗) for missing config:\n%s", output)
	}
	if !strings.Contains(output, "Config file readable") {
		t.Fatalf("expected 'Config file readable' check in output:\n%s", output)
	}

	// Should not contain agent snippets when config is missing
	if strings.Contains(output, "Agent Connection Snippets") {
		t.Fatalf("expected no agent snippets when config is missing:\n%s", output)
	}
}

func TestDoctorInvalidJSON(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{invalid json}"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failure mark (✗) for invalid JSON:\n%s", output)
	}
	if !strings.Contains(output, "Config file is valid JSON") {
		t.Fatalf("expected 'Config file is valid JSON' check in output:\n%s", output)
	}

	// Should not contain agent snippets when JSON is invalid
	if strings.Contains(output, "Agent Connection Snippets") {
		t.Fatalf("expected no agent snippets when JSON is invalid:\n%s", output)
	}
}

func TestDoctorMissingKeyFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := validServerConfig()
	cfg.SSH.KeyPath = filepath.Join(dir, "no-such-key")
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failure mark (✗) for missing key file:\n%s", output)
	}
	if !strings.Contains(output, "ssh.key_path exists") {
		t.Fatalf("expected 'ssh.key_path exists' check in output:\n%s", output)
	}
	if !strings.Contains(output, "Fix the issues above") {
		t.Fatalf("expected 'Fix the issues above' message in output:\n%s", output)
	}
}

func TestDoctorMissingDBName(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := doctorConfig(t, dir)
	cfg.Database.Name = ""
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failure mark (✗) for missing database name:\n%s", output)
	}
	if !strings.Contains(output, "database.name is set") {
		t.Fatalf("expected 'database.name is set' check in output:\n%s", output)
	}
	if !strings.Contains(output, "Fix the issues above") {
		t.Fatalf("expected 'Fix the issues above' message in output:\n%s", output)
	}
}

func TestDoctorInvalidRegex(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := doctorConfig(t, dir)
	cfg.Hints = []mytunmcp.HintRule{
		{Pattern: "[invalid(regex", Message: "test"},
	}
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failure mark (✗) for invalid regex:\n%s", output)
	}
	if !strings.Contains(output, "hints[0] regex compiles") {
		t.Fatalf("expected 'hints[0] regex compiles' check in output:\n%s", output)
	}
}

func TestDoctorHTTPPortInSnippets(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := doctorConfig(t, dir)
	cfg.Server.Transport = "http"
	cfg.Server.Port = 9999
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	// All agent snippets should use port 9999
	expectedURL := "http://localhost:9999/mcp"
	count := strings.Count(output, expectedURL)
	// 4 occurrences: Claude Code command (1) + Claude Code .mcp.json (1) +
	// Gemini CLI (1) + Cursor (1)
	if count != 4 {
		t.Fatalf("expected %s to appear 4 times in agent snippets, found %d times:\n%s", expectedURL, count, output)
	}
}

func TestDoctorUnknownTransport(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := doctorConfig(t, dir)
	cfg.Server.Transport = "websocket"
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, `server.transport is stdio or http (got "websocket")`) {
		t.Fatalf("expected transport check failure in output:\n%s", output)
	}
}
