package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "parley.yaml")
	content := fmt.Sprintf(`storage:
  backend: sqlite
  dsn: %s
`, filepath.Join(dir, "parley.db"))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDBInitCmd(t *testing.T) {
	configPath := writeTestConfig(t)

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"db", "init", "--config", configPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("db init failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Using sqlite storage") {
		t.Errorf("expected backend in output, got: %s", out)
	}
	if !strings.Contains(out, "Migrated 2 tables") {
		t.Errorf("expected migration summary, got: %s", out)
	}
	if !strings.Contains(out, "initialized successfully") {
		t.Errorf("expected success message, got: %s", out)
	}
}

func TestDBInitCmd_MissingConfigUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	origWD, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(origWD)

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"db", "init", "--config", filepath.Join(dir, "absent.yaml")})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("db init with defaults failed: %v", err)
	}
	if !strings.Contains(buf.String(), "sqlite") {
		t.Errorf("expected default sqlite backend, got: %s", buf.String())
	}
}
