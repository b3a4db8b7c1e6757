// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWithOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithOutput("info", "json", &buf)
	if err != nil {
		t.Fatalf("NewWithOutput() error = %v", err)
	}

	log.Named("shell").Info("thread count loaded", "thread_count", 7)
	_ = log.Sync()

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["message"] != "thread count loaded" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["logger"] != "shell" {
		t.Errorf("logger = %v, want shell", entry["logger"])
	}
	if entry["thread_count"] != float64(7) {
		t.Errorf("thread_count = %v, want 7", entry["thread_count"])
	}
}

func TestNewWithOutput_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log, _ := NewWithOutput("loud", "json", &buf)
	if got := log.GetLevel(); got != "info" {
		t.Errorf("GetLevel() = %q, want info", got)
	}

	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug entry written at info level: %s", buf.String())
	}
}

func TestSetLevel_AppliesToNamedChildren(t *testing.T) {
	var buf bytes.Buffer
	log, _ := NewWithOutput("warn", "json", &buf)
	child := log.Named("backend")

	if err := log.SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}
	child.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("child logger did not pick up the new level")
	}
}

func TestLogger_RedactsSensitiveValues(t *testing.T) {
	var buf bytes.Buffer
	log, _ := NewWithOutput("debug", "json", &buf)

	log.Info("login", "username", "admin", "password", "hunter2", "access_token", "eyJ")
	out := buf.String()
	if strings.Contains(out, "hunter2") || strings.Contains(out, "eyJ") {
		t.Errorf("sensitive values leaked: %s", out)
	}
	if !strings.Contains(out, "admin") {
		t.Errorf("non-sensitive value missing: %s", out)
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Info("nothing")
	log.Named("x").With("k", "v").Error("still nothing")
}

func TestNewFromConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "console.log")
	log, err := NewFromConfig("info", "json", OutputConfig{Output: "file", File: FileConfig{Path: path}})
	if err != nil {
		t.Fatalf("NewFromConfig() error = %v", err)
	}
	log.Info("to file")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file content = %q", data)
	}
}

func TestNewFromConfig_FileRequiresPath(t *testing.T) {
	if _, err := NewFromConfig("info", "json", OutputConfig{Output: "file"}); err == nil {
		t.Error("expected error for empty file path")
	}
}

func TestFileWriter_Rotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "console.log")
	fw, err := NewFileWriter(FileConfig{Path: path, MaxSize: 16})
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	defer fw.Close()

	if _, err := fw.Write([]byte("0123456789\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("abcdefghij\n")); err != nil {
		t.Fatal(err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Fatalf("files after rotation = %d, want 2", len(entries))
	}
	data, _ := os.ReadFile(path)
	if string(data) != "abcdefghij\n" {
		t.Errorf("current file = %q", data)
	}
}

func TestSanitizeKeysAndValues(t *testing.T) {
	in := []interface{}{"Password", "x", "path", "/login", "token"}
	out := SanitizeKeysAndValues(in)

	if out[1] != redactedValue {
		t.Errorf("password not redacted: %v", out[1])
	}
	if out[3] != "/login" {
		t.Errorf("path changed: %v", out[3])
	}
	if in[1] != "x" {
		t.Error("input slice was modified")
	}
	if len(out) != len(in) {
		t.Errorf("len = %d, want %d", len(out), len(in))
	}
}

func TestSanitizeMap(t *testing.T) {
	got := SanitizeMap(map[string]interface{}{"Authorization": "Bearer x", "module": "rss"})
	if got["Authorization"] != redactedValue {
		t.Errorf("Authorization = %v", got["Authorization"])
	}
	if got["module"] != "rss" {
		t.Errorf("module = %v", got["module"])
	}
}
