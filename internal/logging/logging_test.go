package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("expected json, got %v (%v)", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("expected text default, got %v (%v)", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestLevelString(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		parsed, err := ParseLevel(LevelString(level))
		if err != nil || parsed != level {
			t.Errorf("round trip of %v failed: %v %v", level, parsed, err)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level Info, got %v", cfg.Level)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected default output stderr, got %s", cfg.Output)
	}
	if cfg.Component != "emojid" {
		t.Errorf("expected component emojid, got %s", cfg.Component)
	}
	if !strings.Contains(cfg.FilePath, "emojid") {
		t.Errorf("default log path should live under emojid, got %s", cfg.FilePath)
	}
}

func TestShouldRedact(t *testing.T) {
	tests := []struct {
		key      string
		expected bool
	}{
		{"text", true},
		{"buffer", true},
		{"Prefix", true},
		{"typed", true},
		{"password", true},
		{"api_key", true},
		{"clipboard_text", true},
		{"shortcut", false},
		{"replacement", false},
		{"count", false},
		{"candidates", false},
		{"reason", false},
	}

	for _, test := range tests {
		t.Run(test.key, func(t *testing.T) {
			result := shouldRedact(test.key)
			if result != test.expected {
				t.Errorf("shouldRedact(%q) = %v, expected %v", test.key, result, test.expected)
			}
		})
	}
}

func TestTypedTextNeverLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&Config{Level: LevelDebug, Format: FormatJSON, Component: "test"}, &buf)

	logger.Debug("buffer state", "buffer", "my secret words", "prefix", ":sm", "shortcut", ":smile:")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if rec["buffer"] != "[REDACTED]" || rec["prefix"] != "[REDACTED]" {
		t.Errorf("typed text leaked: %v", rec)
	}
	if rec["shortcut"] != ":smile:" {
		t.Errorf("shortcut should be kept, got %v", rec["shortcut"])
	}
	if rec["component"] != "test" {
		t.Errorf("expected component attr, got %v", rec["component"])
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&Config{Level: LevelInfo, Format: FormatText}, &buf)

	logger.WithComponent("engine").Info("started")
	if !strings.Contains(buf.String(), "component=engine") {
		t.Errorf("expected component=engine in %q", buf.String())
	}
}

func TestNop(t *testing.T) {
	Nop().Error("dropped")
}

func TestLoggerFileOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = filepath.Join(t.TempDir(), "emojid.log")

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	logger.Info("hello")
	logger.Sync()
	logger.Close()

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file missing record: %q", data)
	}
}

func TestFileRotatorRotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	cfg := &Config{
		FilePath:   logPath,
		MaxSize:    1, // 1 MB
		MaxBackups: 2,
		Compress:   false,
	}

	rotator, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer rotator.Close()

	chunk := bytes.Repeat([]byte("x"), 512*1024)
	for i := 0; i < 7; i++ {
		if _, err := rotator.Write(chunk); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	files, err := rotator.GetLogFiles()
	if err != nil {
		t.Fatalf("failed to get log files: %v", err)
	}
	// Current file plus MaxBackups backups.
	if len(files) != 3 {
		t.Errorf("expected 3 files, got %v", files)
	}
	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Errorf("expected first backup: %v", err)
	}
	if _, err := os.Stat(logPath + ".3"); !os.IsNotExist(err) {
		t.Error("backup beyond MaxBackups should be removed")
	}
}

func TestFileRotatorCompress(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	rotator, err := NewFileRotator(&Config{FilePath: logPath, MaxSize: 1, MaxBackups: 3, Compress: true})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer rotator.Close()

	chunk := bytes.Repeat([]byte("y"), 700*1024)
	rotator.Write(chunk)
	rotator.Write(chunk)

	if _, err := os.Stat(logPath + ".1.gz"); err != nil {
		t.Errorf("expected compressed backup: %v", err)
	}
}

func TestCrashHandler(t *testing.T) {
	tmpDir := t.TempDir()

	var crashed []CrashReport
	handler := NewCrashHandler(&CrashHandlerConfig{
		CrashDir:  tmpDir,
		Version:   "1.0.0",
		Component: "test",
		Logger:    Nop(),
		OnCrash:   func(r CrashReport) { crashed = append(crashed, r) },
	})

	panicked := handler.Recover(map[string]any{"event": "character"}, func() {
		panic("intentional test panic")
	})
	if !panicked {
		t.Error("Recover should report the panic")
	}
	if handler.Recover(nil, func() {}) {
		t.Error("Recover should report no panic for a clean call")
	}

	reports, err := handler.GetCrashReports()
	if err != nil {
		t.Fatalf("failed to get crash reports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	if reports[0].PanicValue != "intentional test panic" {
		t.Errorf("unexpected panic value %q", reports[0].PanicValue)
	}
	if reports[0].Component != "test" || reports[0].Version != "1.0.0" {
		t.Errorf("unexpected report metadata: %+v", reports[0])
	}
	if len(crashed) != 1 {
		t.Errorf("OnCrash should fire once, fired %d times", len(crashed))
	}

	if err := handler.CleanupOldCrashReports(-time.Second); err != nil {
		t.Errorf("CleanupOldCrashReports failed: %v", err)
	}
	reports, _ = handler.GetCrashReports()
	if len(reports) != 0 {
		t.Error("crash reports were not cleaned up")
	}
}
