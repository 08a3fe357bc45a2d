package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/embedview/embedview/internal/config"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embedview.log")
	logger, err := New(config.LogConfig{Level: "warn", Format: "json", File: path})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("channel: command failed")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Error("info entry written at warn level")
	}
	if !strings.Contains(out, `"msg":"channel: command failed"`) {
		t.Errorf("warn entry missing from %q", out)
	}
}

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		logger, err := New(config.LogConfig{Level: tt.level, Format: "console"})
		if err != nil {
			t.Fatalf("New(%q) error: %v", tt.level, err)
		}
		if !logger.Core().Enabled(tt.want) || (tt.want > zapcore.DebugLevel && logger.Core().Enabled(tt.want-1)) {
			t.Errorf("New(%q) enables the wrong levels", tt.level)
		}
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud"}); err == nil {
		t.Error("bad level accepted")
	}
	if _, err := New(config.LogConfig{Level: "info", Format: "xml"}); err == nil {
		t.Error("bad format accepted")
	}
}

func TestNewForTerminalWithoutFileIsSilent(t *testing.T) {
	logger, err := NewForTerminal(config.LogConfig{Level: "debug"})
	if err != nil {
		t.Fatal(err)
	}
	if logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("terminal logger without a file should discard everything")
	}
}
