package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestReplaceAndRestore(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))
	L().Info("room_test_event", zap.String("k", "v"))
	restore()
	L().Info("after_restore")

	if logs.Len() != 1 {
		t.Fatalf("expected 1 captured entry, got %d", logs.Len())
	}
	if got := logs.All()[0].Message; got != "room_test_event" {
		t.Fatalf("message=%q", got)
	}
}

func TestBuildWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "room.log")
	logger, err := Build(Options{Level: "debug", Format: "json", ToFile: true, FilePath: path})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	logger.Debug("room_debug_line")
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), `"msg":"room_debug_line"`) {
		t.Fatalf("log file missing entry: %s", raw)
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_TO_FILE", "false")
	t.Setenv("LOG_FORMAT", "json")
	opts := OptionsFromEnv()
	if opts.ToFile || opts.Format != "json" || parseLevel(opts.Level) != zapcore.WarnLevel {
		t.Fatalf("unexpected options %+v", opts)
	}
}
