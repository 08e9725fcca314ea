package fluent

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultRequestIDGeneratorUnique(t *testing.T) {
	a := DefaultRequestIDGenerator()
	b := DefaultRequestIDGenerator()
	if a == "" || a == b {
		t.Errorf("ids %q/%q should be unique and non-empty", a, b)
	}
}

func TestDefaultDebugConfig(t *testing.T) {
	cfg := DefaultDebugConfig()
	if !cfg.Enabled {
		t.Error("default debug config should be enabled")
	}
	if cfg.RequestIDGen == nil {
		t.Error("missing request id generator")
	}
}

func TestZapLogger(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Debug("fetching", "url", "https://api.test/x")
	logger.Info("done", "status", 200)
	logger.Warn("slow", "elapsed", "2s")
	logger.Error("failed", "reason", "boom")

	entries := observed.All()
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(entries))
	}
	if entries[0].Message != "fetching" {
		t.Errorf("first message = %q", entries[0].Message)
	}
	if entries[1].ContextMap()["status"] != int64(200) {
		t.Errorf("status field = %v", entries[1].ContextMap()["status"])
	}
}

func TestNoopLoggerDoesNothing(t *testing.T) {
	// Must not panic with odd key/value counts either.
	var l noopLogger
	l.Debug("x", "k")
	l.Info("x")
	l.Warn("x", "k", "v")
	l.Error("x", 1, 2, 3)
}
