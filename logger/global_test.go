package logger

import (
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func resetGlobal() {
	global.Store(nil)
}

func TestGlobalLogger_FallbackInitialization(t *testing.T) {
	resetGlobal()

	Info("test message", zap.String("key", "value"))

	first := GetGlobalLogger()
	if first == nil {
		t.Fatal("global logger should be initialized after calling Info")
	}
	if GetGlobalLogger() != first {
		t.Error("fallback logger should be built once")
	}
}

func TestGlobalLogger_SetGlobalLogger(t *testing.T) {
	resetGlobal()
	core, recorded := observer.New(zapcore.DebugLevel)
	SetGlobalLogger(zap.New(core, zap.AddCallerSkip(1)))

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	entries := recorded.All()
	want := []string{"debug message", "info message", "warn message", "error message"}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, entry := range entries {
		if entry.Message != want[i] {
			t.Errorf("entry %d: expected %q, got %q", i, want[i], entry.Message)
		}
	}
}

func TestGlobalLogger_ConcurrentAccess(t *testing.T) {
	resetGlobal()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			Info("concurrent message", zap.Int("goroutine", id))
		}(i)
	}
	wg.Wait()
}

func TestNew_SetsGlobalLogger(t *testing.T) {
	resetGlobal()

	if _, err := New(&Config{Level: "debug", Encoding: "json"}); err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if global.Load() == nil {
		t.Error("global logger should be set after New")
	}
}
