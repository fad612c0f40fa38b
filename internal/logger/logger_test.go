package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestQuietSuppressesInfo(t *testing.T) {
	core, logs := observer.New(level)
	Use(zap.New(core))
	defer Use(nil)
	defer SetQuiet(false)

	Info("probe %s", "rtc0")
	Named("ds3231").Infof("named")
	SetQuiet(true)
	Info("hidden")
	Named("ds3231").Infof("hidden named")
	Named("ds3231").Warnf("named warn")
	Error("bus %d failed", 1)

	var msgs []string
	for _, e := range logs.All() {
		msgs = append(msgs, e.Message)
	}
	want := []string{"probe rtc0", "named", "named warn", "bus 1 failed"}
	if len(msgs) != len(want) {
		t.Fatalf("messages = %q, want %q", msgs, want)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, msgs[i], want[i])
		}
	}
	if got := logs.All()[1].LoggerName; got != "ds3231" {
		t.Errorf("logger name %q", got)
	}
}

func TestQuietKeepsHigherLevel(t *testing.T) {
	defer SetLevel("info")
	defer SetQuiet(false)
	SetLevel("error")
	SetQuiet(true)
	if level.Level() != zapcore.ErrorLevel {
		t.Errorf("level = %v, want error", level.Level())
	}
	SetQuiet(false)
	SetLevel("debug")
	if level.Level() != zapcore.DebugLevel {
		t.Errorf("level = %v, want debug", level.Level())
	}
}

func TestSetLevelIgnoresUnknown(t *testing.T) {
	defer SetLevel("info")
	SetLevel("debug")
	if level.Level() != zapcore.DebugLevel {
		t.Fatalf("level = %v", level.Level())
	}
	SetLevel("chatty")
	if level.Level() != zapcore.DebugLevel {
		t.Errorf("unknown level changed it to %v", level.Level())
	}
}
