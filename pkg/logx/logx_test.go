package logx

import "testing"

func TestOrDefaultFallsBackOnNil(t *testing.T) {
	if OrDefault(nil) == nil {
		t.Fatal("OrDefault(nil) returned nil")
	}
}

func TestOrDefaultPassesThroughNonNil(t *testing.T) {
	var got Level
	var msg string
	l := LoggerFunc(func(level Level, format string, args ...interface{}) {
		got = level
		msg = format
	})
	OrDefault(l).Log(LevelWarn, "hello")
	if got != LevelWarn || msg != "hello" {
		t.Errorf("got level=%v msg=%q, want LevelWarn/hello", got, msg)
	}
}

func TestDiscardDoesNotPanic(t *testing.T) {
	Discard.Log(LevelError, "%s", "boom")
}

func TestLevelStrings(t *testing.T) {
	cases := map[Level]string{
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", level, got, want)
		}
	}
}
