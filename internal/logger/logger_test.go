package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoggingBeforeInitIsNoop(t *testing.T) {
	defaultLogger = nil
	Debug("debug %d", 1)
	Info("info %d", 2)
	Warn("warn %d", 3)
	Error("error %d", 4)
	Sync()
}

func TestInitFormats(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		Init("debug", format)
		if defaultLogger == nil {
			t.Fatalf("Init(%q) left logger nil", format)
		}
		Info("initialized with %s", format)
	}
	defaultLogger = nil
}
