package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{" WARN ", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json形式でロガーを生成できること", func(t *testing.T) {
		t.Parallel()

		logger, err := New("debug", "json")
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if !logger.Core().Enabled(zapcore.DebugLevel) {
			t.Error("debugレベルが有効になっていない")
		}
	})

	t.Run("console形式でロガーを生成できること", func(t *testing.T) {
		t.Parallel()

		logger, err := New("warn", "console")
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if logger.Core().Enabled(zapcore.InfoLevel) {
			t.Error("warnレベル指定でinfoが有効になっている")
		}
	})
}
