package util

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func captureLog(t *testing.T, level LogLevel) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetColors(false)
	SetLogLevel(level)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLogLevel(LevelInfo)
	})
	return &buf
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		name  string
		level LogLevel
		want  []string
		skip  []string
	}{
		{"info", LevelInfo, []string{"[INFO]", "[WARN]", "[ERROR]", "[OK]"}, []string{"[DEBUG]"}},
		{"debug", LevelDebug, []string{"[DEBUG]", "[INFO]"}, nil},
		{"quiet", LevelError, []string{"[ERROR]"}, []string{"[INFO]", "[WARN]", "[OK]"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLog(t, tt.level)
			DebugLog("d")
			InfoLog("i")
			WarnLog("w")
			ErrorLog("e")
			SuccessLog("s")

			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("expected %s in output:\n%s", w, out)
				}
			}
			for _, s := range tt.skip {
				if strings.Contains(out, s) {
					t.Errorf("did not expect %s in output:\n%s", s, out)
				}
			}
			if strings.Contains(out, "\033[") {
				t.Error("colors should be disabled")
			}
		})
	}
}

func TestQuietAndVerbose(t *testing.T) {
	captureLog(t, LevelInfo)

	SetVerbose(false)
	SetQuiet(false)
	if IsQuiet() {
		t.Error("false flags should leave the level alone")
	}
	SetQuiet(true)
	if !IsQuiet() {
		t.Error("SetQuiet(true) should suppress all but errors")
	}
}
