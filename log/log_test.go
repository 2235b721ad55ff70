package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDir(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	for _, tt := range []struct {
		name, flag, env, want string
	}{
		{"flag absolute", "/tmp/hwdlog", "", "/tmp/hwdlog"},
		{"flag relative", "logs", "", filepath.Join(wd, "logs")},
		{"flag wins over env", "/tmp/flag", "/tmp/env", "/tmp/flag"},
		{"env absolute", "", "/tmp/hwd-env-log", "/tmp/hwd-env-log"},
		{"env relative", "", "envlogs", filepath.Join(wd, "envlogs")},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(envLogPath, tt.env)
			got, err := ResolveDir(tt.flag)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv(envLogPath, "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "streamhwd") {
		t.Errorf("default dir %q does not mention streamhwd", got)
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{diagFileName, detectionFileName} {
		if _, err := os.Stat(filepath.Join(tmp, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestDetection(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	Detection("light", "turn on the light")

	data, err := os.ReadFile(filepath.Join(tmp, detectionFileName))
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	if !strings.Contains(line, "light\tturn on the light") {
		t.Errorf("detections log missing entry, got: %q", line)
	}
	if strings.Count(line, "\t") != 3 {
		t.Errorf("expected 4 tab-separated fields, got: %q", line)
	}
}

func TestSessionEventsWritten(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	SessionStart("abc", "ws://localhost:2700", 44100, 16000)
	SessionResult(SessionResultData{ID: "abc", OK: true, Model: "light", Phrase: "turn on", RecordMs: 1200})
	Warnf("eof send failed: %v", os.ErrClosed)
	Close()

	data, err := os.ReadFile(filepath.Join(tmp, diagFileName))
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{"session_start", "resample_rate=16000", "session_result", "model=light", "eof send failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("diagnostics log missing %q:\n%s", want, out)
		}
	}
}

func TestHelpersNoopBeforeInit(t *testing.T) {
	Close()
	// must not panic without open files
	Info("x")
	Warnf("%d", 1)
	Detection("m", "t")
	SessionResult(SessionResultData{ID: "x"})
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}
