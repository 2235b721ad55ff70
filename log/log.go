package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	diagFileName      = "diagnostics_log.txt"
	detectionFileName = "detections_log.txt"
	envLogPath        = "STREAMHWD_LOG_PATH"
)

var (
	diagLog       zerolog.Logger
	diagFile      *os.File
	detectionFile *os.File
	logMu         sync.Mutex
	logReady      bool
	pid           int
	dir           string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absPath(flagPath)
	}

	// Priority 2: environment variable
	if envPath := os.Getenv(envLogPath); envPath != "" {
		return absPath(envPath)
	}

	// Priority 3: default OS-specific location
	return getDefaultDir()
}

func absPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagFile, err = os.OpenFile(filepath.Join(dir, diagFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	detectionFile, err = os.OpenFile(filepath.Join(dir, detectionFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05.000",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if detectionFile != nil {
		detectionFile.Close()
		detectionFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(id, url string, rate, resampleRate int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", id).
		Str("url", url).
		Int("rate", rate).
		Int("resample_rate", resampleRate).
		Msg("session_start")
}

type SessionResultData struct {
	ID            string
	OK            bool
	Model         string
	Phrase        string
	RecognitionMs float64
	RecordMs      float64
	SentFrames    int
	SentKB        float64
	RecvMessages  int
	DecodeErrors  int
}

func SessionResult(r SessionResultData) {
	if !logReady {
		return
	}
	ev := diagLog.Info().
		Str("session", r.ID).
		Bool("ok", r.OK)
	if r.Model != "" {
		ev = ev.Str("model", r.Model)
	}
	if r.Phrase != "" {
		ev = ev.Str("phrase", r.Phrase)
	}
	ev.Float64("recognition_ms", r.RecognitionMs).
		Float64("record_ms", r.RecordMs).
		Int("sent_frames", r.SentFrames).
		Float64("sent_kb", r.SentKB).
		Int("recv_messages", r.RecvMessages).
		Int("decode_errors", r.DecodeErrors).
		Msg("session_result")
}

// Detection appends the recognized utterance to the detections log.
func Detection(model, text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, model, text)
	detectionFile.WriteString(line)
}
