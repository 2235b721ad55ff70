package recognizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"streamhwd/log"
	"streamhwd/metrics"

	"github.com/google/uuid"
)

const (
	DefaultConnectTimeout = 60 * time.Second
	DefaultJoinTimeout    = 10 * time.Second
	MaxResampleRate       = 16000
	maxMessageSize        = 1 << 20
)

type Config struct {
	URL        string
	SampleRate int // capture rate of the audio passed to SendAudio before resampling
	Processor  TextProcessor

	// Proxy selects the proxy for the websocket handshake; nil dials directly.
	Proxy  func(*http.Request) (*url.URL, error)
	Header http.Header

	ConnectTimeout time.Duration // also bounds each read and write
	JoinTimeout    time.Duration // End's wait for the worker

	Metrics *metrics.Metrics
}

func (c *Config) defaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = DefaultJoinTimeout
	}
}

// ResampleRate is the rate announced to the server for a capture rate.
func ResampleRate(rate int) int {
	if rate < MaxResampleRate {
		return rate
	}
	return MaxResampleRate
}

type configMessage struct {
	Config struct {
		SampleRate int `json:"sample_rate"`
	} `json:"config"`
}

var eofMessage = map[string]int{"eof": 1}

// Result is the outcome of a session, published once when the worker exits.
type Result struct {
	OK        bool
	Text      string
	ModelInfo ModelInfo
	Timing    Timing
}

func (r Result) RecognitionTime() time.Duration { return r.Timing.RecognitionTime() }
func (r Result) RecordTime() time.Duration      { return r.Timing.RecordTime() }

// Session is one streaming recognition attempt. The caller feeds audio with
// SendAudio and finishes with End or Reset; a worker goroutine consumes the
// server messages.
type Session struct {
	id           string
	cfg          Config
	resampleRate int

	connMu sync.Mutex
	conn   rawConn

	mu        sync.Mutex
	state     DetectionState
	timing    Timing
	modelInfo ModelInfo
	stats     streamStats
	result    Result

	detected chan struct{}
	done     chan struct{}
}

type streamStats struct {
	SentFrames   int
	SentBytes    uint64
	RecvMessages int
	DecodeErrors int
}

// Open connects to the recognition server, sends the stream configuration and
// starts the worker. Failures are returned as *ConnectionError.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Processor == nil {
		return nil, errors.New("recognizer: no text processor")
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("recognizer: invalid sample rate %d", cfg.SampleRate)
	}
	cfg.defaults()

	conn, err := dialWebsocket(ctx, dialConfig{
		URL:         cfg.URL,
		Header:      cfg.Header,
		Proxy:       cfg.Proxy,
		Timeout:     cfg.ConnectTimeout,
		MaxReadSize: maxMessageSize,
	})
	if err != nil {
		cfg.Metrics.ConnectFailed()
		return nil, &ConnectionError{URL: cfg.URL, Err: err}
	}

	s, err := start(cfg, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func start(cfg Config, conn rawConn) (*Session, error) {
	s := newSession(cfg, conn)

	var msg configMessage
	msg.Config.SampleRate = s.resampleRate
	if err := conn.WriteJSON(msg); err != nil {
		cfg.Metrics.ConnectFailed()
		return nil, &ConnectionError{URL: cfg.URL, Err: fmt.Errorf("send config: %w", err)}
	}

	log.SessionStart(s.id, cfg.URL, cfg.SampleRate, s.resampleRate)
	cfg.Metrics.SessionOpened()
	go s.run()
	return s, nil
}

func newSession(cfg Config, conn rawConn) *Session {
	cfg.defaults()
	return &Session{
		id:           uuid.NewString(),
		cfg:          cfg,
		resampleRate: ResampleRate(cfg.SampleRate),
		conn:         conn,
		state:        StateArmed,
		detected:     make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) SampleRate() int { return s.cfg.SampleRate }

// ResampleRate is the rate SendAudio expects its frames in.
func (s *Session) ResampleRate() int { return s.resampleRate }

func (s *Session) currentConn() rawConn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

// SendAudio forwards one binary audio frame. Errors must stop the producer.
func (s *Session) SendAudio(buf []byte) error {
	conn := s.currentConn()
	if conn == nil {
		return ErrClosed
	}
	if err := conn.WriteBinary(buf); err != nil {
		s.cfg.Metrics.SendFailed()
		return fmt.Errorf("send audio: %w", err)
	}
	s.mu.Lock()
	s.stats.SentFrames++
	s.stats.SentBytes += uint64(len(buf))
	s.mu.Unlock()
	s.cfg.Metrics.AudioSent(len(buf))
	return nil
}

// End signals end-of-stream, waits for the final result up to the join
// timeout and then closes the connection regardless of the outcome.
func (s *Session) End() Result {
	conn := s.currentConn()
	if conn == nil {
		return s.snapshot()
	}

	s.mu.Lock()
	s.timing.End = time.Now()
	s.mu.Unlock()

	if err := conn.WriteJSON(eofMessage); err != nil {
		log.Warnf("session %s: eof send failed: %v", s.id, err)
	}

	if !s.wait(s.cfg.JoinTimeout) {
		log.Warnf("session %s: worker did not finish within %s", s.id, s.cfg.JoinTimeout)
		s.cfg.Metrics.JoinTimedOut()
	}
	if err := s.Close(); err != nil {
		log.Warnf("session %s: close: %v", s.id, err)
	}
	return s.snapshot()
}

// Reset abandons the session without waiting for a final result. The close
// error is informational only.
func (s *Session) Reset() error {
	return s.Close()
}

// Close tears the connection down. It is idempotent and safe to call from any
// goroutine; a pending worker read fails and the worker exits.
func (s *Session) Close() error {
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (s *Session) wait(timeout time.Duration) bool {
	select {
	case <-s.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Done is closed once the worker has exited and the result is published.
func (s *Session) Done() <-chan struct{} { return s.done }

// Detected is closed on the armed to triggered transition.
func (s *Session) Detected() <-chan struct{} { return s.detected }

// Processing reports whether the worker is still consuming server messages.
func (s *Session) Processing() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Session) State() DetectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ModelInfo is the latest model info, updated live from partial candidates.
func (s *Session) ModelInfo() ModelInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modelInfo
}

// Result returns the published result once the worker has exited.
func (s *Session) Result() (Result, bool) {
	select {
	case <-s.done:
	default:
		return Result{}, false
	}
	return s.snapshot(), true
}

// Wait blocks until the worker publishes its result or ctx is done.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		return s.snapshot(), nil
	case <-ctx.Done():
		return s.snapshot(), ctx.Err()
	}
}

// snapshot merges the published result with the live timing, since End may
// record its timestamp after the worker has already finished.
func (s *Session) snapshot() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.result
	if !s.isDone() {
		r.ModelInfo = s.modelInfo
	}
	r.Timing = s.timing
	return r
}

func (s *Session) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// hasDetected fires the armed to triggered transition once per session.
func (s *Session) hasDetected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateArmed {
		return false
	}
	s.timing.Start = time.Now()
	s.state = StateTriggered
	close(s.detected)
	s.cfg.Metrics.Detected()
	return true
}
