package recognizer

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	hang   chan struct{} // when set, reads ignore Close until this is closed

	mu         sync.Mutex
	texts      []string
	binary     [][]byte
	writeErr   error
	closeCalls int
	closeOnce  sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.texts = append(f.texts, string(data))
	return nil
}

func (f *fakeConn) WriteBinary(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.binary = append(f.binary, append([]byte(nil), p...))
	return nil
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	if f.hang != nil {
		<-f.hang
		return nil, net.ErrClosed
	}
	select {
	case m, ok := <-f.in:
		if !ok {
			return nil, io.EOF
		}
		return m, nil
	case <-f.closed:
		return nil, net.ErrClosed
	}
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closeCalls++
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeConn) setWriteErr(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

// keywordProcessor matches transcripts containing keyword and accepts any
// final transcript once a partial candidate exists.
func keywordProcessor(model, keyword string) TextProcessor {
	return TextProcessorFunc(func(text string, prev *Candidate) (Candidate, bool) {
		if strings.Contains(text, keyword) {
			return Candidate{Model: model, Phrase: keyword, Text: text}, true
		}
		if prev != nil {
			return Candidate{Model: prev.Model, Phrase: prev.Phrase, Text: text}, true
		}
		return Candidate{}, false
	})
}

func startFake(t *testing.T, cfg Config) (*Session, *fakeConn) {
	t.Helper()
	fc := newFakeConn()
	if cfg.URL == "" {
		cfg.URL = "ws://fake"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	s, err := start(cfg, fc)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		if fc.hang != nil {
			select {
			case <-fc.hang:
			default:
				close(fc.hang)
			}
		}
	})
	return s, fc
}

func feed(fc *fakeConn, msgs ...string) {
	for _, m := range msgs {
		fc.in <- []byte(m)
	}
}

func waitDone(t *testing.T, s *Session) Result {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit")
	}
	r, ok := s.Result()
	if !ok {
		t.Fatal("Result not published after Done")
	}
	return r
}

var errBoom = errors.New("boom")
