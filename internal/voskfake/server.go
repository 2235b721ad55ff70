// Package voskfake is a scripted in-process recognition server speaking the
// Vosk websocket protocol, for tests.
package voskfake

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// FrameKind classifies a client frame.
type FrameKind int

const (
	FrameAudio FrameKind = iota
	FrameConfig
	FrameEOF
	FrameOther
)

type Frame struct {
	Kind       FrameKind
	Data       []byte
	SampleRate int // FrameConfig only
}

// Handler scripts one client connection.
type Handler func(p *Peer)

type Server struct {
	*httptest.Server

	mu      sync.Mutex
	conns   int
	rates   []int
	audio   int
	eofs    int
	handler Handler
}

// New starts a server running h for every websocket connection.
func New(h Handler) *Server {
	s := &Server{handler: h}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.mu.Unlock()
		p := &Peer{conn: conn, srv: s}
		defer p.Close()
		s.handler(p)
	}))
	return s
}

// URL is the ws:// address of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

type Stats struct {
	Conns       int
	SampleRates []int
	AudioFrames int
	EOFs        int
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Conns:       s.conns,
		SampleRates: append([]int(nil), s.rates...),
		AudioFrames: s.audio,
		EOFs:        s.eofs,
	}
}

type Peer struct {
	conn *websocket.Conn
	srv  *Server
	once sync.Once
}

// Next reads and classifies the next client frame.
func (p *Peer) Next() (Frame, error) {
	mt, data, err := p.conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	if mt == websocket.BinaryMessage {
		p.srv.mu.Lock()
		p.srv.audio++
		p.srv.mu.Unlock()
		return Frame{Kind: FrameAudio, Data: data}, nil
	}

	var msg struct {
		Config *struct {
			SampleRate int `json:"sample_rate"`
		} `json:"config"`
		EOF *int `json:"eof"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return Frame{Kind: FrameOther, Data: data}, nil
	}
	switch {
	case msg.Config != nil:
		p.srv.mu.Lock()
		p.srv.rates = append(p.srv.rates, msg.Config.SampleRate)
		p.srv.mu.Unlock()
		return Frame{Kind: FrameConfig, Data: data, SampleRate: msg.Config.SampleRate}, nil
	case msg.EOF != nil:
		p.srv.mu.Lock()
		p.srv.eofs++
		p.srv.mu.Unlock()
		return Frame{Kind: FrameEOF, Data: data}, nil
	}
	return Frame{Kind: FrameOther, Data: data}, nil
}

// Expect reads frames until one of kind arrives, skipping audio.
func (p *Peer) Expect(kind FrameKind) (Frame, error) {
	for {
		f, err := p.Next()
		if err != nil {
			return f, err
		}
		if f.Kind == kind {
			return f, nil
		}
		if f.Kind != FrameAudio {
			return f, errors.New("voskfake: unexpected frame")
		}
	}
}

func (p *Peer) Partial(text string) error {
	return p.conn.WriteJSON(map[string]string{"partial": text})
}

func (p *Peer) Text(text string) error {
	return p.conn.WriteJSON(map[string]any{"text": text, "result": []any{}})
}

// Raw sends a text frame as is, e.g. malformed JSON.
func (p *Peer) Raw(s string) error {
	return p.conn.WriteMessage(websocket.TextMessage, []byte(s))
}

// Drain consumes client frames until the connection fails.
func (p *Peer) Drain() {
	for {
		if _, err := p.Next(); err != nil {
			return
		}
	}
}

func (p *Peer) Close() {
	p.once.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = p.conn.Close()
	})
}
