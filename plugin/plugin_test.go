package plugin

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"testing"
	"time"

	"streamhwd/internal/voskfake"
	"streamhwd/proxy"
	"streamhwd/recognizer"
)

type fakeOwner struct {
	inserted  []*Detector
	extracted []*Detector
	calls     []string
}

func (o *fakeOwner) InsertDetectors(ds ...*Detector)  { o.inserted = append(o.inserted, ds...) }
func (o *fakeOwner) ExtractDetectors(ds ...*Detector) { o.extracted = append(o.extracted, ds...) }
func (o *fakeOwner) TerminalCall(cmd string) error {
	o.calls = append(o.calls, cmd)
	return nil
}

type mapConfig map[string]string

func (c mapConfig) Get(section, key string) (string, bool) {
	v, ok := c[section+"/"+key]
	return v, ok
}

type fakeProxies struct {
	services []string
	err      error
}

func (p *fakeProxies) For(service string) (proxy.Func, error) {
	p.services = append(p.services, service)
	return nil, p.err
}

var anyText = recognizer.TextProcessorFunc(func(text string, _ *recognizer.Candidate) (recognizer.Candidate, bool) {
	return recognizer.Candidate{Model: "m", Text: text}, text != ""
})

func TestDescriptor(t *testing.T) {
	m := New(mapConfig{}, nil, &fakeOwner{})
	d := m.Detector()

	if d.Name != "stream-vosk" || d.MustPreload || !d.FakeModels {
		t.Errorf("descriptor = %+v", d)
	}
	if !reflect.DeepEqual(d.ModelsSupport, []string{"1"}) {
		t.Errorf("ModelsSupport = %v", d.ModelsSupport)
	}
	if Name != "streams-hwd" || TerminalVersionMin != [3]int{0, 16, 1} {
		t.Errorf("plugin identity = %s %v", Name, TerminalVersionMin)
	}
	if !reflect.DeepEqual(ConfigReload, map[string][]string{"vosk-rest": {"server"}}) {
		t.Errorf("ConfigReload = %v", ConfigReload)
	}
}

func TestLifecycle(t *testing.T) {
	owner := &fakeOwner{}
	m := New(mapConfig{}, nil, owner)

	m.Start()
	m.Stop()
	if err := m.Reload(); err != nil {
		t.Fatal(err)
	}

	if len(owner.inserted) != 1 || owner.inserted[0] != m.Detector() {
		t.Errorf("inserted = %v", owner.inserted)
	}
	if len(owner.extracted) != 1 || owner.extracted[0] != m.Detector() {
		t.Errorf("extracted = %v", owner.extracted)
	}
	if !reflect.DeepEqual(owner.calls, []string{"reload"}) {
		t.Errorf("terminal calls = %v", owner.calls)
	}
}

func TestFactoryReadsServerPerSession(t *testing.T) {
	script := func(p *voskfake.Peer) {
		p.Expect(voskfake.FrameConfig)
		p.Drain()
	}
	first := voskfake.New(script)
	defer first.Close()
	second := voskfake.New(script)
	defer second.Close()

	cfg := mapConfig{"vosk-rest/server": first.URL()}
	proxies := &fakeProxies{}
	m := New(cfg, proxies, &fakeOwner{})

	open := func() {
		s, err := m.Detector().New(context.Background(), SessionParams{
			SampleRate:     48000,
			Processor:      anyText,
			ConnectTimeout: time.Second,
			JoinTimeout:    100 * time.Millisecond,
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if s.ResampleRate() != 16000 {
			t.Errorf("ResampleRate = %d", s.ResampleRate())
		}
		s.Reset()
	}

	open()
	cfg["vosk-rest/server"] = second.URL()
	open()

	waitConns(t, first, 1)
	waitConns(t, second, 1)
	if !reflect.DeepEqual(proxies.services, []string{"stt_vosk-rest", "stt_vosk-rest"}) {
		t.Errorf("proxy lookups = %v", proxies.services)
	}
}

func TestFactoryErrors(t *testing.T) {
	params := SessionParams{SampleRate: 16000, Processor: anyText, ConnectTimeout: time.Second}

	m := New(mapConfig{}, nil, &fakeOwner{})
	_, err := m.Detector().New(context.Background(), params)
	var connErr *recognizer.ConnectionError
	if !errors.As(err, &connErr) {
		t.Errorf("missing server: got %v, want ConnectionError", err)
	}

	boom := errors.New("boom")
	m = New(mapConfig{"vosk-rest/server": "ws://127.0.0.1:1"}, &fakeProxies{err: boom}, &fakeOwner{})
	_, err = m.Detector().New(context.Background(), params)
	if !errors.As(err, &connErr) || !errors.Is(err, boom) {
		t.Errorf("proxy failure: got %v", err)
	}
}

func TestFactoryUsesProxy(t *testing.T) {
	var asked bool
	fn := func(*http.Request) (*url.URL, error) {
		asked = true
		return nil, nil
	}
	srv := voskfake.New(func(p *voskfake.Peer) { p.Drain() })
	defer srv.Close()

	m := New(mapConfig{"vosk-rest/server": srv.URL()}, proxyFunc(fn), &fakeOwner{})
	s, err := m.Detector().New(context.Background(), SessionParams{SampleRate: 16000, Processor: anyText})
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	if !asked {
		t.Error("proxy function not consulted")
	}
}

func waitConns(t *testing.T, srv *voskfake.Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for srv.Stats().Conns != want {
		if time.Now().After(deadline) {
			t.Fatalf("conns = %d, want %d", srv.Stats().Conns, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type proxyFunc proxy.Func

func (f proxyFunc) For(string) (proxy.Func, error) { return proxy.Func(f), nil }
