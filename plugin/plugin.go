// Package plugin registers the streaming Vosk detector with a voice terminal host.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"streamhwd/log"
	"streamhwd/metrics"
	"streamhwd/proxy"
	"streamhwd/recognizer"
)

const (
	Name         = "streams-hwd"
	DetectorName = "stream-vosk"

	configSection = "vosk-rest"
	serverKey     = "server"
	proxyService  = "stt_vosk-rest"
)

// TerminalVersionMin is the oldest host version the plugin runs on.
var TerminalVersionMin = [3]int{0, 16, 1}

// ConfigReload lists the settings whose change needs a plugin reload.
var ConfigReload = map[string][]string{configSection: {serverKey}}

// ConfigProvider is the read side of the host configuration.
type ConfigProvider interface {
	Get(section, key string) (string, bool)
}

// ProxyResolver returns the proxy for a named service; nil means direct.
type ProxyResolver interface {
	For(service string) (proxy.Func, error)
}

// Owner is the host that runs detectors.
type Owner interface {
	InsertDetectors(ds ...*Detector)
	ExtractDetectors(ds ...*Detector)
	TerminalCall(cmd string) error
}

// SessionParams are the per-session inputs the host supplies.
type SessionParams struct {
	SampleRate     int
	Processor      recognizer.TextProcessor
	ConnectTimeout time.Duration
	JoinTimeout    time.Duration
	Metrics        *metrics.Metrics
}

// Factory opens a streaming session.
type Factory func(ctx context.Context, p SessionParams) (*recognizer.Session, error)

// Detector describes a detector type to the host.
type Detector struct {
	Name          string
	ModelsSupport []string
	MustPreload   bool
	FakeModels    bool // models are phrase lists, not files
	New           Factory
}

// Main is the plugin entry point.
type Main struct {
	cfg     ConfigProvider
	proxies ProxyResolver
	owner   Owner
	det     *Detector
}

func New(cfg ConfigProvider, proxies ProxyResolver, owner Owner) *Main {
	m := &Main{cfg: cfg, proxies: proxies, owner: owner}
	m.det = &Detector{
		Name:          DetectorName,
		ModelsSupport: []string{"1"},
		MustPreload:   false,
		FakeModels:    true,
		New:           m.newSession,
	}
	return m
}

func (m *Main) Detector() *Detector { return m.det }

func (m *Main) Start() {
	m.owner.InsertDetectors(m.det)
	log.Infof("plugin %s: detector %s registered", Name, DetectorName)
}

func (m *Main) Stop() {
	m.owner.ExtractDetectors(m.det)
	log.Infof("plugin %s: detector %s removed", Name, DetectorName)
}

func (m *Main) Reload() error {
	return m.owner.TerminalCall("reload")
}

// newSession resolves the server address and proxy at every call, so a
// changed configuration applies to the next session.
func (m *Main) newSession(ctx context.Context, p SessionParams) (*recognizer.Session, error) {
	url, ok := m.cfg.Get(configSection, serverKey)
	if !ok || url == "" {
		return nil, &recognizer.ConnectionError{
			Err: errors.New("vosk-rest server is not configured"),
		}
	}

	var proxyFn proxy.Func
	if m.proxies != nil {
		var err error
		if proxyFn, err = m.proxies.For(proxyService); err != nil {
			return nil, &recognizer.ConnectionError{URL: url, Err: err}
		}
	}

	s, err := recognizer.Open(ctx, recognizer.Config{
		URL:            url,
		SampleRate:     p.SampleRate,
		Processor:      p.Processor,
		Proxy:          proxyFn,
		ConnectTimeout: p.ConnectTimeout,
		JoinTimeout:    p.JoinTimeout,
		Metrics:        p.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", DetectorName, err)
	}
	return s, nil
}
