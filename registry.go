package main

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"streamhwd/config"
	"streamhwd/log"
	"streamhwd/plugin"
	"streamhwd/proxy"
)

// registry is the in-process plugin host. It keeps the detectors plugins
// insert and serves their terminal calls.
type registry struct {
	mu        sync.Mutex
	detectors map[string]*plugin.Detector
	onReload  func() error
}

func newRegistry(onReload func() error) *registry {
	return &registry{detectors: map[string]*plugin.Detector{}, onReload: onReload}
}

func (r *registry) InsertDetectors(ds ...*plugin.Detector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range ds {
		r.detectors[d.Name] = d
	}
}

func (r *registry) ExtractDetectors(ds ...*plugin.Detector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range ds {
		if r.detectors[d.Name] == d {
			delete(r.detectors, d.Name)
		}
	}
}

func (r *registry) TerminalCall(cmd string) error {
	switch cmd {
	case "reload":
		if r.onReload == nil {
			return nil
		}
		return r.onReload()
	}
	return fmt.Errorf("unknown terminal call %q", cmd)
}

func (r *registry) Detector(name string) (*plugin.Detector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.detectors[name]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("detector %q is not registered", name)
}

func (r *registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.detectors))
	for n := range r.detectors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// liveConfig serves the current configuration to the plugin and picks up
// edits of the config file between sessions.
type liveConfig struct {
	path      string
	overrides func(*config.Config)
	cur       atomic.Pointer[config.Config]
	modTime   time.Time
}

func newLiveConfig(path string, overrides func(*config.Config)) (*liveConfig, error) {
	c := &liveConfig{path: path, overrides: overrides}
	cfg, mod, err := c.load()
	if err != nil {
		return nil, err
	}
	c.cur.Store(cfg)
	c.modTime = mod
	return c, nil
}

func (c *liveConfig) load() (*config.Config, time.Time, error) {
	cfg := config.Default()
	var mod time.Time
	if c.path != "" {
		st, err := os.Stat(c.path)
		if err != nil {
			return nil, mod, fmt.Errorf("config: %w", err)
		}
		mod = st.ModTime()
		if cfg, err = config.Load(c.path); err != nil {
			return nil, mod, err
		}
	}
	if c.overrides != nil {
		c.overrides(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, mod, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, mod, nil
}

func (c *liveConfig) Current() *config.Config { return c.cur.Load() }

func (c *liveConfig) Get(section, key string) (string, bool) {
	return c.Current().Get(section, key)
}

func (c *liveConfig) For(service string) (proxy.Func, error) {
	return proxy.New(c.Current().Proxy).For(service)
}

// refresh reloads the file if it changed on disk and reports whether any of
// the watched settings differ. A broken file keeps the previous config.
func (c *liveConfig) refresh(watched map[string][]string) (bool, error) {
	if c.path == "" {
		return false, nil
	}
	st, err := os.Stat(c.path)
	if err != nil {
		return false, fmt.Errorf("config: %w", err)
	}
	if st.ModTime().Equal(c.modTime) {
		return false, nil
	}
	next, mod, err := c.load()
	if err != nil {
		c.modTime = st.ModTime()
		return false, err
	}
	prev := c.cur.Swap(next)
	c.modTime = mod

	for section, keys := range watched {
		for _, key := range keys {
			a, _ := prev.Get(section, key)
			b, _ := next.Get(section, key)
			if a != b {
				log.Infof("config: %s/%s changed", section, key)
				return true, nil
			}
		}
	}
	return false, nil
}
