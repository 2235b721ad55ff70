package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"streamhwd/config"
	"streamhwd/plugin"
)

func TestRegistry(t *testing.T) {
	reloads := 0
	reg := newRegistry(func() error {
		reloads++
		return nil
	})
	a := &plugin.Detector{Name: "a"}
	b := &plugin.Detector{Name: "b"}

	reg.InsertDetectors(b, a)
	if got := reg.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Names = %v", got)
	}
	if d, err := reg.Detector("a"); err != nil || d != a {
		t.Errorf("Detector(a) = %v, %v", d, err)
	}

	// extracting a stale descriptor leaves the current one alone
	reg.ExtractDetectors(&plugin.Detector{Name: "a"})
	if _, err := reg.Detector("a"); err != nil {
		t.Error("stale extract removed the detector")
	}
	reg.ExtractDetectors(a)
	if _, err := reg.Detector("a"); err == nil {
		t.Error("detector still registered after extract")
	}

	if err := reg.TerminalCall("reload"); err != nil || reloads != 1 {
		t.Errorf("reload: err=%v reloads=%d", err, reloads)
	}
	if err := reg.TerminalCall("selfdestruct"); err == nil {
		t.Error("expected error for unknown call")
	}
}

func TestPluginReloadReRegisters(t *testing.T) {
	live, err := newLiveConfig("", nil)
	if err != nil {
		t.Fatal(err)
	}
	var p *plugin.Main
	reg := newRegistry(func() error {
		p.Stop()
		p.Start()
		return nil
	})
	p = plugin.New(live, live, reg)
	p.Start()
	if err := p.Reload(); err != nil {
		t.Fatal(err)
	}
	if d, err := reg.Detector(plugin.DetectorName); err != nil || d != p.Detector() {
		t.Errorf("detector after reload = %v, %v", d, err)
	}
}

func writeConfig(t *testing.T, path, body string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func TestLiveConfigRefresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamhwd.yaml")
	base := time.Now().Add(-time.Hour)
	writeConfig(t, path, "vosk-rest: {server: 'ws://one:2700'}\n", base)

	live, err := newLiveConfig(path, func(c *config.Config) { c.Audio.Device = "mic" })
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := live.Get("vosk-rest", "server"); got != "ws://one:2700" {
		t.Fatalf("server = %q", got)
	}

	changed, err := live.refresh(plugin.ConfigReload)
	if err != nil || changed {
		t.Errorf("unchanged file: changed=%v err=%v", changed, err)
	}

	writeConfig(t, path, "vosk-rest: {server: 'ws://one:2700'}\nmodels: {a: [x]}\n", base.Add(time.Minute))
	if changed, err := live.refresh(plugin.ConfigReload); err != nil || changed {
		t.Errorf("unwatched edit: changed=%v err=%v", changed, err)
	}
	if len(live.Current().Models["a"]) != 1 {
		t.Error("edit not applied")
	}

	writeConfig(t, path, "vosk-rest: {server: 'ws://two:2700'}\n", base.Add(2*time.Minute))
	if changed, err := live.refresh(plugin.ConfigReload); err != nil || !changed {
		t.Errorf("server edit: changed=%v err=%v", changed, err)
	}
	if live.Current().Audio.Device != "mic" {
		t.Error("overrides lost on reload")
	}

	writeConfig(t, path, "vosk-rest: {server: 'http://bad'}\n", base.Add(3*time.Minute))
	if _, err := live.refresh(plugin.ConfigReload); err == nil {
		t.Error("expected error for invalid file")
	}
	if got, _ := live.Get("vosk-rest", "server"); got != "ws://two:2700" {
		t.Errorf("broken file replaced the config, server = %q", got)
	}
}

func TestLiveConfigProxy(t *testing.T) {
	live, err := newLiveConfig("", func(c *config.Config) {
		c.Proxy["stt_vosk-rest"] = "socks5://127.0.0.1:1080"
	})
	if err != nil {
		t.Fatal(err)
	}
	fn, err := live.For("stt_vosk-rest")
	if err != nil || fn == nil {
		t.Errorf("For = %v, %v", fn, err)
	}
	if fn, _ := live.For("other"); fn != nil {
		t.Error("unconfigured service should dial directly")
	}
}

func TestLiveConfigMissingFile(t *testing.T) {
	if _, err := newLiveConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Error("expected error for missing file")
	}
}
