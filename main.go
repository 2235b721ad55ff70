package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"streamhwd/audio"
	"streamhwd/beep"
	"streamhwd/config"
	"streamhwd/hotword"
	"streamhwd/log"
	"streamhwd/metrics"
	"streamhwd/plugin"
	"streamhwd/shutdown"
)

var version = "dev"

const retryDelay = 2 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configFlag := flag.String("config", "", "YAML config file")
	serverFlag := flag.String("server", "", "Vosk websocket server, overrides vosk-rest/server")
	wavFlag := flag.String("wav", "", "Listen to a 16-bit PCM WAV file instead of the microphone")
	realtimeFlag := flag.Bool("realtime", true, "Play -wav at real speed")
	deviceFlag := flag.String("device", "", "Capture device (substring of its name)")
	setupFlag := flag.Bool("setup", false, "Select the capture device interactively")
	rateFlag := flag.Int("rate", 0, "Capture sample rate, overrides audio/sample_rate")
	gainFlag := flag.Float64("gain", 1, "Software capture gain")
	hotwordFlag := flag.String("hotword", "", "Comma-separated phrases for an extra model named \"cli\"")
	onceFlag := flag.Bool("once", false, "Exit after the first utterance")
	beepFlag := flag.Bool("beep", true, "Play audio cues")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	metricsFlag := flag.String("metrics", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	saveFlag := flag.String("save", "", "Directory to save utterances as FLAC")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("streamhwd %s (plugin %s, detector %s)\n", version, plugin.Name, plugin.DetectorName)
		return 0
	}

	overrides := func(c *config.Config) {
		if *serverFlag != "" {
			c.VoskRest.Server = *serverFlag
		}
		if *rateFlag > 0 {
			c.Audio.SampleRate = *rateFlag
		}
		if *deviceFlag != "" {
			c.Audio.Device = *deviceFlag
		}
		if *logPathFlag != "" {
			c.Log.Path = *logPathFlag
		}
		if *metricsFlag != "" {
			c.Metrics.Listen = *metricsFlag
		}
		if *saveFlag != "" {
			c.Save.Dir = *saveFlag
		}
		if *hotwordFlag != "" {
			if c.Models == nil {
				c.Models = map[string][]string{}
			}
			c.Models["cli"] = strings.Split(*hotwordFlag, ",")
		}
	}
	live, err := newLiveConfig(*configFlag, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	cfg := live.Current()

	logPath, err := log.ResolveDir(cfg.Log.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	if crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	if !*beepFlag {
		beep.Disable()
	}

	models, err := hotword.New(cfg.Models)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v (add models to the config or use -hotword)\n", err)
		return 1
	}

	m := metrics.New(nil)
	if cfg.Metrics.Listen != "" {
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: metricsMux(m)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("metrics server: %v", err)
				fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
			}
		}()
		defer srv.Close()
		fmt.Printf("metrics on http://%s/metrics\n", cfg.Metrics.Listen)
	}

	// The plugin registers its detector with the registry; a reload
	// re-registers it so the next session sees the new settings.
	var p *plugin.Main
	reg := newRegistry(func() error {
		p.Stop()
		p.Start()
		return nil
	})
	p = plugin.New(live, live, reg)
	p.Start()
	defer p.Stop()
	log.Infof("detectors: %s", strings.Join(reg.Names(), ", "))

	actx, capture, rate, err := openCapture(cfg, *wavFlag, *realtimeFlag, *setupFlag, *gainFlag)
	if err != nil {
		log.Errorf("capture init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer actx.Close()
	defer capture.Close()
	if err := capture.Start(); err != nil {
		log.Errorf("capture start error: %v", err)
		fmt.Fprintf(os.Stderr, "Error starting capture: %v\n", err)
		return 1
	}
	defer capture.Stop()

	if cfg.Save.Dir != "" {
		if err := os.MkdirAll(cfg.Save.Dir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	fmt.Printf("listening on %s at %d Hz for %s (ctrl+c to stop)\n",
		capture.DeviceName(), rate, strings.Join(models.IDs(), ", "))
	// a WAV file is listened to utterance by utterance until it runs out
	var fileDone <-chan struct{}
	if fc, ok := capture.(*audio.FileCapture); ok {
		fileDone = fc.AudioDone()
	}
	once := *onceFlag
	recognized := false

	for {
		if changed, err := live.refresh(plugin.ConfigReload); err != nil {
			log.Warnf("config reload: %v", err)
		} else if changed {
			if err := p.Reload(); err != nil {
				log.Errorf("plugin reload: %v", err)
			}
		}
		if next := live.Current(); next != cfg {
			cfg = next
			if fresh, err := hotword.New(cfg.Models); err != nil {
				log.Warnf("models: %v, keeping previous", err)
			} else {
				models = fresh
			}
		}

		det, err := reg.Detector(plugin.DetectorName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		l := &listener{
			detector: det,
			capture:  capture,
			rate:     rate,
			session:  cfg.Session,
			proc:     models,
			metrics:  m,
			record:   cfg.Save.Dir != "",
		}

		u, err := l.listen(ctx)
		switch {
		case ctx.Err() != nil:
			fmt.Println("interrupted")
			return 0
		case errors.Is(err, errNoSpeech):
			log.Info("no speech, session reset")
			if finished(fileDone) {
				return exitCode(recognized)
			}
			if once {
				fmt.Println("no speech")
				return 1
			}
			continue
		case err != nil:
			log.Errorf("session: %v", err)
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			beep.PlayError()
			if once || fileDone != nil {
				return 1
			}
			select {
			case <-ctx.Done():
				return 0
			case <-time.After(retryDelay):
			}
			continue
		}

		if u.result.OK {
			recognized = true
			beep.PlayResult()
		}
		printResult(os.Stdout, u)
		if cfg.Save.Dir != "" {
			if path, err := saveUtterance(cfg.Save.Dir, u); err != nil {
				log.Errorf("%v", err)
			} else if path != "" {
				fmt.Printf("    saved %s\n", path)
			}
		}
		if once || finished(fileDone) {
			return exitCode(recognized)
		}
	}
}

// finished reports whether done is closed. A nil channel never finishes.
func finished(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func exitCode(ok bool) int {
	if ok {
		return 0
	}
	return 1
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

// openCapture picks the audio source. The returned rate is the real capture
// rate, which for a WAV file is the file's own.
func openCapture(cfg *config.Config, wav string, realtime, setup bool, gain float64) (audio.Context, audio.CaptureDevice, int, error) {
	if wav != "" {
		fctx, err := audio.NewFileContext(wav, realtime)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("loading WAV: %w", err)
		}
		capture, err := fctx.NewCapture(nil, audio.CaptureConfig{})
		if err != nil {
			return nil, nil, 0, err
		}
		return fctx, capture, fctx.SampleRate(), nil
	}

	actx, err := audio.NewContext()
	if err != nil {
		return nil, nil, 0, fmt.Errorf("initializing audio: %w", err)
	}
	var device *audio.DeviceInfo
	if setup {
		device, err = audio.SelectDevice(actx)
	} else {
		device, err = audio.FindDevice(actx, cfg.Audio.Device)
	}
	if err != nil {
		actx.Close()
		return nil, nil, 0, err
	}
	capture, err := actx.NewCapture(device, audio.CaptureConfig{
		SampleRate: uint32(cfg.Audio.SampleRate),
		Channels:   1,
		Gain:       gain,
	})
	if err != nil {
		actx.Close()
		return nil, nil, 0, fmt.Errorf("initializing capture device: %w", err)
	}
	return actx, capture, cfg.Audio.SampleRate, nil
}
