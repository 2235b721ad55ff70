package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"streamhwd/audio"
	"streamhwd/beep"
	"streamhwd/config"
	"streamhwd/encoder"
	"streamhwd/log"
	"streamhwd/metrics"
	"streamhwd/plugin"
	"streamhwd/recognizer"
)

var errNoSpeech = errors.New("no speech")

const chunkQueue = 64

// listener runs one recognition session per utterance over a running capture.
type listener struct {
	detector *plugin.Detector
	capture  audio.CaptureDevice
	rate     int
	session  config.SessionConfig
	proc     recognizer.TextProcessor
	metrics  *metrics.Metrics
	record   bool // keep the sent audio for saving
}

type utterance struct {
	id     string
	result recognizer.Result
	event  EndpointEvent
	audio  []byte // as sent, at rate
	rate   int
}

// listen opens a session and streams the capture into it until the endpoint
// monitor or the server finishes the utterance. Cancelling ctx resets the
// session.
func (l *listener) listen(ctx context.Context) (*utterance, error) {
	s, err := l.detector.New(ctx, plugin.SessionParams{
		SampleRate:     l.rate,
		Processor:      l.proc,
		ConnectTimeout: l.session.ConnectTimeout,
		JoinTimeout:    l.session.JoinTimeout,
		Metrics:        l.metrics,
	})
	if err != nil {
		return nil, err
	}
	defer s.Close()

	rs, err := audio.NewResampler(s.SampleRate(), s.ResampleRate())
	if err != nil {
		return nil, err
	}
	vad, err := newVADProcessor(l.rate)
	if err != nil {
		return nil, err
	}
	defer logVAD(s.ID(), vad)
	mon := newEndpointMonitor(l.session)

	chunks := make(chan []byte, chunkQueue)
	l.capture.SetCallback(func(data []byte, _ uint32) {
		select {
		case chunks <- append([]byte(nil), data...):
		default:
			log.Warn("capture queue full, chunk dropped")
		}
	})
	defer l.capture.ClearCallback()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	u := &utterance{id: s.ID(), rate: s.ResampleRate()}
	detected := s.Detected()
	for {
		select {
		case <-ctx.Done():
			s.Reset()
			return u, ctx.Err()

		case data := <-chunks:
			vad.Process(data)
			pcm := rs.Process(data)
			if len(pcm) == 0 {
				continue
			}
			if err := s.SendAudio(pcm); err != nil {
				s.Reset()
				return u, err
			}
			if l.record {
				u.audio = append(u.audio, pcm...)
			}

		case <-detected:
			detected = nil
			mon.MarkSpeech()
			beep.PlayDetect()
			mi := s.ModelInfo()
			log.Infof("session %s: detected %s%s", s.ID(), mi.Model, mi.Display)

		case <-s.Done():
			// the server finished on its own, e.g. a final transcript
			u.result = s.End()
			return u, nil

		case <-ticker.C:
			switch ev := mon.Tick(vad.HasSpeechTick()); ev {
			case EndpointSpeechEnd, EndpointMaxDuration:
				log.Infof("session %s: %s", s.ID(), ev)
				u.event = ev
				u.result = s.End()
				return u, nil
			case EndpointNoSpeech:
				log.Infof("session %s: %s", s.ID(), ev)
				u.event = ev
				s.Reset()
				return u, errNoSpeech
			}
		}
	}
}

func logVAD(id string, vad *vadProcessor) {
	total, speech := vad.Stats()
	if !vad.VoiceDetected() {
		log.Infof("session %s: no voice in %d vad frames", id, total)
		return
	}
	log.Infof("session %s: %d/%d vad frames speech, last voice %s ago",
		id, speech, total, time.Since(vad.LastVoiceTime()).Round(time.Millisecond))
}

func printResult(w io.Writer, u *utterance) {
	r := u.result
	if !r.OK {
		fmt.Fprintf(w, "[%s] nothing recognized\n", shortID(u.id))
		return
	}
	fmt.Fprintf(w, "[%s] %s%s: %s\n", shortID(u.id), r.ModelInfo.Model, r.ModelInfo.Display, r.Text)
	fmt.Fprintf(w, "    recognition %s, record %s\n", fmtDuration(r.RecognitionTime()), fmtDuration(r.RecordTime()))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func fmtDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// saveUtterance writes the audio as <dir>/<session id>.flac.
func saveUtterance(dir string, u *utterance) (string, error) {
	if len(u.audio) == 0 {
		return "", nil
	}
	path := filepath.Join(dir, u.id+".flac")
	if err := encoder.WriteFile(path, u.audio, u.rate); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}
