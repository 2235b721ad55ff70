package main

import (
	"time"

	"streamhwd/config"
)

const tickInterval = 100 * time.Millisecond

type EndpointEvent int

const (
	EndpointNone        EndpointEvent = iota
	EndpointSpeechEnd                 // speech followed by trailing silence: End
	EndpointNoSpeech                  // nobody spoke: Reset
	EndpointMaxDuration               // utterance too long: End
)

func (e EndpointEvent) String() string {
	switch e {
	case EndpointSpeechEnd:
		return "speech end"
	case EndpointNoSpeech:
		return "no speech"
	case EndpointMaxDuration:
		return "max duration"
	}
	return "none"
}

// endpointMonitor decides when an utterance is over from per-tick speech
// flags. It fires at most one event. A zero duration disables its rule.
type endpointMonitor struct {
	endSilence int // ticks
	noSpeech   int
	maxTicks   int

	ticks     int
	heard     bool
	silentRun int
	fired     bool
}

func newEndpointMonitor(cfg config.SessionConfig) *endpointMonitor {
	return &endpointMonitor{
		endSilence: toTicks(cfg.EndSilence),
		noSpeech:   toTicks(cfg.NoSpeechTimeout),
		maxTicks:   toTicks(cfg.MaxDuration),
	}
}

func toTicks(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + tickInterval - 1) / tickInterval)
}

// MarkSpeech records speech heard by other means, e.g. a hot-word partial.
func (m *endpointMonitor) MarkSpeech() {
	m.heard = true
	m.silentRun = 0
}

func (m *endpointMonitor) Tick(hasSpeech bool) EndpointEvent {
	if m.fired {
		return EndpointNone
	}
	m.ticks++
	if hasSpeech {
		m.MarkSpeech()
	} else {
		m.silentRun++
	}

	ev := EndpointNone
	switch {
	case m.maxTicks > 0 && m.ticks >= m.maxTicks:
		ev = EndpointMaxDuration
	case m.heard && m.endSilence > 0 && m.silentRun >= m.endSilence:
		ev = EndpointSpeechEnd
	case !m.heard && m.noSpeech > 0 && m.ticks >= m.noSpeech:
		ev = EndpointNoSpeech
	}
	m.fired = ev != EndpointNone
	return ev
}
