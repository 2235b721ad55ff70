package main

import (
	"fmt"
	"sync"
	"time"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"streamhwd/audio"
)

const (
	vadMode         = 3
	vadRate         = 16000
	vadFrameMs      = 20
	vadFrameBytes   = vadRate * vadFrameMs / 1000 * audio.BytesPerSample // 640 bytes
	vadDebounce     = 3                                                    // consecutive speech frames to confirm voice
	speechThreshold = 0.10                                                 // share of speech frames for a tick to count as speaking
)

// vadProcessor classifies captured audio as speech or not. Input at any rate
// is converted to 16kHz for the detector.
type vadProcessor struct {
	vad *webrtcvad.VAD
	rs  *audio.Resampler

	mu            sync.Mutex
	buf           []byte
	voiceDetected bool
	lastVoiceTime time.Time
	speechRun     int
	totalFrames   int
	speechFrames  int
	tickTotal     int
	tickSpeech    int
}

func newVADProcessor(rate int) (*vadProcessor, error) {
	rs, err := audio.NewResampler(rate, vadRate)
	if err != nil {
		return nil, fmt.Errorf("vad: %w", err)
	}
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("vad: %w", err)
	}
	if err := v.SetMode(vadMode); err != nil {
		return nil, fmt.Errorf("vad mode: %w", err)
	}
	return &vadProcessor{vad: v, rs: rs}, nil
}

func (p *vadProcessor) Process(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf = append(p.buf, p.rs.Process(data)...)
	for len(p.buf) >= vadFrameBytes {
		frame := p.buf[:vadFrameBytes]
		p.buf = p.buf[vadFrameBytes:]

		active, err := p.vad.Process(vadRate, frame)
		if err != nil {
			continue
		}
		p.totalFrames++
		if !active {
			p.speechRun = 0
			continue
		}
		p.speechFrames++
		p.speechRun++
		if p.voiceDetected || p.speechRun >= vadDebounce {
			p.voiceDetected = true
			p.lastVoiceTime = time.Now()
		}
	}
}

func (p *vadProcessor) VoiceDetected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voiceDetected
}

func (p *vadProcessor) LastVoiceTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastVoiceTime
}

func (p *vadProcessor) Stats() (total, speech int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalFrames, p.speechFrames
}

// HasSpeechTick reports whether enough frames since the previous call were
// speech. Nothing counts until voice has been confirmed by vadDebounce
// consecutive speech frames.
func (p *vadProcessor) HasSpeechTick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.totalFrames - p.tickTotal
	s := p.speechFrames - p.tickSpeech
	p.tickTotal, p.tickSpeech = p.totalFrames, p.speechFrames
	if t == 0 || !p.voiceDetected {
		return false
	}
	return float64(s)/float64(t) >= speechThreshold
}
