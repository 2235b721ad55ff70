// Package beep plays short cues: detection, result, error.
package beep

import (
	"encoding/binary"
	"math"
	"sync/atomic"
)

const sampleRate = 44100

var disabled atomic.Bool

func Disable() { disabled.Store(true) }

// tone is a decaying sine burst, optionally repeated after a gap.
type tone struct {
	freq     float64
	duration float64 // seconds
	volume   float64
	decay    float64
	repeat   int
	gap      float64 // seconds between repeats
}

var (
	detectTone = tone{freq: 1200, duration: 0.12, volume: 0.5, decay: 50}
	resultTone = tone{freq: 900, duration: 0.15, volume: 0.5, decay: 40}
	errorTone  = tone{freq: 350, duration: 0.08, volume: 0.6, decay: 30, repeat: 2, gap: 0.05}
)

// pcm renders the tone as mono little-endian 16-bit samples.
func (t tone) pcm(rate int) []byte {
	n := int(float64(rate) * t.duration)
	burst := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		at := float64(i) / float64(rate)
		v := math.Sin(2*math.Pi*t.freq*at) * 32767 * t.volume * math.Exp(-at*t.decay)
		burst = binary.LittleEndian.AppendUint16(burst, uint16(int16(v)))
	}
	if t.repeat <= 1 {
		return burst
	}
	gap := make([]byte, int(float64(rate)*t.gap)*2)
	out := make([]byte, 0, t.repeat*len(burst)+(t.repeat-1)*len(gap))
	for i := 0; i < t.repeat; i++ {
		if i > 0 {
			out = append(out, gap...)
		}
		out = append(out, burst...)
	}
	return out
}

// PlayDetect is the cue for an armed session that heard its hot word.
func PlayDetect() { play(detectTone) }

// PlayResult is the cue for a successful recognition.
func PlayResult() { play(resultTone) }

func PlayError() { play(errorTone) }

func play(t tone) {
	if disabled.Load() {
		return
	}
	playPCM(t.pcm(sampleRate))
}
