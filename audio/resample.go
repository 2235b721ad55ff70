package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Resampler converts a stream of PCM16 chunks between sample rates using
// linear interpolation. It keeps the phase and the last sample between calls,
// so chunk boundaries do not click or drift.
type Resampler struct {
	from, to int
	step     float64 // input samples per output sample
	pos      float64 // next output position relative to the current chunk
	last     float64
}

func NewResampler(from, to int) (*Resampler, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid sample rates: from=%d, to=%d", from, to)
	}
	return &Resampler{from: from, to: to, step: float64(from) / float64(to)}, nil
}

func (r *Resampler) passthrough() bool { return r.from == r.to }

// Process resamples one chunk. A trailing odd byte is dropped.
func (r *Resampler) Process(pcm []byte) []byte {
	if r.passthrough() {
		return pcm
	}
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return nil
	}

	sample := func(i int) float64 {
		if i < 0 {
			return r.last
		}
		return float64(int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:])))
	}

	out := make([]byte, 0, (int(float64(n)/r.step)+1)*BytesPerSample)
	for r.pos <= float64(n-1) {
		i := int(math.Floor(r.pos))
		frac := r.pos - float64(i)
		v := sample(i)
		if frac > 0 {
			v += frac * (sample(i+1) - v)
		}
		out = binary.LittleEndian.AppendUint16(out, uint16(int16(math.Round(v))))
		r.pos += r.step
	}
	r.pos -= float64(n)
	r.last = sample(n - 1)
	return out
}
