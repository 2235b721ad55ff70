// Package encoder writes captured utterances as FLAC.
package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

const (
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// Flac encodes little-endian 16-bit mono PCM. It implements io.WriteCloser;
// samples are buffered into fixed-size blocks and the last partial block is
// flushed on Close.
type Flac struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	enc     *flac.Encoder
	rate    int
	pending []int16
	odd     []byte // half a sample carried between writes
	total   uint64
	closed  bool
}

func NewFlac(sampleRate int) (*Flac, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	e := &Flac{rate: sampleRate, pending: make([]int16, 0, BlockSize)}
	info := &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     Channels,
		BitsPerSample: BitsPerSample,
	}
	enc, err := flac.NewEncoder(&e.buf, info)
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	e.enc = enc
	return e, nil
}

func (e *Flac) Write(pcm []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, os.ErrClosed
	}

	n := len(pcm)
	if len(e.odd) > 0 {
		pcm = append(e.odd, pcm...)
		e.odd = nil
	}
	for len(pcm) >= 2 {
		e.pending = append(e.pending, int16(binary.LittleEndian.Uint16(pcm)))
		pcm = pcm[2:]
		if len(e.pending) == BlockSize {
			if err := e.writeBlock(); err != nil {
				return 0, err
			}
		}
	}
	if len(pcm) == 1 {
		e.odd = []byte{pcm[0]}
	}
	return n, nil
}

func (e *Flac) writeBlock() error {
	samples := make([]int32, len(e.pending))
	for i, s := range e.pending {
		samples[i] = int32(s)
	}
	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(samples)),
			SampleRate:    uint32(e.rate),
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   samples,
			NSamples:  len(samples),
		}},
	}
	if err := e.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	e.total += uint64(len(samples))
	e.pending = e.pending[:0]
	return nil
}

// Close flushes the pending block and finalizes the stream.
func (e *Flac) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if len(e.pending) > 0 {
		if err := e.writeBlock(); err != nil {
			return err
		}
	}
	return e.enc.Close()
}

// Bytes is the encoded stream, complete after Close.
func (e *Flac) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.Bytes()
}

// Samples is the number of samples written to frames so far.
func (e *Flac) Samples() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total
}

func (e *Flac) Duration() time.Duration {
	return time.Duration(e.Samples()) * time.Second / time.Duration(e.rate)
}

// WriteFile encodes pcm and writes it to path.
func WriteFile(path string, pcm []byte, sampleRate int) error {
	e, err := NewFlac(sampleRate)
	if err != nil {
		return err
	}
	if _, err := e.Write(pcm); err != nil {
		return err
	}
	if err := e.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, e.Bytes(), 0644)
}
