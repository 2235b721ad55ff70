package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

const (
	wavChunkMs   = 20
	wavFormatPCM = 1
)

// WAV is a decoded 16-bit PCM WAV file, downmixed to mono.
type WAV struct {
	SampleRate int
	PCM        []byte
}

// ReadWAV decodes a WAV file. Only integer 16-bit PCM is supported.
func ReadWAV(r io.ReadSeeker) (*WAV, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("invalid WAV file: %w", err)
		}
		return nil, errors.New("invalid WAV file")
	}
	if d.WavAudioFormat != wavFormatPCM || d.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported WAV layout: format %d, %d bits", d.WavAudioFormat, d.BitDepth)
	}
	rate := int(d.SampleRate)
	if rate*wavChunkMs/1000 == 0 {
		return nil, fmt.Errorf("unsupported WAV sample rate %d", rate)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read PCM: %w", err)
	}
	// the decoder keeps reading past the data chunk
	if n := d.PCMSize / BytesPerSample; len(buf.Data) > n {
		buf.Data = buf.Data[:n]
	}
	return &WAV{SampleRate: rate, PCM: downmix(buf.Data, int(d.NumChans))}, nil
}

// downmix averages interleaved samples into mono PCM16.
func downmix(samples []int, channels int) []byte {
	out := make([]byte, 0, len(samples)/channels*BytesPerSample)
	for i := 0; i+channels <= len(samples); i += channels {
		sum := 0
		for _, v := range samples[i : i+channels] {
			sum += v
		}
		out = binary.LittleEndian.AppendUint16(out, uint16(int16(sum/channels)))
	}
	return out
}

// FileContext plays a WAV file as if it were a microphone. The capture rate
// is the file's rate regardless of the requested config.
type FileContext struct {
	wav      *WAV
	realtime bool
}

func NewFileContext(path string, realtime bool) (*FileContext, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	w, err := ReadWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &FileContext{wav: w, realtime: realtime}, nil
}

func (f *FileContext) SampleRate() int               { return f.wav.SampleRate }
func (f *FileContext) Devices() ([]DeviceInfo, error) { return nil, nil }
func (f *FileContext) Close()                         {}

func (f *FileContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FileCapture{wav: f.wav, realtime: f.realtime, audioDone: make(chan struct{})}, nil
}

// FileCapture feeds the file in 20ms chunks, then silence until stopped, so
// end-of-speech detection still sees the trailing pause.
type FileCapture struct {
	wav       *WAV
	realtime  bool
	audioDone chan struct{}

	mu      sync.Mutex
	cb      DataCallback
	stopCh  chan struct{}
	stopped chan struct{}
}

// AudioDone is closed once the whole file has been delivered.
func (c *FileCapture) AudioDone() <-chan struct{} { return c.audioDone }
func (c *FileCapture) DeviceName() string         { return "file" }

func (c *FileCapture) SetCallback(cb DataCallback) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

func (c *FileCapture) ClearCallback() { c.SetCallback(nil) }

func (c *FileCapture) callback() DataCallback {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cb
}

func (c *FileCapture) Start() error {
	if c.stopCh != nil {
		return errors.New("capture already started")
	}
	c.stopCh = make(chan struct{})
	c.stopped = make(chan struct{})
	if len(c.wav.PCM) == 0 {
		close(c.audioDone)
	}

	chunk := c.wav.SampleRate * wavChunkMs / 1000 * BytesPerSample
	interval := time.Duration(wavChunkMs) * time.Millisecond
	if !c.realtime {
		interval = time.Millisecond
	}

	go func() {
		defer close(c.stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		silence := make([]byte, chunk)
		pos := 0
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
			}
			cb := c.callback()
			if cb == nil {
				continue
			}
			if pos < len(c.wav.PCM) {
				end := min(pos+chunk, len(c.wav.PCM))
				buf := append([]byte(nil), c.wav.PCM[pos:end]...)
				cb(buf, uint32(len(buf)/BytesPerSample))
				pos = end
				if pos >= len(c.wav.PCM) {
					close(c.audioDone)
				}
				continue
			}
			cb(silence, uint32(len(silence)/BytesPerSample))
		}
	}()
	return nil
}

func (c *FileCapture) Stop() {
	if c.stopCh == nil {
		return
	}
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	<-c.stopped
}

func (c *FileCapture) Close() { c.Stop() }
