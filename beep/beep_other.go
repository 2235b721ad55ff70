//go:build !linux

package beep

import (
	"sync"

	"github.com/gen2brain/malgo"
)

var (
	ctxOnce sync.Once
	ctx     *malgo.AllocatedContext

	playMu sync.Mutex
)

func playPCM(data []byte) {
	if len(data) == 0 {
		return
	}
	ctxOnce.Do(func() {
		c, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err == nil {
			ctx = c
		}
	})
	if ctx == nil {
		return
	}
	go func() {
		playMu.Lock()
		defer playMu.Unlock()

		cfg := malgo.DefaultDeviceConfig(malgo.Playback)
		cfg.Playback.Format = malgo.FormatS16
		cfg.Playback.Channels = 1
		cfg.SampleRate = sampleRate

		var (
			mu   sync.Mutex
			pos  int
			done = make(chan struct{})
			once sync.Once
		)
		dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
			Data: func(out, _ []byte, _ uint32) {
				mu.Lock()
				n := copy(out, data[pos:])
				pos += n
				finished := pos >= len(data)
				mu.Unlock()
				clear(out[n:])
				if finished {
					once.Do(func() { close(done) })
				}
			},
		})
		if err != nil {
			return
		}
		defer dev.Uninit()
		if err := dev.Start(); err != nil {
			return
		}
		<-done
		dev.Stop()
	}()
}
