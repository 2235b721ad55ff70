//go:build linux

package beep

import (
	"encoding/binary"

	"github.com/jfreymuth/pulse"
)

// playPCM plays in the background on a dedicated pulse client.
func playPCM(data []byte) {
	if len(data) == 0 {
		return
	}
	go func() {
		c, err := pulse.NewClient()
		if err != nil {
			return
		}
		defer c.Close()

		pos := 0
		reader := pulse.Int16Reader(func(buf []int16) (int, error) {
			n := 0
			for n < len(buf) && pos+1 < len(data) {
				buf[n] = int16(binary.LittleEndian.Uint16(data[pos:]))
				pos += 2
				n++
			}
			if n == 0 {
				return 0, pulse.EndOfData
			}
			return n, nil
		})
		stream, err := c.NewPlayback(reader,
			pulse.PlaybackMono,
			pulse.PlaybackSampleRate(sampleRate),
			pulse.PlaybackLatency(0.1),
		)
		if err != nil {
			return
		}
		defer stream.Close()
		stream.Start()
		stream.Drain()
		stream.Stop()
	}()
}
