// Package wavfile provides an [audio.Device] that replays WAV files, one file
// per capture. It backs the headless practice command and integration tests.
package wavfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/recita/pkg/audio"
)

const defaultFrameDuration = 20 * time.Millisecond

var _ audio.Device = (*Device)(nil)

// Option is a functional option for configuring a [Device].
type Option func(*Device)

// WithRealtime paces frames at playback speed instead of emitting them as
// fast as the reader consumes them.
func WithRealtime(on bool) Option {
	return func(d *Device) {
		d.realtime = on
	}
}

// WithFrameDuration sets the length of each emitted frame. Defaults to 20ms.
func WithFrameDuration(fd time.Duration) Option {
	return func(d *Device) {
		if fd > 0 {
			d.frameDuration = fd
		}
	}
}

// Device replays a fixed playlist of WAV files. Each Capture call consumes
// the next file; after the last file the playlist wraps around.
type Device struct {
	paths         []string
	realtime      bool
	frameDuration time.Duration

	mu   sync.Mutex
	next int
}

// New creates a [Device] for the given files. At least one path is required.
func New(paths []string, opts ...Option) (*Device, error) {
	if len(paths) == 0 {
		return nil, errors.New("wavfile: at least one file is required")
	}
	d := &Device{
		paths:         paths,
		frameDuration: defaultFrameDuration,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Capture implements [audio.Device]. The returned channel is closed once the
// file has been fully emitted or ctx is cancelled.
func (d *Device) Capture(ctx context.Context) (<-chan audio.AudioFrame, error) {
	d.mu.Lock()
	path := d.paths[d.next%len(d.paths)]
	d.next++
	d.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: read %q: %w", path, err)
	}
	pcm, f, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("wavfile: decode %q: %w", path, err)
	}

	chunk := f.BytesPerSecond() * int(d.frameDuration/time.Millisecond) / 1000
	align := f.Channels * 2
	chunk -= chunk % align
	if chunk <= 0 {
		chunk = align
	}

	ch := make(chan audio.AudioFrame, 16)
	go func() {
		defer close(ch)
		var ticker *time.Ticker
		if d.realtime {
			ticker = time.NewTicker(d.frameDuration)
			defer ticker.Stop()
		}
		var ts time.Duration
		for off := 0; off < len(pcm); off += chunk {
			end := min(off+chunk, len(pcm))
			frame := audio.AudioFrame{
				Data:       pcm[off:end],
				SampleRate: f.SampleRate,
				Channels:   f.Channels,
				Timestamp:  ts,
			}
			ts += f.Duration(end - off)

			select {
			case ch <- frame:
			case <-ctx.Done():
				return
			}
			if ticker != nil {
				select {
				case <-ticker.C:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// Remaining returns how many files are left before the playlist wraps.
func (d *Device) Remaining() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.paths) - d.next%len(d.paths)
}
