// Package feed provides an [audio.Device] whose frames are pushed in by the
// caller, typically a network handler relaying microphone audio from a
// client.
//
// Frames pushed while no capture is running are dropped; a recorder only
// ever sees audio that arrived during its own capture window.
package feed

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/recita/pkg/audio"
)

const defaultBuffer = 256

var _ audio.Device = (*Device)(nil)

// Option is a functional option for configuring a [Device].
type Option func(*Device)

// WithBuffer sets the capture channel capacity. Pushes beyond it are
// dropped rather than blocking the producer. Defaults to 256 frames.
func WithBuffer(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.buffer = n
		}
	}
}

// Device is a push-fed capture device. It supports one capture at a time and
// is safe for concurrent use.
type Device struct {
	buffer int

	mu     sync.Mutex
	active chan audio.AudioFrame

	dropped atomic.Int64
}

// New creates an idle [Device].
func New(opts ...Option) *Device {
	d := &Device{buffer: defaultBuffer}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Capture implements [audio.Device]. It returns [audio.ErrDeviceBusy] if a
// previous capture has not yet ended.
func (d *Device) Capture(ctx context.Context) (<-chan audio.AudioFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		return nil, audio.ErrDeviceBusy
	}
	ch := make(chan audio.AudioFrame, d.buffer)
	d.active = ch

	go func() {
		<-ctx.Done()
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.active == ch {
			d.active = nil
		}
		close(ch)
	}()
	return ch, nil
}

// Push delivers a frame to the running capture. It never blocks and reports
// whether the frame was accepted.
func (d *Device) Push(f audio.AudioFrame) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return false
	}
	select {
	case d.active <- f:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

// Capturing reports whether a capture is currently running.
func (d *Device) Capturing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active != nil
}

// Dropped returns how many frames were discarded because the capture buffer
// was full.
func (d *Device) Dropped() int64 {
	return d.dropped.Load()
}
