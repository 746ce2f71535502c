// Package mock provides an in-memory [audio.Device] for unit tests.
//
// The device records every Capture call and emits a configurable sequence of
// frames on each capture. After the frames are delivered the channel stays
// open until the capture context is cancelled, mimicking a live microphone.
//
// Typical usage:
//
//	dev := &mock.Device{Frames: []audio.AudioFrame{{Data: pcm, SampleRate: 16000, Channels: 1}}}
//	ch, err := dev.Capture(ctx)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/recita/pkg/audio"
)

// Device is a mock implementation of [audio.Device].
// Set the exported fields before use; inspect the call counters after.
type Device struct {
	mu sync.Mutex

	// Frames is emitted on every capture, in order.
	Frames []audio.AudioFrame

	// CaptureErr, if non-nil, is returned by Capture.
	CaptureErr error

	// CloseAfterFrames closes the channel right after Frames are delivered
	// instead of waiting for cancellation.
	CloseAfterFrames bool

	// CallCountCapture records how many times Capture was called.
	CallCountCapture int

	// Active is the number of captures whose channel is still open.
	Active int
}

// Capture implements [audio.Device].
func (d *Device) Capture(ctx context.Context) (<-chan audio.AudioFrame, error) {
	d.mu.Lock()
	d.CallCountCapture++
	if d.CaptureErr != nil {
		err := d.CaptureErr
		d.mu.Unlock()
		return nil, err
	}
	frames := make([]audio.AudioFrame, len(d.Frames))
	copy(frames, d.Frames)
	closeEarly := d.CloseAfterFrames
	d.Active++
	d.mu.Unlock()

	ch := make(chan audio.AudioFrame, len(frames))
	for _, f := range frames {
		ch <- f
	}
	go func() {
		if !closeEarly {
			<-ctx.Done()
		}
		d.mu.Lock()
		d.Active--
		d.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// Captures returns the number of Capture calls. Thread-safe.
func (d *Device) Captures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CallCountCapture
}

// ActiveCaptures returns the number of open capture channels. Thread-safe.
func (d *Device) ActiveCaptures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Active
}

// SetFrames replaces the frames emitted by future captures. Thread-safe.
func (d *Device) SetFrames(frames []audio.AudioFrame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Frames = frames
}

var _ audio.Device = (*Device)(nil)
