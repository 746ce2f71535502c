// Package audio defines the audio capture abstraction used by recording
// sessions together with PCM format helpers and a WAV codec.
//
// A [Device] produces a stream of [AudioFrame] values for as long as the
// capture context lives. Implementations are provided by sub-packages:
// audio/feed for frames pushed over the network, audio/wavfile for
// pre-recorded input and audio/mock for tests.
package audio

import (
	"context"
	"errors"
)

// ErrDeviceBusy is returned by [Device.Capture] when the device only supports
// one concurrent capture and another one is still running.
var ErrDeviceBusy = errors.New("audio: device busy")

// Device is a source of captured audio.
//
// Capture starts a new capture and returns a channel of frames. The channel
// is closed when ctx is cancelled or when the source is exhausted, whichever
// comes first. Callers must keep reading until the channel is closed.
type Device interface {
	Capture(ctx context.Context) (<-chan AudioFrame, error)
}

// DeviceFunc adapts an ordinary function to the [Device] interface.
type DeviceFunc func(ctx context.Context) (<-chan AudioFrame, error)

// Capture calls f(ctx).
func (f DeviceFunc) Capture(ctx context.Context) (<-chan AudioFrame, error) {
	return f(ctx)
}
