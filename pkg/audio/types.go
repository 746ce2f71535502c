package audio

import "time"

// AudioFrame is a chunk of interleaved 16-bit little-endian PCM as delivered
// by a capture [Device].
type AudioFrame struct {
	// PCM audio data.
	Data []byte

	// SampleRate in Hz (e.g. 48000 for browser Opus, 16000 for scoring).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to capture start.
	Timestamp time.Duration
}

// Format returns the frame's sample format.
func (f AudioFrame) Format() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels}
}

// Duration returns the playback length of the frame's PCM.
func (f AudioFrame) Duration() time.Duration {
	return f.Format().Duration(len(f.Data))
}
