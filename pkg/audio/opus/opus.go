// Package opus decodes Opus packets sent by browser clients into PCM frames.
package opus

import (
	"fmt"
	"time"

	"layeh.com/gopus"

	"github.com/MrWong99/recita/pkg/audio"
)

const (
	// DefaultSampleRate is the rate browsers encode Opus at.
	DefaultSampleRate = 48000

	// maxFrameMs is the longest Opus frame duration the decoder accepts.
	maxFrameMs = 120
)

// Decoder wraps a gopus decoder for a single client stream. Decoder state
// carries across packets, so each stream needs its own Decoder. It is not
// safe for concurrent use.
type Decoder struct {
	dec      *gopus.Decoder
	format   audio.Format
	maxFrame int
	elapsed  time.Duration
}

// NewDecoder creates a decoder producing PCM at sampleRate with the given
// channel count. sampleRate must be one of 8000, 12000, 16000, 24000, 48000.
func NewDecoder(sampleRate, channels int) (*Decoder, error) {
	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}
	return &Decoder{
		dec:      dec,
		format:   audio.Format{SampleRate: sampleRate, Channels: channels},
		maxFrame: sampleRate * maxFrameMs / 1000,
	}, nil
}

// Format returns the PCM format produced by Decode.
func (d *Decoder) Format() audio.Format { return d.format }

// Decode decodes one Opus packet into a PCM frame.
func (d *Decoder) Decode(packet []byte) (audio.AudioFrame, error) {
	pcm, err := d.dec.Decode(packet, d.maxFrame, false)
	if err != nil {
		return audio.AudioFrame{}, fmt.Errorf("opus: decode: %w", err)
	}
	data := int16sToBytes(pcm)
	f := audio.AudioFrame{
		Data:       data,
		SampleRate: d.format.SampleRate,
		Channels:   d.format.Channels,
		Timestamp:  d.elapsed,
	}
	d.elapsed += d.format.Duration(len(data))
	return f, nil
}

// Reset clears decoder state between unrelated streams.
func (d *Decoder) Reset() {
	d.dec.ResetState()
	d.elapsed = 0
}

// int16sToBytes converts int16 PCM samples to little-endian bytes.
func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}
