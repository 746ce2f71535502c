// Package recording manages the capture of one round's audio.
//
// A [Session] wraps an [audio.Device] and moves through
//
//	Idle → Preparing → Prepared → Recording → Stopped | Cancelled
//
// Stop hands back a channel that yields the finished [Payload] once the
// capture has drained and the WAV file has been written to the session's
// [Slot]. Cancel may be called in any state and guarantees that a payload
// from the cancelled capture is never delivered.
package recording

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/recita/pkg/audio"
)

var (
	// ErrPermissionDenied is returned when recording is attempted without the
	// user's microphone permission. The session itself never checks
	// permission; callers return this error before preparing.
	ErrPermissionDenied = errors.New("recording: microphone permission denied")

	// ErrNotPrepared is returned by Start unless the session is in the
	// Prepared state. Every capture needs its own Prepare.
	ErrNotPrepared = errors.New("recording: not prepared")

	// ErrAlreadyRecording is returned by Start and Prepare while recording.
	ErrAlreadyRecording = errors.New("recording: already recording")

	// ErrNotRecording is returned by Stop outside the Recording state.
	ErrNotRecording = errors.New("recording: not recording")

	// ErrNoAudio is set on a failed payload when the capture produced no PCM.
	ErrNoAudio = errors.New("recording: no audio captured")
)

// State is the lifecycle state of a [Session].
type State int

const (
	StateIdle State = iota
	StatePreparing
	StatePrepared
	StateRecording
	StateStopped
	StateCancelled
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StatePrepared:
		return "prepared"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Status tells whether a payload carries usable audio.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Quality configures what a session records.
type Quality struct {
	// Format is the PCM format audio is converted to before encoding.
	Format audio.Format

	// MaxDuration caps the buffered audio. Frames beyond it are dropped.
	MaxDuration time.Duration
}

// DefaultQuality is 16 kHz mono, capped at one minute.
func DefaultQuality() Quality {
	return Quality{
		Format:      audio.Format{SampleRate: 16000, Channels: 1},
		MaxDuration: time.Minute,
	}
}

// Payload is the finished recording of one round.
type Payload struct {
	// Audio is the recording as a base64-encoded WAV file. Empty when Status
	// is StatusFailed.
	Audio string

	Status Status

	// Path is where the WAV file was written.
	Path string

	// Duration is the length of the captured audio.
	Duration time.Duration

	Format audio.Format

	// Err describes why Status is StatusFailed.
	Err error
}

// OK reports whether the payload can be sent for scoring.
func (p Payload) OK() bool {
	return p.Status == StatusOK && p.Audio != ""
}

// Session records one round at a time from a capture device. It is safe for
// concurrent use.
type Session struct {
	device audio.Device

	mu      sync.Mutex
	state   State
	slot    *Slot
	quality Quality

	// gen is bumped by every Start and Cancel; a stop pipeline only delivers
	// if the generation it was started under is still current.
	gen     uint64
	active  *capture
	pending chan Payload
}

// capture is one running device capture. pcm is written by the collecting
// goroutine and may only be read after done is closed.
type capture struct {
	slot    *Slot
	quality Quality
	cancel  context.CancelFunc
	done    chan struct{}
	pcm     []byte
}

// NewSession creates an idle session capturing from device.
func NewSession(device audio.Device) *Session {
	return &Session{device: device}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Prepare binds the session to slot and q for the next recording.
func (s *Session) Prepare(slot *Slot, q Quality) error {
	if slot == nil {
		return errors.New("recording: prepare: slot must not be nil")
	}
	if err := q.Format.Validate(); err != nil {
		return fmt.Errorf("recording: prepare: %w", err)
	}
	if q.MaxDuration <= 0 {
		q.MaxDuration = DefaultQuality().MaxDuration
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRecording {
		return ErrAlreadyRecording
	}
	s.state = StatePreparing
	if slot.Released() {
		s.state = StateIdle
		return fmt.Errorf("recording: prepare: %w", ErrSlotReleased)
	}
	s.slot = slot
	s.quality = q
	s.state = StatePrepared
	return nil
}

// Start begins capturing. It returns once the device has accepted the
// capture; frames are collected in the background until Stop or Cancel.
// ctx bounds the capture as a whole.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRecording {
		return ErrAlreadyRecording
	}
	if s.state != StatePrepared || s.slot == nil {
		return ErrNotPrepared
	}

	captureCtx, cancel := context.WithCancel(ctx)
	frames, err := s.device.Capture(captureCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("recording: start capture: %w", err)
	}

	c := &capture{slot: s.slot, quality: s.quality, cancel: cancel, done: make(chan struct{})}
	s.gen++
	s.active = c
	s.pending = nil
	s.state = StateRecording

	go c.collect(frames)
	return nil
}

// collect drains frames into c.pcm until the channel closes.
func (c *capture) collect(frames <-chan audio.AudioFrame) {
	defer close(c.done)

	q := c.quality
	converted := audio.ConvertStream(frames, q.Format)
	limit := q.Format.BytesPerSecond() * int(q.MaxDuration/time.Millisecond) / 1000
	var buf []byte
	for f := range converted {
		n := min(len(f.Data), limit-len(buf))
		buf = append(buf, f.Data[:n]...)
		if len(buf) >= limit {
			// Past the cap; let the device finish without buffering more.
			audio.Drain(converted)
			break
		}
	}
	c.pcm = buf
}

// Stop ends the capture. The returned channel yields exactly one Payload
// and is then closed, unless the session is cancelled first, in which case
// it is closed without a value.
func (s *Session) Stop() (<-chan Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording {
		return nil, ErrNotRecording
	}
	s.state = StateStopped
	c := s.active
	s.active = nil
	c.cancel()

	out := make(chan Payload, 1)
	s.pending = out
	go s.finish(s.gen, c, out)
	return out, nil
}

// finish waits for the capture to drain and delivers the payload.
func (s *Session) finish(gen uint64, c *capture, out chan Payload) {
	defer close(out)
	<-c.done

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}

	pcm, q, slot := c.pcm, c.quality, c.slot
	p := Payload{
		Status:   StatusFailed,
		Path:     slot.Path(),
		Format:   q.Format,
		Duration: q.Format.Duration(len(pcm)),
	}
	if len(pcm) == 0 {
		p.Err = ErrNoAudio
		out <- p
		return
	}

	wav := audio.EncodeWAV(pcm, q.Format)
	if err := slot.Write(wav); err != nil {
		slog.Warn("recording: failed to store recording", "path", slot.Path(), "err", err)
		p.Err = err
		out <- p
		return
	}
	p.Status = StatusOK
	p.Audio = base64.StdEncoding.EncodeToString(wav)
	out <- p
}

// Cancel aborts the current capture, if any, and discards any payload not
// yet received from Stop. It blocks until the capture goroutine has exited.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.gen++
	s.state = StateCancelled
	c := s.active
	s.active = nil
	if s.pending != nil {
		select {
		case <-s.pending:
		default:
		}
		s.pending = nil
	}
	s.mu.Unlock()

	if c != nil {
		c.cancel()
		<-c.done
	}
}
