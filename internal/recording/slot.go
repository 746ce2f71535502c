package recording

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrSlotReleased is returned when writing to a slot after [Slot.Release].
var ErrSlotReleased = errors.New("recording: slot released")

const slotFile = "recording.wav"

// Slot is the single on-disk location a practice session stores its current
// recording in. Each round overwrites the previous file, so at most one
// recording artifact exists per session. A Slot is owned by exactly one
// session and must be released when that session ends.
type Slot struct {
	dir  string
	path string

	mu       sync.Mutex
	released bool
}

// NewSlot creates a fresh slot directory below root. An empty root uses the
// system temp directory.
func NewSlot(root string) (*Slot, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("recording: create slot root: %w", err)
	}
	dir, err := os.MkdirTemp(root, "session-*")
	if err != nil {
		return nil, fmt.Errorf("recording: create slot: %w", err)
	}
	return &Slot{dir: dir, path: filepath.Join(dir, slotFile)}, nil
}

// Path returns the file the current recording is stored at.
func (s *Slot) Path() string { return s.path }

// Write replaces the slot's content with data. The replacement is atomic:
// readers see either the previous or the new recording, never a mix.
func (s *Slot) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrSlotReleased
	}

	tmp, err := os.CreateTemp(s.dir, slotFile+".*")
	if err != nil {
		return fmt.Errorf("recording: write slot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("recording: write slot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("recording: write slot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("recording: write slot: %w", err)
	}
	return nil
}

// Release deletes the slot and everything in it. It is safe to call more
// than once.
func (s *Slot) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("recording: release slot: %w", err)
	}
	return nil
}

// Released reports whether [Slot.Release] has been called.
func (s *Slot) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
