package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/recita/internal/countdown"
	"github.com/MrWong99/recita/internal/observe"
	"github.com/MrWong99/recita/internal/practice"
	"github.com/MrWong99/recita/internal/recording"
	"github.com/MrWong99/recita/pkg/audio"
	"github.com/MrWong99/recita/pkg/script"
)

var (
	// ErrTooManySessions is returned by Start when max_active sessions are
	// already running.
	ErrTooManySessions = errors.New("app: too many active sessions")

	// ErrSessionNotFound is returned for unknown or finished session IDs.
	ErrSessionNotFound = errors.New("app: session not found")
)

// SessionInfo holds metadata about an active session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// Name is the learner's display name, if they gave one.
	Name string

	// StartedAt is when the session was started.
	StartedAt time.Time
}

// Session is a running practice session.
type Session struct {
	Info       SessionInfo
	Controller *practice.Controller

	cancel context.CancelFunc
}

// StartRequest describes a session to start.
type StartRequest struct {
	Name          string
	MicPermission bool

	// Device supplies the learner's microphone audio.
	Device audio.Device

	// Notify receives the session's events. See [practice.Config.Notify].
	Notify func(practice.Event)
}

// SessionManager runs concurrent practice sessions, each with its own
// controller and recording slot. All exported methods are safe for
// concurrent use.
type SessionManager struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	pending   int
	maxActive int
	schedule  countdown.Schedule

	scripts      script.Repository
	scorer       practice.Scorer
	quality      recording.Quality
	recordingDir string
	metrics      *observe.Metrics
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Scripts  script.Repository
	Scorer   practice.Scorer
	Quality  recording.Quality
	Schedule countdown.Schedule

	// RecordingDir is the parent of the per-session slots. Empty uses the
	// OS temp directory.
	RecordingDir string

	// MaxActive caps concurrent sessions. Zero means unlimited.
	MaxActive int

	Metrics *observe.Metrics
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &SessionManager{
		sessions:     make(map[string]*Session),
		maxActive:    cfg.MaxActive,
		schedule:     cfg.Schedule,
		scripts:      cfg.Scripts,
		scorer:       cfg.Scorer,
		quality:      cfg.Quality,
		recordingDir: cfg.RecordingDir,
		metrics:      m,
	}
}

// Start creates a session, fetches its scripts and starts the first round.
// The session ends when ctx is cancelled, when it completes or when the
// learner exits; it is then removed from the manager.
func (sm *SessionManager) Start(ctx context.Context, req StartRequest) (*Session, error) {
	if req.Device == nil {
		return nil, errors.New("app: session requires an audio device")
	}

	sm.mu.Lock()
	if sm.maxActive > 0 && len(sm.sessions)+sm.pending >= sm.maxActive {
		sm.mu.Unlock()
		return nil, fmt.Errorf("%w (max %d)", ErrTooManySessions, sm.maxActive)
	}
	sm.pending++
	schedule := sm.schedule
	sm.mu.Unlock()

	sess, err := sm.start(ctx, req, schedule)

	sm.mu.Lock()
	sm.pending--
	if err == nil {
		sm.sessions[sess.Info.SessionID] = sess
	}
	sm.mu.Unlock()
	if err != nil {
		return nil, err
	}

	go sm.reap(sess)

	slog.Info("practice session started",
		"session_id", sess.Info.SessionID,
		"name", sess.Info.Name,
	)
	return sess, nil
}

func (sm *SessionManager) start(ctx context.Context, req StartRequest, schedule countdown.Schedule) (*Session, error) {
	info := SessionInfo{
		SessionID: "session-" + uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		StartedAt: time.Now().UTC(),
	}

	slot, err := recording.NewSlot(sm.recordingDir)
	if err != nil {
		return nil, fmt.Errorf("app: create recording slot: %w", err)
	}

	ctrl, err := practice.New(practice.Config{
		SessionID: info.SessionID,
		Scripts:   sm.scripts,
		Scorer:    sm.scorer,
		Recorder:  recording.NewSession(req.Device),
		Slot:      slot,
		Quality:   sm.quality,
		Schedule:  schedule,
		Metrics:   sm.metrics,
		Notify:    req.Notify,
	})
	if err != nil {
		_ = slot.Release()
		return nil, fmt.Errorf("app: create controller: %w", err)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	if err := ctrl.Start(sessCtx, req.MicPermission); err != nil {
		cancel()
		_ = slot.Release()
		return nil, err
	}
	return &Session{Info: info, Controller: ctrl, cancel: cancel}, nil
}

// reap removes sess once its controller has finished.
func (sm *SessionManager) reap(sess *Session) {
	<-sess.Controller.Done()
	sess.cancel()

	sm.mu.Lock()
	delete(sm.sessions, sess.Info.SessionID)
	sm.mu.Unlock()

	slog.Info("practice session ended",
		"session_id", sess.Info.SessionID,
		"phase", sess.Controller.Phase(),
	)
}

// Get returns the running session with the given ID.
func (sm *SessionManager) Get(id string) (*Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[id]
	return s, ok
}

// Stop exits the session with the given ID. The learner's scores are
// discarded.
func (sm *SessionManager) Stop(id string) error {
	s, ok := sm.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err := s.Controller.Exit(); err != nil && !errors.Is(err, practice.ErrSessionOver) {
		return fmt.Errorf("app: stop session %s: %w", id, err)
	}
	return nil
}

// StopAll exits every running session and waits for their controllers to
// finish or for ctx to expire.
func (sm *SessionManager) StopAll(ctx context.Context) error {
	sm.mu.Lock()
	all := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		all = append(all, s)
	}
	sm.mu.Unlock()

	for _, s := range all {
		// Cancelling the session context exits the controller without
		// waiting on its inbox.
		s.cancel()
	}
	for _, s := range all {
		select {
		case <-s.Controller.Done():
		case <-ctx.Done():
			return fmt.Errorf("app: stop sessions: %w", ctx.Err())
		}
	}
	return nil
}

// Active returns the number of running sessions.
func (sm *SessionManager) Active() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// List returns info for all running sessions, oldest first.
func (sm *SessionManager) List() []SessionInfo {
	sm.mu.Lock()
	out := make([]SessionInfo, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s.Info)
	}
	sm.mu.Unlock()
	slices.SortFunc(out, func(a, b SessionInfo) int { return a.StartedAt.Compare(b.StartedAt) })
	return out
}

// MaxActive returns the current session cap. Zero means unlimited.
func (sm *SessionManager) MaxActive() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.maxActive
}

// SetMaxActive changes the session cap. Running sessions are not affected.
func (sm *SessionManager) SetMaxActive(n int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.maxActive = n
}

// SetSchedule changes the recording schedule for sessions started later.
func (sm *SessionManager) SetSchedule(s countdown.Schedule) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.schedule = s
}
