package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/recita/internal/app"
	"github.com/MrWong99/recita/internal/countdown"
	"github.com/MrWong99/recita/internal/practice"
	"github.com/MrWong99/recita/internal/recording"
	"github.com/MrWong99/recita/pkg/audio"
	audiomock "github.com/MrWong99/recita/pkg/audio/mock"
	"github.com/MrWong99/recita/pkg/script"
	scriptmock "github.com/MrWong99/recita/pkg/script/mock"
)

const waitTimeout = 3 * time.Second

// staticScorer always returns the same raw score.
type staticScorer float64

func (s staticScorer) Score(context.Context, recording.Payload, string) (float64, error) {
	return float64(s), nil
}

func testScripts(n int) []script.Script {
	out := make([]script.Script, n)
	for i := range out {
		out[i] = script.Script{Content: fmt.Sprintf("문장 %d", i), Level: "2"}
	}
	return out
}

func testDevice() *audiomock.Device {
	return &audiomock.Device{Frames: []audio.AudioFrame{{Data: make([]byte, 640), SampleRate: 16000, Channels: 1}}}
}

func fastSchedule() countdown.Schedule {
	return countdown.Schedule{Default: 10 * time.Millisecond}
}

func slowSchedule() countdown.Schedule {
	return countdown.Schedule{Default: time.Hour}
}

func newTestSessionManager(t *testing.T, maxActive int, schedule countdown.Schedule) *app.SessionManager {
	t.Helper()
	sm := app.NewSessionManager(app.SessionManagerConfig{
		Scripts:      &scriptmock.Repository{Scripts: testScripts(8)},
		Scorer:       staticScorer(2.4),
		Quality:      recording.DefaultQuality(),
		Schedule:     schedule,
		RecordingDir: t.TempDir(),
		MaxActive:    maxActive,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = sm.StopAll(ctx)
	})
	return sm
}

// collect returns a Notify func and the channel it feeds.
func collect() (func(practice.Event), chan practice.Event) {
	ch := make(chan practice.Event, 64)
	return func(e practice.Event) { ch <- e }, ch
}

func waitFor(t *testing.T, ch <-chan practice.Event, kind practice.EventKind) practice.Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case e := <-ch:
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
			return practice.Event{}
		}
	}
}

func waitActive(t *testing.T, sm *app.SessionManager, want int) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for sm.Active() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Active() = %d, want %d", sm.Active(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionManager_StartAndComplete(t *testing.T) {
	t.Parallel()

	sm := newTestSessionManager(t, 0, fastSchedule())
	notify, events := collect()

	sess, err := sm.Start(context.Background(), app.StartRequest{
		Name:          "  민수 ",
		MicPermission: true,
		Device:        testDevice(),
		Notify:        notify,
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if sess.Info.Name != "민수" {
		t.Errorf("Name = %q, want trimmed %q", sess.Info.Name, "민수")
	}
	if got, ok := sm.Get(sess.Info.SessionID); !ok || got != sess {
		t.Errorf("Get(%q) = %v, %v", sess.Info.SessionID, got, ok)
	}

	e := waitFor(t, events, practice.EventSessionComplete)
	if e.Result == nil || len(e.Result.PerRound) != 6 {
		t.Fatalf("complete event result = %+v, want 6 rounds", e.Result)
	}
	waitActive(t, sm, 0)
	if _, ok := sm.Get(sess.Info.SessionID); ok {
		t.Error("finished session should be removed")
	}
	if _, ok := sess.Controller.Result(); !ok {
		t.Error("controller result should stay available after removal")
	}
}

// lockedBuffer is a bytes.Buffer safe for concurrent log writes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSpace(b.buf.String()), "\n")
}

// Not parallel: swaps the default logger.
func TestSessionManager_LogsStartOnce(t *testing.T) {
	var logs lockedBuffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	sm := newTestSessionManager(t, 0, fastSchedule())
	notify, events := collect()
	sess, err := sm.Start(context.Background(), app.StartRequest{
		Name:          "민수",
		MicPermission: true,
		Device:        testDevice(),
		Notify:        notify,
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	waitFor(t, events, practice.EventSessionComplete)
	waitActive(t, sm, 0)

	started := 0
	for _, line := range logs.Lines() {
		var rec struct {
			Level     string `json:"level"`
			Msg       string `json:"msg"`
			SessionID string `json:"session_id"`
		}
		if json.Unmarshal([]byte(line), &rec) != nil || rec.SessionID != sess.Info.SessionID {
			continue
		}
		if rec.Level == "INFO" && strings.Contains(rec.Msg, "session started") {
			started++
		}
	}
	if started != 1 {
		t.Errorf("session start logged %d times at INFO, want 1", started)
	}
}

func TestSessionManager_SessionIDFormat(t *testing.T) {
	t.Parallel()

	sm := newTestSessionManager(t, 0, slowSchedule())
	sess, err := sm.Start(context.Background(), app.StartRequest{MicPermission: true, Device: testDevice()})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	id, ok := strings.CutPrefix(sess.Info.SessionID, "session-")
	if !ok {
		t.Fatalf("SessionID = %q, want prefix %q", sess.Info.SessionID, "session-")
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("SessionID suffix %q is not a uuid: %v", id, err)
	}
	if sess.Controller.Snapshot().SessionID != sess.Info.SessionID {
		t.Error("controller snapshot should carry the manager's session ID")
	}
}

func TestSessionManager_MaxActive(t *testing.T) {
	t.Parallel()

	sm := newTestSessionManager(t, 1, slowSchedule())
	first, err := sm.Start(context.Background(), app.StartRequest{MicPermission: true, Device: testDevice()})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	_, err = sm.Start(context.Background(), app.StartRequest{MicPermission: true, Device: testDevice()})
	if !errors.Is(err, app.ErrTooManySessions) {
		t.Fatalf("second Start() err = %v, want ErrTooManySessions", err)
	}

	if err := sm.Stop(first.Info.SessionID); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	waitActive(t, sm, 0)

	if _, err := sm.Start(context.Background(), app.StartRequest{MicPermission: true, Device: testDevice()}); err != nil {
		t.Fatalf("Start() after Stop error: %v", err)
	}

	sm.SetMaxActive(0)
	if _, err := sm.Start(context.Background(), app.StartRequest{MicPermission: true, Device: testDevice()}); err != nil {
		t.Fatalf("Start() with unlimited cap error: %v", err)
	}
	if sm.MaxActive() != 0 {
		t.Errorf("MaxActive() = %d, want 0", sm.MaxActive())
	}
}

func TestSessionManager_FailedStartReleasesCapacity(t *testing.T) {
	t.Parallel()

	sm := newTestSessionManager(t, 1, slowSchedule())
	_, err := sm.Start(context.Background(), app.StartRequest{MicPermission: false, Device: testDevice()})
	if !errors.Is(err, recording.ErrPermissionDenied) {
		t.Fatalf("Start() err = %v, want ErrPermissionDenied", err)
	}
	if sm.Active() != 0 {
		t.Errorf("Active() = %d after failed start, want 0", sm.Active())
	}
	if _, err := sm.Start(context.Background(), app.StartRequest{MicPermission: true, Device: testDevice()}); err != nil {
		t.Fatalf("Start() after failure error: %v", err)
	}
}

func TestSessionManager_StartWithoutDevice(t *testing.T) {
	t.Parallel()

	sm := newTestSessionManager(t, 0, slowSchedule())
	if _, err := sm.Start(context.Background(), app.StartRequest{MicPermission: true}); err == nil {
		t.Fatal("Start() without device should fail")
	}
}

func TestSessionManager_StopUnknown(t *testing.T) {
	t.Parallel()

	sm := newTestSessionManager(t, 0, slowSchedule())
	if err := sm.Stop("session-missing"); !errors.Is(err, app.ErrSessionNotFound) {
		t.Errorf("Stop() err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionManager_CallerContextEndsSession(t *testing.T) {
	t.Parallel()

	sm := newTestSessionManager(t, 0, slowSchedule())
	notify, events := collect()
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := sm.Start(ctx, app.StartRequest{MicPermission: true, Device: testDevice(), Notify: notify}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	waitFor(t, events, practice.EventRoundStarted)

	cancel()
	waitFor(t, events, practice.EventExited)
	waitActive(t, sm, 0)
}

func TestSessionManager_StopAll(t *testing.T) {
	t.Parallel()

	sm := newTestSessionManager(t, 0, slowSchedule())
	var sessions []*app.Session
	for range 3 {
		s, err := sm.Start(context.Background(), app.StartRequest{MicPermission: true, Device: testDevice()})
		if err != nil {
			t.Fatalf("Start() error: %v", err)
		}
		sessions = append(sessions, s)
	}
	if got := len(sm.List()); got != 3 {
		t.Fatalf("List() len = %d, want 3", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := sm.StopAll(ctx); err != nil {
		t.Fatalf("StopAll() error: %v", err)
	}
	for _, s := range sessions {
		if p := s.Controller.Phase(); p != practice.PhaseExited {
			t.Errorf("session %s phase = %s, want exited", s.Info.SessionID, p)
		}
	}
	waitActive(t, sm, 0)
}

func TestSessionManager_SetScheduleAppliesToNewSessions(t *testing.T) {
	t.Parallel()

	sm := newTestSessionManager(t, 0, slowSchedule())
	sm.SetSchedule(countdown.Schedule{Default: 20 * time.Millisecond})

	notify, events := collect()
	if _, err := sm.Start(context.Background(), app.StartRequest{MicPermission: true, Device: testDevice(), Notify: notify}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	e := waitFor(t, events, practice.EventRoundStarted)
	if e.Duration != 20*time.Millisecond {
		t.Errorf("round duration = %s, want 20ms", e.Duration)
	}
}

func TestSessionManager_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	sm := newTestSessionManager(t, 0, slowSchedule())
	if _, err := sm.Start(context.Background(), app.StartRequest{MicPermission: true, Device: testDevice()}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// Concurrent reads and writes should not race.
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_ = sm.Active()
		}()
		go func() {
			defer wg.Done()
			_ = sm.List()
		}()
		go func() {
			defer wg.Done()
			sm.SetMaxActive(5)
		}()
	}
	wg.Wait()
}
