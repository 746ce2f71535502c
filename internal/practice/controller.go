// Package practice runs a pronunciation practice session: six rounds, each
// pairing a countdown with a recording, followed by asynchronous scoring and
// a final aggregate.
//
// A [Controller] owns one session. All state changes happen on a single
// event-loop goroutine; timer expiries, finished recordings, scoring results
// and user commands are all messages on the same queue. Every round attempt
// carries a monotonically increasing epoch, and a message whose epoch is no
// longer current is dropped. This is what keeps a cancelled round's score
// from ever being recorded.
package practice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/MrWong99/recita/internal/countdown"
	"github.com/MrWong99/recita/internal/observe"
	"github.com/MrWong99/recita/internal/recording"
	"github.com/MrWong99/recita/internal/score"
	"github.com/MrWong99/recita/pkg/script"
)

var (
	// ErrNotAllowed is returned by a command that does not apply in the
	// controller's current phase.
	ErrNotAllowed = errors.New("practice: command not allowed in current phase")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("practice: session already started")

	// ErrSessionOver is returned by commands sent after the session ended.
	ErrSessionOver = errors.New("practice: session is over")
)

// Recorder captures one round's audio. *recording.Session implements it.
type Recorder interface {
	Prepare(slot *recording.Slot, q recording.Quality) error
	Start(ctx context.Context) error
	Stop() (<-chan recording.Payload, error)
	Cancel()
}

// Scorer turns a finished recording into a raw score. *scoring.Client
// implements it.
type Scorer interface {
	Score(ctx context.Context, payload recording.Payload, script string) (float64, error)
}

// Config wires a Controller to its collaborators. Scripts, Scorer, Recorder
// and Slot are required.
type Config struct {
	// SessionID labels logs and snapshots.
	SessionID string

	Scripts  script.Repository
	Scorer   Scorer
	Recorder Recorder

	// Slot is where recordings are written. The controller releases it when
	// the session ends.
	Slot    *recording.Slot
	Quality recording.Quality

	// Schedule maps script levels to recording windows.
	Schedule countdown.Schedule

	// Rand drives script sampling. Nil uses the global source.
	Rand *rand.Rand

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Notify receives every event in order, on the controller's goroutine.
	// It must not block for long and must not send commands synchronously.
	Notify func(Event)
}

func (cfg Config) validate() error {
	var errs []error
	if cfg.Scripts == nil {
		errs = append(errs, errors.New("scripts repository is required"))
	}
	if cfg.Scorer == nil {
		errs = append(errs, errors.New("scorer is required"))
	}
	if cfg.Recorder == nil {
		errs = append(errs, errors.New("recorder is required"))
	}
	if cfg.Slot == nil {
		errs = append(errs, errors.New("recording slot is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("practice: invalid config: %w", err)
	}
	return nil
}

// failureKind records why a round is waiting for a retry.
type failureKind int

const (
	failureNone failureKind = iota
	failureRecording
	failureScoring
)

// ── messages ────────────────────────────────────────────────────────────────

type message interface{ isMessage() }

type timerFired struct{ handle countdown.Handle }

type payloadReady struct {
	epoch   uint64
	payload recording.Payload
	ok      bool
}

type scored struct {
	epoch uint64
	raw   float64
	err   error
}

type commandKind int

const (
	cmdCancel commandKind = iota
	cmdResume
	cmdExit
	cmdRetryScoring
	cmdRestartRound
)

func (k commandKind) String() string {
	switch k {
	case cmdCancel:
		return "cancel"
	case cmdResume:
		return "resume"
	case cmdExit:
		return "exit"
	case cmdRetryScoring:
		return "retry_scoring"
	case cmdRestartRound:
		return "restart_round"
	default:
		return "unknown"
	}
}

type command struct {
	kind  commandKind
	reply chan error
}

func (timerFired) isMessage()   {}
func (payloadReady) isMessage() {}
func (scored) isMessage()       {}
func (command) isMessage()      {}

// ── controller ──────────────────────────────────────────────────────────────

// Controller drives one practice session. Create it with [New] and begin it
// with [Controller.Start]. Commands and accessors are safe for concurrent use.
type Controller struct {
	cfg     Config
	metrics *observe.Metrics
	log     *slog.Logger
	timer   *countdown.Timer

	inbox chan message
	done  chan struct{}

	// Guarded by mu. Only the event loop writes after Start.
	mu          sync.Mutex
	phase       Phase
	state       SessionState
	epoch       uint64
	timerHandle countdown.Handle
	stopping    bool
	failure     failureKind
	payload     recording.Payload
	cancelScore context.CancelFunc
	result      *score.AggregateResult
	loopCtx     context.Context
	started     bool
}

// New creates an idle controller.
func New(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Quality.Format.SampleRate == 0 {
		cfg.Quality = recording.DefaultQuality()
	}
	c := &Controller{
		cfg:     cfg,
		metrics: cfg.Metrics,
		log:     slog.With("session_id", cfg.SessionID),
		inbox:   make(chan message, 16),
		done:    make(chan struct{}),
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.timer = countdown.New(func(h countdown.Handle, finished bool) {
		if finished {
			c.post(timerFired{handle: h})
		}
	})
	return c, nil
}

// Start fetches the session's scripts and begins the first round. It returns
// [recording.ErrPermissionDenied] without touching the script source when
// micPermission is false, and an error wrapping [script.ErrNoScriptsAvailable]
// when the pool cannot supply enough scripts. On error the controller stays
// idle and Start may be called again.
//
// ctx bounds the whole session; cancelling it behaves like Exit.
func (c *Controller) Start(ctx context.Context, micPermission bool) (err error) {
	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	if !micPermission {
		c.mu.Unlock()
		return recording.ErrPermissionDenied
	}
	c.phase = PhaseFetchingScripts
	c.mu.Unlock()

	fetchCtx, span := observe.StartSpan(ctx, "practice.FetchScripts")
	start := time.Now()
	scripts, err := script.Fetch(fetchCtx, c.cfg.Scripts, score.Rounds, c.cfg.Rand)
	c.metrics.ScriptFetchDuration.Record(ctx, time.Since(start).Seconds())
	observe.EndSpan(span, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.phase = PhaseIdle
		c.log.Warn("practice: failed to fetch scripts", "err", err)
		return fmt.Errorf("practice: start: %w", err)
	}
	c.state = SessionState{Scripts: scripts}
	c.loopCtx = ctx
	c.started = true
	c.metrics.ActiveSessions.Add(ctx, 1)
	c.log.Debug("practice: scripts fetched", "rounds", len(scripts))

	go c.run(ctx)
	return nil
}

// run is the event loop. It is the only goroutine that mutates state after
// Start.
func (c *Controller) run(ctx context.Context) {
	defer close(c.done)

	c.dispatch(c.locked(c.startRound))
	for {
		select {
		case <-ctx.Done():
			c.dispatch(c.locked(func() []Event { return c.exit("context done") }))
			return
		case m := <-c.inbox:
			var reply chan error
			var replyErr error
			evs := c.locked(func() []Event {
				switch m := m.(type) {
				case timerFired:
					return c.onTimer(m)
				case payloadReady:
					return c.onPayload(m)
				case scored:
					return c.onScored(m)
				case command:
					reply = m.reply
					var evs []Event
					evs, replyErr = c.onCommand(m.kind)
					return evs
				}
				return nil
			})
			c.dispatch(evs)
			if reply != nil {
				reply <- replyErr
			}
			if c.Phase().Terminal() {
				return
			}
		}
	}
}

func (c *Controller) locked(fn func() []Event) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn()
}

func (c *Controller) dispatch(evs []Event) {
	if c.cfg.Notify == nil {
		return
	}
	for _, e := range evs {
		c.cfg.Notify(e)
	}
}

// post queues m for the event loop, giving up once the session has ended.
func (c *Controller) post(m message) {
	select {
	case c.inbox <- m:
	case <-c.done:
	}
}

// ── round lifecycle (all called with c.mu held, on the loop goroutine) ─────

// startRound begins a fresh attempt at the current script: new epoch, full
// countdown and a new recording.
func (c *Controller) startRound() []Event {
	if c.state.Complete() {
		return c.complete()
	}
	cur, ok := c.state.Current()
	if !ok {
		c.log.Error("practice: no script left for an unfinished session", "scores", len(c.state.Scores))
		return c.exit("no script left")
	}

	c.epoch++
	c.stopping = false
	c.failure = failureNone
	c.payload = recording.Payload{}
	round := c.state.Round()
	log := c.log.With("round", round, "epoch", c.epoch)

	if err := c.cfg.Recorder.Prepare(c.cfg.Slot, c.cfg.Quality); err != nil {
		return c.recordingFailed(fmt.Errorf("practice: prepare recording: %w", err))
	}

	d := c.cfg.Schedule.For(cur.Level)
	c.timerHandle = c.timer.Start(d)
	if err := c.cfg.Recorder.Start(c.loopCtx); err != nil {
		c.timer.Stop(c.timerHandle)
		c.timerHandle = 0
		return c.recordingFailed(fmt.Errorf("practice: start recording: %w", err))
	}

	c.phase = PhaseRoundActive
	c.metrics.RecordRoundStarted(c.loopCtx, string(cur.Level))
	log.Debug("round started", "level", cur.Level, "duration", d)
	return []Event{{
		Kind:     EventRoundStarted,
		Round:    round,
		Epoch:    c.epoch,
		Script:   cur,
		Duration: d,
	}}
}

func (c *Controller) onTimer(m timerFired) []Event {
	if c.phase != PhaseRoundActive || c.stopping || m.handle != c.timerHandle {
		c.stale("timer")
		return nil
	}
	c.timerHandle = 0

	ch, err := c.cfg.Recorder.Stop()
	if err != nil {
		return c.recordingFailed(fmt.Errorf("practice: stop recording: %w", err))
	}
	c.stopping = true

	epoch := c.epoch
	go func() {
		p, ok := <-ch
		c.post(payloadReady{epoch: epoch, payload: p, ok: ok})
	}()
	return nil
}

func (c *Controller) onPayload(m payloadReady) []Event {
	if m.epoch != c.epoch || c.phase != PhaseRoundActive || !m.ok {
		c.stale("recording")
		return nil
	}
	c.stopping = false

	if !m.payload.OK() {
		err := m.payload.Err
		if err == nil {
			err = recording.ErrNoAudio
		}
		return c.recordingFailed(err)
	}
	c.payload = m.payload
	return c.beginScoring()
}

// beginScoring launches the single scoring call for the current round.
func (c *Controller) beginScoring() []Event {
	cur, _ := c.state.Current()
	scoreCtx, cancel := context.WithCancel(c.loopCtx)
	c.cancelScore = cancel
	c.phase = PhaseScoring
	c.failure = failureNone

	epoch, payload := c.epoch, c.payload
	go func() {
		raw, err := c.cfg.Scorer.Score(scoreCtx, payload, cur.Content)
		c.post(scored{epoch: epoch, raw: raw, err: err})
	}()
	return []Event{{Kind: EventScoring, Round: c.state.Round(), Epoch: epoch}}
}

func (c *Controller) onScored(m scored) []Event {
	if m.epoch != c.epoch || c.phase != PhaseScoring {
		c.stale("score")
		return nil
	}
	c.clearScoring()
	round := c.state.Round()

	if m.err != nil {
		c.phase = PhaseAwaitingRetry
		c.failure = failureScoring
		c.log.Warn("practice: scoring failed", "round", round, "epoch", c.epoch, "err", m.err)
		return []Event{{Kind: EventScoringFailed, Round: round, Epoch: c.epoch, Err: m.err}}
	}

	display := score.Normalize(m.raw)
	if err := c.state.Record(m.raw); err != nil {
		c.log.Error("practice: dropping score", "round", round, "err", err)
		return nil
	}
	c.payload = recording.Payload{}
	c.metrics.RecordRoundScored(c.loopCtx, m.raw, display)
	c.log.Debug("round scored", "round", round, "raw", m.raw, "display", display)

	evs := []Event{{Kind: EventRoundScored, Round: round, Epoch: c.epoch, Raw: m.raw, Display: display}}
	return append(evs, c.startRound()...)
}

func (c *Controller) recordingFailed(err error) []Event {
	c.phase = PhaseAwaitingRetry
	c.failure = failureRecording
	c.stopping = false
	c.payload = recording.Payload{}
	c.metrics.RecordingFailures.Add(c.loopCtx, 1)
	c.log.Warn("practice: recording failed", "round", c.state.Round(), "epoch", c.epoch, "err", err)
	return []Event{{Kind: EventRecordingFailed, Round: c.state.Round(), Epoch: c.epoch, Err: err}}
}

func (c *Controller) complete() []Event {
	res, err := score.Aggregate(c.state.Scores)
	if err != nil {
		c.log.Error("practice: aggregate failed", "err", err)
		return c.exit("aggregate failed")
	}
	c.result = &res
	c.phase = PhaseComplete
	c.finish("complete")
	c.metrics.SessionAverages.Record(c.loopCtx, res.Average)
	c.log.Info("practice session complete", "average", res.Average, "comment", res.Comment)
	return []Event{{Kind: EventSessionComplete, Round: c.state.Round(), Epoch: c.epoch, Result: &res}}
}

// halt stops everything in flight for the current attempt and invalidates
// its epoch.
func (c *Controller) halt() {
	c.timer.StopAll()
	c.timerHandle = 0
	c.cfg.Recorder.Cancel()
	c.clearScoring()
	c.stopping = false
	c.payload = recording.Payload{}
	c.failure = failureNone
	c.epoch++
}

func (c *Controller) clearScoring() {
	if c.cancelScore != nil {
		c.cancelScore()
		c.cancelScore = nil
	}
}

func (c *Controller) exit(reason string) []Event {
	c.halt()
	c.phase = PhaseExited
	c.finish("exited")
	c.log.Info("practice session exited", "reason", reason, "scored_rounds", c.state.Round())
	return []Event{{Kind: EventExited, Round: c.state.Round(), Epoch: c.epoch}}
}

// finish releases per-session resources once a terminal phase is reached.
func (c *Controller) finish(outcome string) {
	if err := c.cfg.Slot.Release(); err != nil {
		c.log.Warn("practice: failed to release recording slot", "err", err)
	}
	// The loop context may already be done; metrics still need recording.
	ctx := context.WithoutCancel(c.loopCtx)
	c.metrics.ActiveSessions.Add(ctx, -1)
	c.metrics.RecordSessionOutcome(ctx, outcome)
}

func (c *Controller) stale(kind string) {
	c.metrics.RecordStaleEvent(context.WithoutCancel(c.loopCtx), kind)
	c.log.Debug("practice: dropped stale event", "kind", kind, "epoch", c.epoch)
}

func (c *Controller) onCommand(k commandKind) ([]Event, error) {
	switch k {
	case cmdCancel:
		switch c.phase {
		case PhasePaused:
			return nil, nil
		case PhaseRoundActive, PhaseScoring, PhaseAwaitingRetry:
			counting, left := c.timer.Running() != 0, c.timer.Remaining()
			c.halt()
			c.phase = PhasePaused
			c.metrics.Cancellations.Add(c.loopCtx, 1)
			c.log.Info("practice round cancelled",
				"round", c.state.Round(),
				"during_countdown", counting,
				"countdown_left", left,
			)
			return []Event{{Kind: EventPaused, Round: c.state.Round(), Epoch: c.epoch}}, nil
		}
	case cmdResume:
		if c.phase == PhasePaused {
			return c.startRound(), nil
		}
	case cmdExit:
		return c.exit("user exit"), nil
	case cmdRetryScoring:
		if c.phase == PhaseAwaitingRetry && c.failure == failureScoring && c.payload.OK() {
			return c.beginScoring(), nil
		}
	case cmdRestartRound:
		if c.phase == PhaseAwaitingRetry {
			c.halt()
			return c.startRound(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s during %s", ErrNotAllowed, k, c.phase)
}

// ── public commands ─────────────────────────────────────────────────────────

func (c *Controller) send(k commandKind) error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return fmt.Errorf("%w: %s before start", ErrNotAllowed, k)
	}
	reply := make(chan error, 1)
	select {
	case c.inbox <- command{kind: k, reply: reply}:
	case <-c.done:
		return ErrSessionOver
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		// The loop may have replied just before exiting.
		select {
		case err := <-reply:
			return err
		default:
			return ErrSessionOver
		}
	}
}

// Cancel pauses the session: the countdown stops, the recording is discarded
// and any in-flight scoring result is ignored. Cancelling a paused session is
// a no-op.
func (c *Controller) Cancel() error { return c.send(cmdCancel) }

// Resume restarts the paused round with the same script and a full countdown.
func (c *Controller) Resume() error { return c.send(cmdResume) }

// Exit ends the session without computing a result. Scores of finished
// rounds are not persisted anywhere.
func (c *Controller) Exit() error { return c.send(cmdExit) }

// RetryScoring resubmits the last recording after a scoring failure.
func (c *Controller) RetryScoring() error { return c.send(cmdRetryScoring) }

// RestartRound re-records the current round after a recording or scoring
// failure.
func (c *Controller) RestartRound() error { return c.send(cmdRestartRound) }

// ── accessors ───────────────────────────────────────────────────────────────

// Done is closed once the session is complete or exited.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Result returns the aggregate of a completed session.
func (c *Controller) Result() (score.AggregateResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return score.AggregateResult{}, false
	}
	return *c.result, true
}

// Snapshot returns a copy of the controller's state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state.clone()
	cur, _ := st.Current()
	return Snapshot{
		SessionID: c.cfg.SessionID,
		Phase:     c.phase,
		Round:     st.Round(),
		Epoch:     c.epoch,
		Script:    cur,
		Scores:    st.Scores,
		Remaining: len(st.Scripts),
	}
}
