package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/recita/internal/app"
	"github.com/MrWong99/recita/internal/practice"
	"github.com/MrWong99/recita/pkg/audio"
	"github.com/MrWong99/recita/pkg/audio/feed"
	"github.com/MrWong99/recita/pkg/audio/opus"
)

const (
	// maxMessageBytes bounds a single client frame. One second of 48 kHz
	// stereo PCM16 fits comfortably.
	maxMessageBytes = 256 << 10

	writeTimeout = 5 * time.Second
	outboxSize   = 64
)

// handlePractice upgrades the request and runs the practice protocol until
// either side closes the connection.
func (s *Server) handlePractice(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		slog.Warn("practice websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageBytes)

	pc := &practiceConn{app: s.app, conn: conn, out: make(chan serverMessage, outboxSize)}
	err = pc.serve(r.Context())
	pc.recordDropped()
	if err != nil {
		slog.Warn("practice connection error", "err", err)
		conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// practiceConn is the state of one websocket connection. Only the read loop
// touches session, device and decoder.
type practiceConn struct {
	app  *app.App
	conn *websocket.Conn
	out  chan serverMessage

	mu      sync.Mutex
	session *app.Session

	device  *feed.Device
	decoder *opus.Decoder
	format  audio.Format
}

// serve runs the reader and writer until the client disconnects. The session
// is bound to the connection and exits with it.
func (pc *practiceConn) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return pc.readLoop(gctx)
	})
	g.Go(func() error {
		return pc.writeLoop(gctx)
	})
	return g.Wait()
}

func (pc *practiceConn) readLoop(ctx context.Context) error {
	for {
		typ, data, err := pc.conn.Read(ctx)
		if err != nil {
			if disconnected(err) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("server: read: %w", err)
		}

		switch typ {
		case websocket.MessageBinary:
			pc.pushAudio(data)
		case websocket.MessageText:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				pc.send(ctx, errorMessage("bad_request", fmt.Errorf("decode message: %w", err)))
				continue
			}
			pc.handle(ctx, msg)
		}
	}
}

// disconnected reports whether err is the client going away, with or
// without a close frame.
func disconnected(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
		return true
	}
	return false
}

func (pc *practiceConn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-pc.out:
			data, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("server: marshal %s: %w", m.Type, err)
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = pc.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("server: write: %w", err)
			}
		}
	}
}

// send queues m for the writer. It gives up when the connection is gone.
func (pc *practiceConn) send(ctx context.Context, m serverMessage) {
	select {
	case pc.out <- m:
	case <-ctx.Done():
	}
}

func (pc *practiceConn) current() *app.Session {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.session
}

func (pc *practiceConn) handle(ctx context.Context, msg clientMessage) {
	switch msg.Type {
	case msgStart:
		pc.start(ctx, msg)
		return
	case msgCancel, msgResume, msgExit, msgRetry, msgRestart, msgSubmit:
	default:
		pc.send(ctx, errorMessage("bad_request", fmt.Errorf("unknown message type %q", msg.Type)))
		return
	}

	sess := pc.current()
	if sess == nil {
		pc.send(ctx, errorMessage("no_session", errors.New("no session started")))
		return
	}
	ctrl := sess.Controller

	var err error
	switch msg.Type {
	case msgCancel:
		err = ctrl.Cancel()
	case msgResume:
		err = ctrl.Resume()
	case msgExit:
		err = ctrl.Exit()
	case msgRetry:
		err = ctrl.RetryScoring()
	case msgRestart:
		err = ctrl.RestartRound()
	case msgSubmit:
		pc.submit(ctx, sess, msg.Name)
		return
	}
	if err != nil {
		pc.send(ctx, errorMessage(errorCode(err), err))
	}
}

// start begins a new session. A connection may start again once its
// previous session has ended.
func (pc *practiceConn) start(ctx context.Context, msg clientMessage) {
	if sess := pc.current(); sess != nil && !sess.Controller.Phase().Terminal() {
		pc.send(ctx, errorMessage("already_started", practice.ErrAlreadyStarted))
		return
	}

	if err := pc.configureAudio(msg); err != nil {
		pc.send(ctx, errorMessage("bad_request", err))
		return
	}

	// Events are held until "started" is queued so the client always learns
	// the session ID first.
	ready := make(chan struct{})
	var sessionID string
	notify := func(e practice.Event) {
		select {
		case <-ready:
		case <-ctx.Done():
			return
		}
		pc.send(ctx, eventMessage(sessionID, e))
	}

	sess, err := pc.app.StartSession(ctx, app.StartRequest{
		Name:          msg.Name,
		MicPermission: msg.MicPermission,
		Notify:        notify,
	}, pc.device)
	if err != nil {
		pc.send(ctx, errorMessage(errorCode(err), err))
		return
	}
	sessionID = sess.Info.SessionID

	pc.mu.Lock()
	pc.session = sess
	pc.mu.Unlock()

	pc.send(ctx, serverMessage{Type: msgStarted, SessionID: sessionID})
	close(ready)
}

// configureAudio prepares the feed device and decoder for the codec the
// client announced.
func (pc *practiceConn) configureAudio(msg clientMessage) error {
	codec := msg.Codec
	if codec == "" {
		codec = codecPCM16
	}
	format := audio.Format{SampleRate: msg.SampleRate, Channels: msg.Channels}
	if format.Channels == 0 {
		format.Channels = 1
	}

	switch codec {
	case codecPCM16:
		if format.SampleRate == 0 {
			format.SampleRate = 16000
		}
		if err := format.Validate(); err != nil {
			return err
		}
		pc.decoder = nil
	case codecOpus:
		if format.SampleRate == 0 {
			format.SampleRate = opus.DefaultSampleRate
		}
		dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
		if err != nil {
			return err
		}
		pc.decoder = dec
	default:
		return fmt.Errorf("unsupported codec %q; valid values: %s, %s", codec, codecPCM16, codecOpus)
	}
	pc.recordDropped()
	pc.format = format
	pc.device = feed.New()
	return nil
}

// recordDropped reports the frames the current device discarded.
func (pc *practiceConn) recordDropped() {
	if pc.device == nil {
		return
	}
	if n := pc.device.Dropped(); n > 0 {
		pc.app.Metrics().RecordFramesDropped(context.Background(), n)
		slog.Debug("practice audio frames dropped", "frames", n)
	}
}

// pushAudio feeds one binary frame to the running capture.
func (pc *practiceConn) pushAudio(data []byte) {
	// Between recording windows frames are discarded before decoding.
	if pc.device == nil || len(data) == 0 || !pc.device.Capturing() {
		return
	}
	var frame audio.AudioFrame
	if pc.decoder != nil {
		f, err := pc.decoder.Decode(data)
		if err != nil {
			slog.Debug("dropping undecodable opus packet", "err", err)
			return
		}
		frame = f
	} else {
		if len(data)%(2*pc.format.Channels) != 0 {
			slog.Debug("dropping misaligned pcm frame", "bytes", len(data))
			return
		}
		frame = audio.AudioFrame{
			Data:       data,
			SampleRate: pc.format.SampleRate,
			Channels:   pc.format.Channels,
		}
	}
	pc.device.Push(frame)
}

func (pc *practiceConn) submit(ctx context.Context, sess *app.Session, name string) {
	res, ok := sess.Controller.Result()
	if !ok {
		pc.send(ctx, errorMessage("not_allowed", fmt.Errorf("%w: session is not complete", practice.ErrNotAllowed)))
		return
	}
	if name == "" {
		name = sess.Info.Name
	}
	if err := pc.app.SubmitResult(ctx, name, res); err != nil {
		pc.send(ctx, errorMessage(errorCode(err), err))
		return
	}
	avg := res.Average
	pc.send(ctx, serverMessage{Type: msgSubmitted, SessionID: sess.Info.SessionID, Average: &avg})
}
