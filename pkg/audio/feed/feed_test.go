package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/recita/pkg/audio"
)

func frame(b byte) audio.AudioFrame {
	return audio.AudioFrame{Data: []byte{b, 0}, SampleRate: 16000, Channels: 1}
}

func waitClosed(t *testing.T, ch <-chan audio.AudioFrame) []audio.AudioFrame {
	t.Helper()
	var got []audio.AudioFrame
	timeout := time.After(2 * time.Second)
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, f)
		case <-timeout:
			t.Fatal("capture channel was not closed")
		}
	}
}

func TestDevice_PushDuringCapture(t *testing.T) {
	t.Parallel()

	d := New()
	if d.Push(frame(1)) {
		t.Error("Push before Capture should be dropped")
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := d.Capture(ctx)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !d.Capturing() {
		t.Error("Capturing() = false during capture")
	}
	if !d.Push(frame(2)) || !d.Push(frame(3)) {
		t.Fatal("Push during capture rejected")
	}
	cancel()

	got := waitClosed(t, ch)
	if len(got) != 2 || got[0].Data[0] != 2 || got[1].Data[0] != 3 {
		t.Errorf("got frames %v, want [2 3]", got)
	}

	// The closing goroutine has released the device by the time the channel
	// is closed.
	if d.Capturing() {
		t.Error("Capturing() = true after capture ended")
	}
	if d.Push(frame(4)) {
		t.Error("Push after capture should be dropped")
	}
}

func TestDevice_Busy(t *testing.T) {
	t.Parallel()

	d := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := d.Capture(ctx)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if _, err := d.Capture(context.Background()); !errors.Is(err, audio.ErrDeviceBusy) {
		t.Errorf("second Capture error = %v, want ErrDeviceBusy", err)
	}
	cancel()
	waitClosed(t, ch)

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	if _, err := d.Capture(ctx2); err != nil {
		t.Errorf("Capture after release: %v", err)
	}
}

func TestDevice_DropsWhenFull(t *testing.T) {
	t.Parallel()

	d := New(WithBuffer(1))
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := d.Capture(ctx)

	d.Push(frame(1))
	if d.Push(frame(2)) {
		t.Error("Push into full buffer should be dropped")
	}
	if d.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", d.Dropped())
	}
	cancel()
	waitClosed(t, ch)
}
