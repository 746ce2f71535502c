package transcript

import (
	"context"
	"encoding/base64"
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/recita/pkg/provider/scoring"
	"github.com/MrWong99/recita/pkg/provider/stt"
	"github.com/MrWong99/recita/pkg/provider/stt/mock"
)

func TestSimilarity(t *testing.T) {
	t.Parallel()

	t.Run("identical after normalisation", func(t *testing.T) {
		t.Parallel()
		if got := Similarity("간장 공장, 공장장!", "간장  공장 공장장"); math.Abs(got-1) > 1e-9 {
			t.Errorf("Similarity = %v, want 1", got)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		if got := Similarity("", "안녕하세요"); got != 0 {
			t.Errorf("Similarity = %v, want 0", got)
		}
		if got := Similarity("...", "hello"); got != 0 {
			t.Errorf("Similarity(punctuation only) = %v, want 0", got)
		}
	})

	t.Run("closer transcripts score higher", func(t *testing.T) {
		t.Parallel()
		target := "간장 공장 공장장은 강 공장장이다"
		near := Similarity("간장 공장 공장장은 강 공장장이야", target)
		far := Similarity("안녕하세요 반갑습니다", target)
		if near <= far {
			t.Errorf("near = %v, far = %v; want near > far", near, far)
		}
		if near < 0 || near > 1 || far < 0 || far > 1 {
			t.Errorf("similarity out of range: near=%v far=%v", near, far)
		}
	})

	t.Run("latin phonetic coverage", func(t *testing.T) {
		t.Parallel()
		target := "she sells sea shells"
		got := Similarity("she sells see shells", target)
		if got < 0.9 {
			t.Errorf("Similarity = %v, want >= 0.9 for homophone swap", got)
		}
	})
}

func TestRawScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sim  float64
		want float64
	}{
		{1, 3},
		{0, 0},
		{-1, 0},
		{2, 3},
		{0.5, 0.375},
	}
	for _, tt := range tests {
		if got := RawScore(tt.sim); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("RawScore(%v) = %v, want %v", tt.sim, got, tt.want)
		}
	}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	tr := &mock.Transcriber{Text: "안녕하세요"}
	p, err := New(tr, WithLanguage("ko"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	audio := base64.StdEncoding.EncodeToString([]byte("RIFFxxxxWAVE"))
	resp, err := p.Evaluate(context.Background(), scoring.Request{Audio: audio, Script: "안녕하세요"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got, ok := resp.Score.(float64); !ok || math.Abs(got-3.0) > 1e-9 {
		t.Errorf("Score = %#v, want 3.0", resp.Score)
	}
	if tr.Calls() != 1 {
		t.Fatalf("transcriber calls = %d, want 1", tr.Calls())
	}
	req := tr.Requests[0]
	if string(req.Audio) != "RIFFxxxxWAVE" {
		t.Errorf("audio = %q, want decoded wav", req.Audio)
	}
	if req.Language != "ko" {
		t.Errorf("language = %q, want ko", req.Language)
	}
	if req.Prompt != "" {
		t.Errorf("prompt = %q, want empty by default", req.Prompt)
	}
}

func TestEvaluate_PromptOption(t *testing.T) {
	t.Parallel()

	tr := &mock.Transcriber{TextFunc: func(req stt.Request) string { return req.Prompt }}
	p, _ := New(tr, WithPrompt(true))
	audio := base64.StdEncoding.EncodeToString([]byte("x"))
	if _, err := p.Evaluate(context.Background(), scoring.Request{Audio: audio, Script: "간장"}); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if tr.Requests[0].Prompt != "간장" {
		t.Errorf("prompt = %q, want script", tr.Requests[0].Prompt)
	}
}

func TestEvaluate_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("stt down")
	p, _ := New(&mock.Transcriber{Err: boom})

	if _, err := p.Evaluate(context.Background(), scoring.Request{}); !errors.Is(err, scoring.ErrEmptyAudio) {
		t.Errorf("empty audio error = %v", err)
	}
	if _, err := p.Evaluate(context.Background(), scoring.Request{Audio: "!!not-base64!!"}); err == nil {
		t.Error("expected base64 error")
	}
	audio := base64.StdEncoding.EncodeToString([]byte("x"))
	if _, err := p.Evaluate(context.Background(), scoring.Request{Audio: audio}); !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped stt error", err)
	}
	if _, err := New(nil); err == nil {
		t.Error("New(nil) should fail")
	}
}
