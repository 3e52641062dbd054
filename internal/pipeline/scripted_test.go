package pipeline

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func drain(t *testing.T, stream ChunkStream) []*Chunk {
	t.Helper()
	var chunks []*Chunk
	for {
		c, err := stream.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return chunks
		}
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		chunks = append(chunks, c)
	}
}

func TestScriptedReplay(t *testing.T) {
	p := NewScripted(DemoChunks("TSLA"), Options{})

	stream, err := p.Stream(context.Background(), p.InitialState("TSLA", "2025-06-02"), p.RunOptions())
	if err != nil {
		t.Fatal(err)
	}

	chunks := drain(t, stream)
	if len(chunks) != 7 {
		t.Fatalf("got %d chunks, want 7", len(chunks))
	}
	last := chunks[len(chunks)-1]
	if last.FinalTradeDecision != "BUY" {
		t.Errorf("final decision = %q, want BUY", last.FinalTradeDecision)
	}

	// A second run replays from the start
	stream2, err := p.Stream(context.Background(), p.InitialState("TSLA", "2025-06-02"), p.RunOptions())
	if err != nil {
		t.Fatal(err)
	}
	if got := drain(t, stream2); len(got) != 7 {
		t.Errorf("second run got %d chunks, want 7", len(got))
	}
}

func TestScriptedInitError(t *testing.T) {
	wantErr := errors.New("init failed")
	p := NewScripted(nil, Options{}).WithInitError(wantErr)

	_, err := p.Stream(context.Background(), State{}, Options{})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected init error, got %v", err)
	}
}

func TestScriptedStreamError(t *testing.T) {
	wantErr := errors.New("agent crashed")
	p := NewScripted(DemoChunks("TSLA"), Options{}).WithStreamError(2, wantErr)

	stream, err := p.Stream(context.Background(), State{}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if _, err := stream.Next(context.Background()); err != nil {
			t.Fatalf("chunk %d: unexpected error %v", i, err)
		}
	}
	if _, err := stream.Next(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("expected injected error, got %v", err)
	}
}

func TestScriptedCancellation(t *testing.T) {
	p := NewScripted(DemoChunks("TSLA"), Options{}).WithDelay(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := p.Stream(ctx, State{}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	cancel()
	if _, err := stream.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
