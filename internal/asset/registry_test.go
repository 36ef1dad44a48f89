package asset

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"clipflow/internal/eventbus"
	"clipflow/internal/fault"
	"clipflow/internal/storage"
	logx "clipflow/pkg/logx"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewRegistry(st, eventbus.New(), logx.Nop())
}

func TestRegisterAndGet(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.Register(ctx, "demo.mp4")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if a.ID == "" {
		t.Fatal("expected non-empty id")
	}
	if a.Status != StatusUploading {
		t.Fatalf("status = %s, want %s", a.Status, StatusUploading)
	}

	got, ok, err := r.Get(ctx, a.ID)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Filename != "demo.mp4" {
		t.Fatalf("filename = %q", got.Filename)
	}

	if _, ok, _ := r.Get(ctx, "no-such-id"); ok {
		t.Fatal("unknown id should not resolve")
	}
}

func TestRegisterRejectsEmptyFilename(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	_, err := r.Register(context.Background(), "   ")
	if !fault.IsValidation(err) {
		t.Fatalf("expected validation fault, got %v", err)
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)
	ctx := context.Background()

	a, _ := r.Register(ctx, "demo.mp4")
	gen, err := r.BeginProcessing(ctx, a.ID)
	if err != nil {
		t.Fatalf("begin processing: %v", err)
	}
	if gen != 1 {
		t.Fatalf("gen = %d, want 1", gen)
	}

	meta := &Metadata{Duration: 12.5, Width: 1280, Height: 720, Codec: "h264"}
	if err := r.MarkReady(ctx, a.ID, gen, meta, "videos/"+a.ID+"/index.m3u8"); err != nil {
		t.Fatalf("mark ready: %v", err)
	}

	got, _, _ := r.Get(ctx, a.ID)
	if got.Status != StatusReady {
		t.Fatalf("status = %s, want ready", got.Status)
	}
	if got.Meta == nil || got.Meta.Width != 1280 {
		t.Fatalf("meta not persisted: %+v", got.Meta)
	}
	if !strings.HasSuffix(got.ManifestPath, "index.m3u8") {
		t.Fatalf("manifest path = %q", got.ManifestPath)
	}
}

func TestBeginProcessingRejectsSecondJob(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)
	ctx := context.Background()

	a, _ := r.Register(ctx, "demo.mp4")
	if _, err := r.BeginProcessing(ctx, a.ID); err != nil {
		t.Fatalf("begin processing: %v", err)
	}
	if _, err := r.BeginProcessing(ctx, a.ID); !fault.IsValidation(err) {
		t.Fatalf("expected validation fault for in-flight job, got %v", err)
	}
}

func TestTerminalWriteHappensOnce(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)
	ctx := context.Background()

	a, _ := r.Register(ctx, "demo.mp4")
	gen, _ := r.BeginProcessing(ctx, a.ID)

	if err := r.MarkFailed(ctx, a.ID, gen, "codec unsupported"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	// Late success from the same job must not override the terminal state.
	if err := r.MarkReady(ctx, a.ID, gen, &Metadata{}, "videos/x/index.m3u8"); err != nil {
		t.Fatalf("late mark ready: %v", err)
	}

	got, _, _ := r.Get(ctx, a.ID)
	if got.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Error != "codec unsupported" {
		t.Fatalf("error = %q", got.Error)
	}
}

func TestConcurrentTerminalWritesSingleWinner(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)
	ctx := context.Background()

	a, _ := r.Register(ctx, "demo.mp4")
	gen, _ := r.BeginProcessing(ctx, a.ID)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = r.MarkReady(ctx, a.ID, gen, &Metadata{}, "videos/"+a.ID+"/index.m3u8")
			} else {
				_ = r.MarkFailed(ctx, a.ID, gen, "boom")
			}
		}(i)
	}
	wg.Wait()

	got, _, _ := r.Get(ctx, a.ID)
	if got.Status != StatusReady && got.Status != StatusFailed {
		t.Fatalf("status = %s, want a terminal state", got.Status)
	}
	// Exactly one write won: a ready asset carries no error, a failed one
	// carries no manifest.
	if got.Status == StatusReady && got.Error != "" {
		t.Fatalf("ready asset has error %q", got.Error)
	}
	if got.Status == StatusFailed && got.ManifestPath != "" {
		t.Fatalf("failed asset has manifest %q", got.ManifestPath)
	}
}

func TestStaleGenerationIgnored(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)
	ctx := context.Background()

	a, _ := r.Register(ctx, "demo.mp4")
	gen, _ := r.BeginProcessing(ctx, a.ID)

	if err := r.MarkReady(ctx, a.ID, gen+1, &Metadata{}, "videos/x/index.m3u8"); err != nil {
		t.Fatalf("stale mark ready: %v", err)
	}
	got, _, _ := r.Get(ctx, a.ID)
	if got.Status != StatusProcessing {
		t.Fatalf("status = %s, stale write must not apply", got.Status)
	}
}

func TestMarkDeleted(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)
	ctx := context.Background()

	a, _ := r.Register(ctx, "demo.mp4")
	ok, err := r.MarkDeleted(ctx, a.ID)
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	// Idempotent: second delete reports not found.
	if ok, _ := r.MarkDeleted(ctx, a.ID); ok {
		t.Fatal("second delete should report false")
	}

	got, _, _ := r.Get(ctx, a.ID)
	if got.Status != StatusDeleted {
		t.Fatalf("status = %s, want deleted", got.Status)
	}

	// Deleted assets drop out of listings.
	list, err := r.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, it := range list {
		if it.ID == a.ID {
			t.Fatal("deleted asset still listed")
		}
	}
}

func TestFailedEventPublished(t *testing.T) {
	t.Parallel()
	st, _ := storage.Open(storage.Config{}, logx.Nop())
	bus := eventbus.New()
	r := NewRegistry(st, bus, logx.Nop())
	ctx := context.Background()

	ch, unsub := bus.Subscribe(4)
	defer unsub()

	a, _ := r.Register(ctx, "demo.mp4")
	gen, _ := r.BeginProcessing(ctx, a.ID)
	_ = r.MarkFailed(ctx, a.ID, gen, "boom")

	select {
	case e := <-ch:
		if e.Type != EventFailed {
			t.Fatalf("event type = %s, want %s", e.Type, EventFailed)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}
