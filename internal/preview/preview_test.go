package preview

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/zsiec/rovlink/internal/livequeue"
	"github.com/zsiec/rovlink/internal/media"
	"github.com/zsiec/rovlink/internal/persist"
)

type fakeRenderer struct {
	mu      sync.Mutex
	shown   int
	intents chan Intent
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{intents: make(chan Intent, 4)}
}

func (f *fakeRenderer) Show(image.Image) {
	f.mu.Lock()
	f.shown++
	f.mu.Unlock()
}

func (f *fakeRenderer) Intents() <-chan Intent { return f.intents }

func (f *fakeRenderer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shown
}

type fakeActions struct {
	mu    sync.Mutex
	calls []Intent
}

func (a *fakeActions) record(in Intent) {
	a.mu.Lock()
	a.calls = append(a.calls, in)
	a.mu.Unlock()
}

func (a *fakeActions) SavePair() ([]persist.Artifact, error) {
	a.record(IntentSavePair)
	return []persist.Artifact{{Path: "l"}, {Path: "r"}}, nil
}

func (a *fakeActions) SaveDisplay() (persist.Artifact, error) {
	a.record(IntentSaveDisplay)
	return persist.Artifact{Path: "d"}, nil
}

func (a *fakeActions) SaveFish() (persist.Artifact, error) {
	a.record(IntentSaveFish)
	return persist.Artifact{}, errors.New("disk full")
}

type staticView struct{ img image.Image }

func (s staticView) DisplayView() (image.Image, bool) { return s.img, s.img != nil }

func TestKeyIntent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  int
		want Intent
		ok   bool
	}{
		{27, IntentQuit, true},
		{'q', IntentQuit, true},
		{'s', IntentSavePair, true},
		{'d', IntentSaveDisplay, true},
		{'f', IntentSaveFish, true},
		{0x100 | 's', IntentSavePair, true},
		{'x', 0, false},
		{-1, 0, false},
	}
	for _, tt := range tests {
		got, ok := KeyIntent(tt.key)
		if got != tt.want || ok != tt.ok {
			t.Errorf("KeyIntent(%d) = %v, %v; want %v, %v", tt.key, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRunQueue_StopsOnClose(t *testing.T) {
	t.Parallel()

	q := livequeue.New(4)
	for range 3 {
		q.TryPush(&media.Frame{Image: image.NewRGBA(image.Rect(0, 0, 1, 1))})
	}
	r := newFakeRenderer()

	done := make(chan error, 1)
	go func() { done <- RunQueue(context.Background(), q, r, nil) }()

	deadline := time.After(5 * time.Second)
	for r.count() < 3 {
		select {
		case <-deadline:
			t.Fatal("frames not shown")
		case <-time.After(time.Millisecond):
		}
	}
	q.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunQueue = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunQueue did not return after Close")
	}
}

func TestRunQueue_Quit(t *testing.T) {
	t.Parallel()

	r := newFakeRenderer()
	r.intents <- IntentSavePair
	r.intents <- IntentQuit

	err := RunQueue(context.Background(), livequeue.New(1), r, nil)
	if !errors.Is(err, ErrQuit) {
		t.Errorf("RunQueue = %v, want ErrQuit", err)
	}
}

func TestRunCache_ShowsAndPerforms(t *testing.T) {
	t.Parallel()

	r := newFakeRenderer()
	actions := &fakeActions{}
	src := staticView{img: image.NewRGBA(image.Rect(0, 0, 2, 2))}

	done := make(chan error, 1)
	go func() {
		done <- RunCache(context.Background(), src, actions, r, time.Millisecond, nil)
	}()

	r.intents <- IntentSavePair
	r.intents <- IntentSaveDisplay
	r.intents <- IntentSaveFish
	r.intents <- IntentQuit

	select {
	case err := <-done:
		if !errors.Is(err, ErrQuit) {
			t.Errorf("RunCache = %v, want ErrQuit", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunCache did not quit")
	}

	actions.mu.Lock()
	defer actions.mu.Unlock()
	want := []Intent{IntentSavePair, IntentSaveDisplay, IntentSaveFish}
	if len(actions.calls) != len(want) {
		t.Fatalf("actions = %v, want %v", actions.calls, want)
	}
	for i := range want {
		if actions.calls[i] != want[i] {
			t.Errorf("action %d = %v, want %v", i, actions.calls[i], want[i])
		}
	}
}

func TestRunCache_EmptyCacheShowsNothing(t *testing.T) {
	t.Parallel()

	r := newFakeRenderer()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := RunCache(ctx, staticView{}, nil, r, time.Millisecond, nil); err != nil {
		t.Errorf("RunCache = %v, want nil", err)
	}
	if r.count() != 0 {
		t.Errorf("shown = %d, want 0", r.count())
	}
}

func TestTee(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, b := newFakeRenderer(), newFakeRenderer()
	tr := Tee(ctx, a, b)

	tr.Show(image.NewRGBA(image.Rect(0, 0, 1, 1)))
	if a.count() != 1 || b.count() != 1 {
		t.Errorf("shown = %d, %d; want 1, 1", a.count(), b.count())
	}

	b.intents <- IntentSaveFish
	select {
	case in := <-tr.Intents():
		if in != IntentSaveFish {
			t.Errorf("intent = %v, want save-fish", in)
		}
	case <-time.After(time.Second):
		t.Fatal("intent not forwarded")
	}
}
