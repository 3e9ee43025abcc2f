package livequeue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zsiec/rovlink/internal/media"
)

func TestQueue_DropsNewestWhenFull(t *testing.T) {
	t.Parallel()

	q := New(2)
	for i := range 3 {
		ok := q.TryPush(&media.Frame{Seq: uint64(i)})
		if want := i < 2; ok != want {
			t.Errorf("TryPush(%d) = %v, want %v", i, ok, want)
		}
	}
	if q.Len() != 2 {
		t.Fatalf("Len = %d, want 2", q.Len())
	}

	ctx := context.Background()
	for want := range uint64(2) {
		f, ok := q.Pop(ctx)
		if !ok || f.Seq != want {
			t.Fatalf("Pop = %v, %v; want seq %d", f, ok, want)
		}
	}

	s := q.Stats()
	if s.Pushed != 2 || s.Dropped != 1 || s.Popped != 2 || s.Capacity != 2 {
		t.Errorf("stats = %+v", s)
	}
}

func TestQueue_LiveScenario(t *testing.T) {
	t.Parallel()

	q := New(media.LiveQueueSize)
	for i := range 150 {
		q.TryPush(&media.Frame{Seq: uint64(i)})
	}
	if q.Len() != media.LiveQueueSize {
		t.Errorf("Len = %d, want %d", q.Len(), media.LiveQueueSize)
	}
	if s := q.Stats(); s.Dropped != 50 {
		t.Errorf("Dropped = %d, want 50", s.Dropped)
	}
	f, _ := q.Pop(context.Background())
	if f.Seq != 0 {
		t.Errorf("oldest frame seq = %d, want 0", f.Seq)
	}
}

func TestQueue_CloseUnblocksPop(t *testing.T) {
	t.Parallel()

	q := New(1)
	result := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(context.Background())
		result <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()
	q.Close()

	select {
	case ok := <-result:
		if ok {
			t.Error("Pop after Close returned a frame")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Close")
	}

	if q.TryPush(&media.Frame{}) {
		t.Error("TryPush after Close succeeded")
	}
	if !q.Stats().Closed {
		t.Error("Stats.Closed = false")
	}
}

func TestQueue_PopHonorsContext(t *testing.T) {
	t.Parallel()

	q := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok := q.Pop(ctx); ok {
		t.Error("Pop on empty queue returned a frame")
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	t.Parallel()

	q := New(10)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				q.TryPush(&media.Frame{})
			}
		}()
	}
	wg.Wait()

	s := q.Stats()
	if s.Pushed+s.Dropped != 800 {
		t.Errorf("pushed+dropped = %d, want 800", s.Pushed+s.Dropped)
	}
	if q.Len() > 10 {
		t.Errorf("Len = %d exceeds capacity", q.Len())
	}
}
