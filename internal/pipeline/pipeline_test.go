package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/zsiec/rovlink/internal/audio"
	"github.com/zsiec/rovlink/internal/framecache"
	"github.com/zsiec/rovlink/internal/ingest"
	"github.com/zsiec/rovlink/internal/livequeue"
	"github.com/zsiec/rovlink/internal/media"
	"github.com/zsiec/rovlink/internal/persist"
	"github.com/zsiec/rovlink/internal/wire"
)

type fakePool struct {
	mu   sync.Mutex
	jobs []persist.Job
	full bool
}

func (p *fakePool) Submit(j persist.Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full {
		return false
	}
	p.jobs = append(p.jobs, j)
	return true
}

func (p *fakePool) Jobs() []persist.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]persist.Job(nil), p.jobs...)
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 16), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := media.EncodeJPEG(&buf, img, media.QualityPreview); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

// feed parses data in one piece and dispatches the result.
func feed(t *testing.T, p ingest.Protocol, data []byte) *ingest.Conn {
	t.Helper()
	conn := ingest.NewRegistry().Register(p.Name(), "tcp", "127.0.0.1:1", "")
	res := p.Parse(data)
	if res.Consumed != len(data) {
		t.Fatalf("consumed %d of %d bytes", res.Consumed, len(data))
	}
	for _, msg := range res.Messages {
		p.Dispatch(context.Background(), conn, msg)
	}
	for _, err := range res.Skipped {
		p.Skipped(conn, err)
	}
	return conn
}

func TestMixed_BlobBecomesOneJob(t *testing.T) {
	t.Parallel()

	q := livequeue.New(media.LiveQueueSize)
	pool := &fakePool{}
	m := NewMixed(q, pool, nil)

	blob := testJPEG(t, 8, 8)
	feed(t, m, wire.AppendImageCommand(nil, blob))

	jobs := pool.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("jobs: got %d, want 1", len(jobs))
	}
	j := jobs[0]
	if j.Kind != persist.JobImage || j.Category != persist.CategoryImage {
		t.Errorf("job: got kind %v category %q", j.Kind, j.Category)
	}
	if j.Prefix != "image_" || j.Ext != ".jpg" || j.Quality != media.QualityArchive {
		t.Errorf("job naming: got %q %q q=%d", j.Prefix, j.Ext, j.Quality)
	}
	if !bytes.Equal(j.Data, blob) {
		t.Error("job payload differs from blob")
	}
	if q.Len() != 0 {
		t.Errorf("live queue: got %d frames, want 0", q.Len())
	}
	if s := m.Stats(); s.Jobs != 1 || s.Frames != 0 {
		t.Errorf("stats: %+v", s)
	}
}

func TestMixed_VideoAndControl(t *testing.T) {
	t.Parallel()

	q := livequeue.New(media.LiveQueueSize)
	m := NewMixed(q, &fakePool{}, nil)

	var data []byte
	data = wire.AppendVideoFrame(data, testJPEG(t, 16, 8))
	data = wire.AppendControl(data, "lights_on")
	data = wire.AppendVideoFrame(data, []byte("not a jpeg"))
	data = wire.AppendVideoFrame(data, testJPEG(t, 16, 8))
	feed(t, m, data)

	if q.Len() != 2 {
		t.Fatalf("live queue: got %d frames, want 2", q.Len())
	}
	f, ok := q.Pop(context.Background())
	if !ok {
		t.Fatal("pop failed")
	}
	if got := f.Bounds(); got.Dx() != 16 || got.Dy() != 8 {
		t.Errorf("bounds: got %v", got)
	}
	s := m.Stats()
	if s.Frames != 3 || s.DecodeErrors != 1 || s.FramesQueued != 2 || s.Controls != 1 {
		t.Errorf("stats: %+v", s)
	}
}

func TestMixed_FullQueueDropsNewest(t *testing.T) {
	t.Parallel()

	q := livequeue.New(1)
	m := NewMixed(q, &fakePool{}, nil)

	var data []byte
	for range 3 {
		data = wire.AppendVideoFrame(data, testJPEG(t, 8, 8))
	}
	feed(t, m, data)

	f, _ := q.Pop(context.Background())
	if f.Seq != 1 {
		t.Errorf("kept frame seq: got %d, want 1", f.Seq)
	}
	if s := m.Stats(); s.FramesDrop != 2 {
		t.Errorf("dropped: got %d, want 2", s.FramesDrop)
	}
}

func TestMixed_RejectedJobCounted(t *testing.T) {
	t.Parallel()

	m := NewMixed(livequeue.New(1), &fakePool{full: true}, nil)
	feed(t, m, wire.AppendImageCommand(nil, []byte{1, 2, 3}))
	if s := m.Stats(); s.JobsRejected != 1 || s.Jobs != 0 {
		t.Errorf("stats: %+v", s)
	}
}

func TestStereo_InvalidJPEGKeepsCache(t *testing.T) {
	t.Parallel()

	var cache framecache.Cache
	s := NewStereo(&cache, nil)

	feed(t, s, wire.AppendStereoFrame(nil, wire.TagImage, testJPEG(t, 16, 8)))
	first, ok := cache.Load()
	if !ok {
		t.Fatal("cache empty after valid frame")
	}

	// u32(11) | 0x01 | ten bytes that are not a JPEG
	bad := []byte{0, 0, 0, 11, 0x01, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	feed(t, s, bad)

	second, ok := cache.Load()
	if !ok || second.Seq != first.Seq {
		t.Errorf("cache changed: seq %d -> %d", first.Seq, second.Seq)
	}
	if st := s.Stats(); st.Frames != 2 || st.DecodeErrors != 1 {
		t.Errorf("stats: %+v", st)
	}
}

func TestStereo_UnknownTagIgnored(t *testing.T) {
	t.Parallel()

	var cache framecache.Cache
	s := NewStereo(&cache, nil)
	feed(t, s, wire.AppendStereoFrame(nil, 0x7f, testJPEG(t, 8, 8)))
	if _, ok := cache.Load(); ok {
		t.Error("unknown tag reached the cache")
	}
}

func TestAudio_PCMDrain(t *testing.T) {
	t.Parallel()

	buf := audio.NewBuffer(audio.DefaultMaxSamples)
	a := NewAudio(buf, &fakePool{}, nil)

	first := make([]float32, 256)
	second := make([]float32, 128)
	for i := range first {
		first[i] = 0.25
	}
	for i := range second {
		second[i] = -0.5
	}
	feed(t, a, wire.AppendPCM(wire.AppendPCM(nil, first), second))

	out := make([]float32, 500)
	if n := buf.Fill(out); n != 384 {
		t.Fatalf("real samples: got %d, want 384", n)
	}
	if out[0] != 0.25 || out[256] != -0.5 {
		t.Errorf("order: out[0]=%v out[256]=%v", out[0], out[256])
	}
	for i := 384; i < 500; i++ {
		if out[i] != 0 {
			t.Fatalf("out[%d] = %v, want zero padding", i, out[i])
		}
	}
	if s := a.Stats(); s.Samples != 384 {
		t.Errorf("samples: got %d, want 384", s.Samples)
	}
}

func TestAudio_FileBecomesRawJob(t *testing.T) {
	t.Parallel()

	pool := &fakePool{}
	a := NewAudio(audio.NewBuffer(16), pool, nil)

	wav := []byte("RIFF....WAVEfmt ")
	feed(t, a, wire.AppendAudioFile(nil, wav))

	jobs := pool.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("jobs: got %d, want 1", len(jobs))
	}
	j := jobs[0]
	if j.Kind != persist.JobRaw || j.Category != persist.CategoryAudio || j.Ext != ".wav" || j.Prefix != "audio_" {
		t.Errorf("job: %+v", j)
	}
	if !bytes.Equal(j.Data, wav) {
		t.Error("payload mismatch")
	}
}

func TestAudio_MalformedSkipped(t *testing.T) {
	t.Parallel()

	a := NewAudio(audio.NewBuffer(16), &fakePool{}, nil)
	// PCM length that is not a whole number of samples.
	feed(t, a, []byte{0, 0, 0, 6, 1, 2, 3, 4, 5, 6})
	if s := a.Stats(); s.Malformed != 1 {
		t.Errorf("malformed: got %d, want 1", s.Malformed)
	}
}
