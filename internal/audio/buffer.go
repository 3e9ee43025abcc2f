// Package audio holds the playback ring buffer fed by the audio ingest
// stream and drained by the output device.
package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zsiec/rovlink/internal/media"
	"github.com/zsiec/rovlink/internal/wire"
)

// ErrMisaligned is returned by AppendPCM for payloads that are not a whole
// number of float32 samples.
var ErrMisaligned = errors.New("audio: pcm payload is not a multiple of 4 bytes")

// DefaultMaxSamples bounds the buffer at 30 seconds of mono audio.
const DefaultMaxSamples = 30 * media.SampleRate * media.Channels

// Stats is a snapshot of buffer activity.
type Stats struct {
	Buffered  int   `json:"buffered"`
	Capacity  int   `json:"capacity"`
	Appended  int64 `json:"appended"`
	Played    int64 `json:"played"`
	Padded    int64 `json:"padded"`
	Underruns int64 `json:"underruns"`
	Overflow  int64 `json:"overflow"`
}

// Buffer is a FIFO of float32 samples. Appends that would exceed the
// capacity evict the oldest samples.
type Buffer struct {
	mu      sync.Mutex
	samples []float32
	max     int

	appended  int64
	played    int64
	padded    int64
	underruns int64
	overflow  int64
}

// NewBuffer returns a Buffer holding at most maxSamples samples. A
// non-positive value selects DefaultMaxSamples.
func NewBuffer(maxSamples int) *Buffer {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Buffer{max: maxSamples}
}

// Append adds samples to the tail of the buffer.
func (b *Buffer) Append(samples []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appended += int64(len(samples))
	if len(samples) > b.max {
		b.overflow += int64(len(samples) - b.max)
		samples = samples[len(samples)-b.max:]
	}
	if over := len(b.samples) + len(samples) - b.max; over > 0 {
		b.samples = b.samples[over:]
		b.overflow += int64(over)
	}
	b.samples = append(b.samples, samples...)
}

// AppendPCM decodes a little-endian float32 payload and appends it. It
// returns the number of samples appended.
func (b *Buffer) AppendPCM(payload []byte) (int, error) {
	if len(payload)%4 != 0 {
		return 0, fmt.Errorf("append %d bytes: %w", len(payload), ErrMisaligned)
	}
	samples := wire.DecodePCM(payload)
	b.Append(samples)
	return len(samples), nil
}

// Fill copies up to len(out) samples from the head of the buffer into out
// and zero-fills the remainder. It returns the number of real samples.
func (b *Buffer) Fill(out []float32) int {
	b.mu.Lock()
	n := copy(out, b.samples)
	b.samples = b.samples[n:]
	b.played += int64(n)
	if short := len(out) - n; short > 0 {
		b.padded += int64(short)
		if b.appended > 0 {
			b.underruns++
		}
	}
	b.mu.Unlock()

	clear(out[n:])
	return n
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Stats returns a snapshot of buffer counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Buffered:  len(b.samples),
		Capacity:  b.max,
		Appended:  b.appended,
		Played:    b.played,
		Padded:    b.padded,
		Underruns: b.underruns,
		Overflow:  b.overflow,
	}
}
