package audio

import (
	"encoding/binary"
	"io"
	"math"
)

// Int16Size is the width of one sample produced by Int16Reader.
const Int16Size = 2

// Source supplies samples, zero-padding when it runs dry. *Buffer
// implements it.
type Source interface {
	Fill(out []float32) int
}

type int16Reader struct {
	src     Source
	scratch []float32
}

// NewInt16Reader returns a reader producing signed 16-bit little-endian
// samples pulled from src in blocks of at most block samples. Every Read
// fills p completely, padding with silence.
func NewInt16Reader(src Source, block int) io.Reader {
	if block <= 0 {
		block = 1024
	}
	return &int16Reader{src: src, scratch: make([]float32, block)}
}

func (r *int16Reader) Read(p []byte) (int, error) {
	frames := len(p) / Int16Size
	for done := 0; done < frames; {
		block := r.scratch[:min(frames-done, len(r.scratch))]
		r.src.Fill(block)
		for i, s := range block {
			binary.LittleEndian.PutUint16(p[(done+i)*Int16Size:], uint16(toInt16(s)))
		}
		done += len(block)
	}
	clear(p[frames*Int16Size:])
	return len(p), nil
}

func toInt16(s float32) int16 {
	switch {
	case s >= 1:
		return math.MaxInt16
	case s <= -1:
		return -math.MaxInt16
	default:
		return int16(s * math.MaxInt16)
	}
}
