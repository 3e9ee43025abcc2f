package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestInt16Reader_ConvertsAndPads(t *testing.T) {
	t.Parallel()

	buf := NewBuffer(0)
	buf.Append([]float32{0.5, -1, 2})

	r := NewInt16Reader(buf, 2)
	p := make([]byte, 11)
	for i := range p {
		p[i] = 0xff
	}
	n, err := r.Read(p)
	if err != nil || n != len(p) {
		t.Fatalf("Read = %d, %v", n, err)
	}

	want := []int16{16383, -math.MaxInt16, math.MaxInt16, 0, 0}
	for i, w := range want {
		if got := int16(binary.LittleEndian.Uint16(p[i*2:])); got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
	if p[10] != 0 {
		t.Errorf("trailing byte = %#x, want 0", p[10])
	}
	if buf.Len() != 0 {
		t.Errorf("buffer still holds %d samples", buf.Len())
	}
}
