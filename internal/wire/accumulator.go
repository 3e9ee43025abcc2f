package wire

// Accumulator owns the unconsumed tail of a byte stream and the count of
// bytes still owed by a rejected oversize frame. It is not safe for
// concurrent use; each connection owns one.
type Accumulator struct {
	parse     Parser
	buf       []byte
	discard   int
	discarded int64
}

// NewAccumulator returns an Accumulator that demultiplexes with parse.
func NewAccumulator(parse Parser) *Accumulator {
	return &Accumulator{parse: parse}
}

// Feed appends data to the buffered remainder and parses as far as
// possible. The returned Result's Consumed and Discard fields describe the
// internal buffer and are informational.
func (a *Accumulator) Feed(data []byte) Result {
	if a.discard > 0 {
		k := min(a.discard, len(data))
		a.discard -= k
		a.discarded += int64(k)
		data = data[k:]
	}
	if len(data) == 0 {
		return Result{}
	}

	a.buf = append(a.buf, data...)
	res := a.parse(a.buf)
	n := copy(a.buf, a.buf[res.Consumed:])
	a.buf = a.buf[:n]
	a.discard += res.Discard
	return res
}

// Buffered returns the number of bytes awaiting a complete frame.
func (a *Accumulator) Buffered() int {
	return len(a.buf)
}

// Pending returns the number of bytes that will be dropped from upcoming
// input.
func (a *Accumulator) Pending() int {
	return a.discard
}

// Discarded returns the total number of bytes dropped after a parse.
func (a *Accumulator) Discarded() int64 {
	return a.discarded
}

// Reset drops buffered bytes and any pending discard.
func (a *Accumulator) Reset() {
	a.buf = a.buf[:0]
	a.discard = 0
}
