// Package wire implements the framed binary protocols spoken by the ROV
// uplinks: the mixed control/video/blob stream, the tagged stereo stream
// and the PCM/file audio stream.
//
// Parsers are pure functions over an accumulation buffer. Each call
// returns the complete messages found, the malformed frames that were
// skipped and the number of bytes consumed; callers retain the unconsumed
// remainder and prepend it to the next read. Splitting the same byte
// sequence into chunks differently never changes the messages produced.
package wire
