package wire

import (
	"encoding/binary"
	"errors"
	"strings"
	"unicode/utf8"
)

// frame is the outcome of decoding a single frame at the head of a buffer.
// A zero Kind with a nil error is a well-formed frame with no consumer.
type frame struct {
	msg     Message
	n       int
	discard int
}

type frameFunc func(b []byte) (frame, error)

// run applies decode repeatedly until the buffer is exhausted or ends
// inside a frame.
func run(buf []byte, decode frameFunc) Result {
	var res Result
	off := 0
	for off < len(buf) {
		f, err := decode(buf[off:])
		if errors.Is(err, errIncomplete) {
			break
		}
		if err != nil {
			var me *MalformedError
			if errors.As(err, &me) {
				me.Offset += off
			}
			res.Skipped = append(res.Skipped, err)
		} else if f.msg.Kind != 0 {
			res.Messages = append(res.Messages, f.msg)
		} else {
			res.Ignored++
		}
		off += f.n
		if f.discard > 0 {
			res.Discard = f.discard
			break
		}
	}
	res.Consumed = off
	return res
}

// ParseMixed demultiplexes the control/video/blob stream.
func ParseMixed(buf []byte) Result {
	return run(buf, decodeMixed)
}

// ParseStereo demultiplexes the tagged stereo stream.
func ParseStereo(buf []byte) Result {
	return run(buf, decodeStereo)
}

// ParseAudio demultiplexes the PCM/file audio stream.
func ParseAudio(buf []byte) Result {
	return run(buf, decodeAudio)
}

func decodeMixed(b []byte) (frame, error) {
	if len(b) < len(Delimiter) && strings.HasPrefix(Delimiter, string(b)) {
		return frame{}, errIncomplete
	}
	if !hasDelimiter(b) {
		return decodeVideo(b)
	}

	head := len(Delimiter) + flagSize + lengthSize
	if len(b) < head {
		return frame{}, errIncomplete
	}
	cmdLen := int(binary.BigEndian.Uint32(b[len(Delimiter)+flagSize:]))
	end := head + cmdLen + len(Delimiter)
	if len(b) < end {
		return frame{}, errIncomplete
	}

	if string(b[head+cmdLen:end]) != Delimiter {
		return frame{n: end}, &MalformedError{
			Kind:   MalformedDelimiter,
			Length: end,
			Reason: "trailing delimiter mismatch",
		}
	}
	cmd := b[head : head+cmdLen]
	if !utf8.Valid(cmd) {
		return frame{n: end}, &MalformedError{
			Kind:   MalformedCommand,
			Length: end,
			Reason: "command is not valid UTF-8",
		}
	}
	if string(cmd) != ImageCommand {
		return frame{
			msg: Message{Kind: KindControl, Command: string(cmd)},
			n:   end,
		}, nil
	}

	f, err := decodeSized(b[end:], MaxBlobSize, "image blob")
	f.n += end
	if f.discard > 0 || err != nil {
		var me *MalformedError
		if errors.As(err, &me) {
			me.Offset += end
		}
		return f, err
	}
	f.msg.Kind = KindBlob
	f.msg.Command = ImageCommand
	return f, nil
}

func decodeVideo(b []byte) (frame, error) {
	if len(b) < lengthSize {
		return frame{}, errIncomplete
	}
	n := lengthSize + int(binary.BigEndian.Uint32(b))
	if len(b) < n {
		return frame{}, errIncomplete
	}
	return frame{
		msg: Message{Kind: KindVideoFrame, Payload: clone(b[lengthSize:n])},
		n:   n,
	}, nil
}

// decodeSized reads a u32 length and payload, rejecting lengths above max.
// An oversize frame is skipped whole when it is buffered, otherwise the
// buffer is consumed and the remainder reported as discard.
func decodeSized(b []byte, max int, what string) (frame, error) {
	if len(b) < lengthSize {
		return frame{}, errIncomplete
	}
	size := int(binary.BigEndian.Uint32(b))
	n := lengthSize + size
	if size > max {
		err := &MalformedError{Kind: MalformedOversize, Length: size, Reason: what + " exceeds size limit"}
		if len(b) >= n {
			return frame{n: n}, err
		}
		return frame{n: len(b), discard: n - len(b)}, err
	}
	if len(b) < n {
		return frame{}, errIncomplete
	}
	return frame{msg: Message{Payload: clone(b[lengthSize:n])}, n: n}, nil
}

func decodeStereo(b []byte) (frame, error) {
	if len(b) < lengthSize {
		return frame{}, errIncomplete
	}
	size := int(binary.BigEndian.Uint32(b))
	if size == 0 {
		return frame{n: lengthSize}, &MalformedError{
			Kind:   MalformedLength,
			Reason: "zero-length stereo frame has no tag",
		}
	}
	n := lengthSize + size
	if len(b) < n {
		return frame{}, errIncomplete
	}
	tag := b[lengthSize]
	if tag != TagImage {
		return frame{n: n}, nil
	}
	return frame{
		msg: Message{Kind: KindStereoFrame, Tag: tag, Payload: clone(b[lengthSize+flagSize : n])},
		n:   n,
	}, nil
}

func decodeAudio(b []byte) (frame, error) {
	if len(b) < lengthSize {
		return frame{}, errIncomplete
	}
	if binary.BigEndian.Uint32(b) == 0 {
		f, err := decodeSized(b[lengthSize:], MaxBlobSize, "audio file")
		f.n += lengthSize
		if err != nil {
			var me *MalformedError
			if errors.As(err, &me) {
				me.Offset += lengthSize
			}
			return f, err
		}
		f.msg.Kind = KindAudioFile
		return f, nil
	}

	f, err := decodeSized(b, MaxBlobSize, "pcm chunk")
	if err != nil || f.discard > 0 {
		return f, err
	}
	if len(f.msg.Payload)%4 != 0 {
		return frame{n: f.n}, &MalformedError{
			Kind:   MalformedPCM,
			Length: len(f.msg.Payload),
			Reason: "pcm length is not a multiple of 4",
		}
	}
	f.msg.Kind = KindAudioPCM
	return f, nil
}

func hasDelimiter(b []byte) bool {
	return len(b) >= len(Delimiter) && string(b[:len(Delimiter)]) == Delimiter
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
