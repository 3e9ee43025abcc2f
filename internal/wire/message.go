package wire

import "fmt"

// Delimiter brackets every control frame on the mixed stream.
const Delimiter = "|PROTOCOL_SWITCH|"

const (
	// MaxBlobSize caps image blobs on the mixed stream and both payload
	// forms on the audio stream.
	MaxBlobSize = 10 * 1024 * 1024

	// ImageCommand announces a length-prefixed blob after the control frame.
	ImageCommand = "image"

	// TagImage marks a JPEG payload on the stereo stream.
	TagImage byte = 0x01

	lengthSize = 4
	flagSize   = 1
)

// Kind identifies the semantic type of a demultiplexed message.
type Kind uint8

const (
	KindControl Kind = iota + 1
	KindVideoFrame
	KindBlob
	KindStereoFrame
	KindAudioPCM
	KindAudioFile
)

func (k Kind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindVideoFrame:
		return "video"
	case KindBlob:
		return "blob"
	case KindStereoFrame:
		return "stereo"
	case KindAudioPCM:
		return "pcm"
	case KindAudioFile:
		return "file"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is one demultiplexed unit. Payload never aliases the buffer it
// was parsed from.
type Message struct {
	Kind    Kind
	Command string
	Tag     byte
	Payload []byte
}

// Result is the outcome of parsing one accumulation buffer.
type Result struct {
	Messages []Message

	// Skipped holds one *MalformedError per frame that was dropped.
	Skipped []error

	// Consumed is the number of leading bytes fully accounted for.
	Consumed int

	// Discard is the number of bytes still owed by a rejected frame that
	// extends past the buffer. Callers drop that many bytes from the
	// stream before parsing again.
	Discard int

	// Ignored counts well-formed frames with no consumer, such as stereo
	// frames carrying an unknown tag.
	Ignored int
}

// Rest returns the unconsumed remainder of buf.
func Rest(buf []byte, res Result) []byte {
	return buf[res.Consumed:]
}

// Parser is the signature shared by ParseMixed, ParseStereo and ParseAudio.
type Parser func(buf []byte) Result
