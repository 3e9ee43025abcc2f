package wire

import (
	"encoding/binary"
	"math"
)

// AppendControl appends a control frame carrying cmd.
func AppendControl(dst []byte, cmd string) []byte {
	dst = append(dst, Delimiter...)
	dst = append(dst, 0)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(cmd)))
	dst = append(dst, cmd...)
	return append(dst, Delimiter...)
}

// AppendImageCommand appends an image control frame followed by its blob.
func AppendImageCommand(dst, blob []byte) []byte {
	dst = AppendControl(dst, ImageCommand)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(blob)))
	return append(dst, blob...)
}

// AppendVideoFrame appends a length-prefixed video frame.
func AppendVideoFrame(dst, jpeg []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(jpeg)))
	return append(dst, jpeg...)
}

// AppendStereoFrame appends a tagged stereo frame. The length covers the
// tag byte.
func AppendStereoFrame(dst []byte, tag byte, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)+flagSize))
	dst = append(dst, tag)
	return append(dst, payload...)
}

// AppendPCM appends a PCM chunk of little-endian float32 samples. An empty
// chunk is not representable since a zero length announces a file.
func AppendPCM(dst []byte, samples []float32) []byte {
	if len(samples) == 0 {
		return dst
	}
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(samples)*4))
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(s))
	}
	return dst
}

// AppendAudioFile appends a file transfer frame.
func AppendAudioFile(dst, data []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, 0)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(data)))
	return append(dst, data...)
}

// DecodePCM converts a PCM payload into samples, ignoring a trailing
// partial sample.
func DecodePCM(payload []byte) []float32 {
	out := make([]float32, len(payload)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
	}
	return out
}
