package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	"github.com/zsiec/rovlink/internal/media"
	"github.com/zsiec/rovlink/internal/wire"
)

const (
	videoWidth, videoHeight   = 640, 360
	stereoWidth, stereoHeight = 2560, 720
	pcmChunk                  = 1024
	toneHz                    = 440
)

type sourceOptions struct {
	Mode    string
	File    string
	Command string
}

// source produces successive wire frames for one mode.
type source struct {
	next  func(n int) []byte
	count int
}

// Next returns the next framed payload.
func (s *source) Next() []byte {
	b := s.next(s.count)
	s.count++
	return b
}

func newSource(opts sourceOptions) (*source, error) {
	var file []byte
	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, err
		}
		file = data
	}

	switch opts.Mode {
	case "video", "image", "stereo":
		w, h := videoWidth, videoHeight
		if opts.Mode == "stereo" {
			w, h = stereoWidth, stereoHeight
		}
		frame := func(n int) []byte {
			if file != nil {
				return file
			}
			return gradientJPEG(w, h, n)
		}
		switch opts.Mode {
		case "video":
			return &source{next: func(n int) []byte { return wire.AppendVideoFrame(nil, frame(n)) }}, nil
		case "image":
			return &source{next: func(n int) []byte { return wire.AppendImageCommand(nil, frame(n)) }}, nil
		default:
			return &source{next: func(n int) []byte { return wire.AppendStereoFrame(nil, wire.TagImage, frame(n)) }}, nil
		}
	case "control":
		return &source{next: func(int) []byte { return wire.AppendControl(nil, opts.Command) }}, nil
	case "pcm":
		return &source{next: func(n int) []byte { return wire.AppendPCM(nil, sine(n*pcmChunk, pcmChunk)) }}, nil
	case "wav":
		if file == nil {
			file = encodeWAV(sine(0, media.SampleRate))
		}
		return &source{next: func(int) []byte { return wire.AppendAudioFile(nil, file) }}, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", opts.Mode)
	}
}

// gradientJPEG renders a moving diagonal gradient so successive frames
// differ.
func gradientJPEG(w, h, n int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := uint8((x + y + n*8) % 256)
			img.SetRGBA(x, y, color.RGBA{v, uint8(y * 255 / h), 255 - v, 255})
		}
	}
	var buf bytes.Buffer
	if err := media.EncodeJPEG(&buf, img, media.QualityPreview); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// sine returns n samples of a test tone starting at sample offset.
func sine(offset, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		t := float64(offset+i) / media.SampleRate
		out[i] = float32(0.5 * math.Sin(2*math.Pi*toneHz*t))
	}
	return out
}

// encodeWAV wraps samples in a 16-bit mono RIFF container.
func encodeWAV(samples []float32) []byte {
	const bitsPerSample = 16
	dataLen := len(samples) * bitsPerSample / 8
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(media.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(media.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(media.SampleRate*media.Channels*bitsPerSample/8))
	binary.Write(&buf, binary.LittleEndian, uint16(media.Channels*bitsPerSample/8))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	for _, s := range samples {
		binary.Write(&buf, binary.LittleEndian, int16(s*math.MaxInt16))
	}
	return buf.Bytes()
}
