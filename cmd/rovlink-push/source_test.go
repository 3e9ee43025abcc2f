package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/zsiec/rovlink/internal/media"
	"github.com/zsiec/rovlink/internal/wire"
)

func TestNewSource_FramesParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode  string
		parse wire.Parser
		kind  wire.Kind
	}{
		{"video", wire.ParseMixed, wire.KindVideoFrame},
		{"image", wire.ParseMixed, wire.KindBlob},
		{"control", wire.ParseMixed, wire.KindControl},
		{"stereo", wire.ParseStereo, wire.KindStereoFrame},
		{"pcm", wire.ParseAudio, wire.KindAudioPCM},
		{"wav", wire.ParseAudio, wire.KindAudioFile},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			t.Parallel()

			src, err := newSource(sourceOptions{Mode: tt.mode, Command: "ping"})
			if err != nil {
				t.Fatalf("newSource: %v", err)
			}
			frame := src.Next()
			res := tt.parse(frame)
			if res.Consumed != len(frame) || len(res.Skipped) != 0 {
				t.Fatalf("consumed %d of %d, skipped %v", res.Consumed, len(frame), res.Skipped)
			}
			if len(res.Messages) != 1 || res.Messages[0].Kind != tt.kind {
				t.Fatalf("messages: %+v", res.Messages)
			}
		})
	}
}

func TestNewSource_UnknownMode(t *testing.T) {
	t.Parallel()

	if _, err := newSource(sourceOptions{Mode: "thermal"}); err == nil {
		t.Error("expected error")
	}
}

func TestGradientJPEG_Decodes(t *testing.T) {
	t.Parallel()

	img, err := media.DecodeJPEG(gradientJPEG(64, 32, 3))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 32 {
		t.Errorf("bounds: %v", b)
	}
}

func TestEncodeWAV_Header(t *testing.T) {
	t.Parallel()

	wav := encodeWAV(sine(0, 100))
	if len(wav) != 44+200 {
		t.Fatalf("length: got %d, want %d", len(wav), 244)
	}
	if string(wav[:4]) != "RIFF" || string(wav[8:16]) != "WAVEfmt " || string(wav[36:40]) != "data" {
		t.Errorf("chunk ids: %q", wav[:40])
	}
	if got := binary.LittleEndian.Uint32(wav[24:]); got != media.SampleRate {
		t.Errorf("sample rate: got %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:]); got != 200 {
		t.Errorf("data length: got %d", got)
	}
}

func TestPushLoop_Count(t *testing.T) {
	t.Parallel()

	src, err := newSource(sourceOptions{Mode: "pcm"})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	sent, total, err := pushLoop(context.Background(), &buf, src, 3, 0)
	if err != nil {
		t.Fatalf("pushLoop: %v", err)
	}
	if sent != 3 || total != int64(buf.Len()) {
		t.Errorf("sent %d total %d buffered %d", sent, total, buf.Len())
	}

	res := wire.ParseAudio(buf.Bytes())
	if len(res.Messages) != 3 {
		t.Fatalf("messages: got %d, want 3", len(res.Messages))
	}
	// Consecutive chunks continue the tone rather than restarting it.
	first := wire.DecodePCM(res.Messages[0].Payload)
	second := wire.DecodePCM(res.Messages[1].Payload)
	if want := sine(pcmChunk, 1)[0]; second[0] != want {
		t.Errorf("second chunk starts at %v, want %v", second[0], want)
	}
	if first[0] != 0 {
		t.Errorf("first sample: got %v, want 0", first[0])
	}
}

func TestPushLoop_Cancelled(t *testing.T) {
	t.Parallel()

	src, _ := newSource(sourceOptions{Mode: "control", Command: "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sent, _, err := pushLoop(ctx, &bytes.Buffer{}, src, 0, 0)
	if err == nil || sent != 0 {
		t.Errorf("sent %d err %v", sent, err)
	}
}
