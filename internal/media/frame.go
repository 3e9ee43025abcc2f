// Package media defines the frame types that flow from the ingest
// demultiplexers to the preview consumers, and the JPEG helpers shared by
// the decode, rectify and persist stages.
package media

import (
	"image"
	"time"
)

// Buffer sizes that decouple frame production from consumption.
const (
	// LiveQueueSize bounds the mixed-stream preview queue. When full the
	// newest frame is dropped.
	LiveQueueSize = 100

	// SampleRate and Channels describe the audio playback format.
	SampleRate = 44100
	Channels   = 1

	// PlaybackBlockFrames is the number of samples pulled per playback
	// callback.
	PlaybackBlockFrames = 1024
)

// Frame is one decoded video picture ready for display.
type Frame struct {
	Seq        uint64
	Image      image.Image
	ReceivedAt time.Time
	Source     string
}

// Bounds returns the frame's pixel bounds, or the empty rectangle for a nil
// image.
func (f *Frame) Bounds() image.Rectangle {
	if f == nil || f.Image == nil {
		return image.Rectangle{}
	}
	return f.Image.Bounds()
}
