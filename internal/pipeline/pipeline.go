// Package pipeline binds each uplink protocol's demultiplexer to its
// consumers: decoded video to the live queue, stereo frames to the frame
// cache, PCM to the playback buffer and blobs to the persist pool.
package pipeline

import (
	"context"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zsiec/rovlink/internal/ingest"
	"github.com/zsiec/rovlink/internal/media"
	"github.com/zsiec/rovlink/internal/persist"
	"github.com/zsiec/rovlink/internal/wire"
)

// Submitter accepts persistence jobs without blocking.
type Submitter interface {
	Submit(j persist.Job) bool
}

// FrameSink is the live preview queue.
type FrameSink interface {
	TryPush(f *media.Frame) bool
}

// FrameStore is the latest-frame cache.
type FrameStore interface {
	Store(img *image.RGBA) uint64
}

// SampleSink is the playback buffer.
type SampleSink interface {
	AppendPCM(payload []byte) (int, error)
}

// Stats counts dispatch outcomes for one protocol.
type Stats struct {
	Frames       int64 `json:"frames"`
	FramesQueued int64 `json:"framesQueued"`
	FramesDrop   int64 `json:"framesDropped"`
	DecodeErrors int64 `json:"decodeErrors"`
	Controls     int64 `json:"controls"`
	Jobs         int64 `json:"jobs"`
	JobsRejected int64 `json:"jobsRejected"`
	Samples      int64 `json:"samples"`
	Malformed    int64 `json:"malformed"`
}

type counters struct {
	frames       atomic.Int64
	framesQueued atomic.Int64
	framesDrop   atomic.Int64
	decodeErrors atomic.Int64
	controls     atomic.Int64
	jobs         atomic.Int64
	jobsRejected atomic.Int64
	samples      atomic.Int64
	malformed    atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Frames:       c.frames.Load(),
		FramesQueued: c.framesQueued.Load(),
		FramesDrop:   c.framesDrop.Load(),
		DecodeErrors: c.decodeErrors.Load(),
		Controls:     c.controls.Load(),
		Jobs:         c.jobs.Load(),
		JobsRejected: c.jobsRejected.Load(),
		Samples:      c.samples.Load(),
		Malformed:    c.malformed.Load(),
	}
}

func (c *counters) submit(log *slog.Logger, pool Submitter, j persist.Job) {
	if pool.Submit(j) {
		c.jobs.Add(1)
		return
	}
	c.jobsRejected.Add(1)
	log.Warn("persist queue full, artifact dropped", "category", j.Category, "seq", j.Seq, "bytes", len(j.Data))
}

func (c *counters) skipped(log *slog.Logger, conn *ingest.Conn, err error) {
	c.malformed.Add(1)
	log.Warn("malformed frame skipped", "conn", conn.ID, "error", err)
}

// Mixed handles the control/video/blob stream.
type Mixed struct {
	log   *slog.Logger
	live  FrameSink
	pool  Submitter
	seq   atomic.Uint64
	stats counters
}

// NewMixed returns the mixed-stream protocol.
func NewMixed(live FrameSink, pool Submitter, log *slog.Logger) *Mixed {
	if log == nil {
		log = slog.Default()
	}
	return &Mixed{log: log.With("component", "mixed"), live: live, pool: pool}
}

func (m *Mixed) Name() string                      { return "mixed" }
func (m *Mixed) Parse(buf []byte) wire.Result      { return wire.ParseMixed(buf) }
func (m *Mixed) Skipped(c *ingest.Conn, err error) { m.stats.skipped(m.log, c, err) }

// Dispatch queues decoded video, persists image blobs and logs control
// commands.
func (m *Mixed) Dispatch(_ context.Context, conn *ingest.Conn, msg wire.Message) {
	switch msg.Kind {
	case wire.KindVideoFrame:
		seq := m.stats.frames.Add(1)
		img, err := media.DecodeJPEG(msg.Payload)
		if err != nil {
			m.stats.decodeErrors.Add(1)
			m.log.Debug("video frame dropped", "conn", conn.ID, "bytes", len(msg.Payload), "error", err)
			return
		}
		f := &media.Frame{Seq: uint64(seq), Image: img, ReceivedAt: time.Now(), Source: conn.ID}
		if m.live.TryPush(f) {
			m.stats.framesQueued.Add(1)
		} else {
			m.stats.framesDrop.Add(1)
		}
	case wire.KindBlob:
		m.stats.submit(m.log, m.pool, persist.Job{
			Kind:     persist.JobImage,
			Category: persist.CategoryImage,
			Prefix:   "image_",
			Ext:      ".jpg",
			Seq:      m.seq.Add(1),
			Quality:  media.QualityArchive,
			Data:     msg.Payload,
		})
	case wire.KindControl:
		m.stats.controls.Add(1)
		m.log.Info("control command", "conn", conn.ID, "command", msg.Command)
	}
}

// Stats returns dispatch counters.
func (m *Mixed) Stats() Stats { return m.stats.snapshot() }

// Stereo handles the tagged stereo stream.
type Stereo struct {
	log   *slog.Logger
	cache FrameStore
	stats counters
}

// NewStereo returns the stereo-stream protocol.
func NewStereo(cache FrameStore, log *slog.Logger) *Stereo {
	if log == nil {
		log = slog.Default()
	}
	return &Stereo{log: log.With("component", "stereo-ingest"), cache: cache}
}

func (s *Stereo) Name() string                      { return "stereo" }
func (s *Stereo) Parse(buf []byte) wire.Result      { return wire.ParseStereo(buf) }
func (s *Stereo) Skipped(c *ingest.Conn, err error) { s.stats.skipped(s.log, c, err) }

// Dispatch decodes image frames into the cache. Undecodable payloads leave
// the cached frame unchanged.
func (s *Stereo) Dispatch(_ context.Context, conn *ingest.Conn, msg wire.Message) {
	if msg.Kind != wire.KindStereoFrame {
		return
	}
	s.stats.frames.Add(1)
	img, err := media.DecodeJPEG(msg.Payload)
	if err != nil {
		s.stats.decodeErrors.Add(1)
		s.log.Debug("stereo frame dropped", "conn", conn.ID, "bytes", len(msg.Payload), "error", err)
		return
	}
	s.cache.Store(media.ToRGBA(img))
	s.stats.framesQueued.Add(1)
}

// Stats returns dispatch counters.
func (s *Stereo) Stats() Stats { return s.stats.snapshot() }

// Audio handles the PCM/file audio stream.
type Audio struct {
	log     *slog.Logger
	samples SampleSink
	pool    Submitter
	seq     atomic.Uint64
	stats   counters
}

// NewAudio returns the audio-stream protocol.
func NewAudio(samples SampleSink, pool Submitter, log *slog.Logger) *Audio {
	if log == nil {
		log = slog.Default()
	}
	return &Audio{log: log.With("component", "audio-ingest"), samples: samples, pool: pool}
}

func (a *Audio) Name() string                      { return "audio" }
func (a *Audio) Parse(buf []byte) wire.Result      { return wire.ParseAudio(buf) }
func (a *Audio) Skipped(c *ingest.Conn, err error) { a.stats.skipped(a.log, c, err) }

// Dispatch appends PCM to the playback buffer and persists files.
func (a *Audio) Dispatch(_ context.Context, conn *ingest.Conn, msg wire.Message) {
	switch msg.Kind {
	case wire.KindAudioPCM:
		n, err := a.samples.AppendPCM(msg.Payload)
		if err != nil {
			a.stats.decodeErrors.Add(1)
			a.log.Warn("pcm chunk dropped", "conn", conn.ID, "error", err)
			return
		}
		a.stats.samples.Add(int64(n))
	case wire.KindAudioFile:
		a.log.Info("audio file received", "conn", conn.ID, "bytes", len(msg.Payload))
		a.stats.submit(a.log, a.pool, persist.Job{
			Kind:     persist.JobRaw,
			Category: persist.CategoryAudio,
			Prefix:   "audio_",
			Ext:      ".wav",
			Seq:      a.seq.Add(1),
			Data:     msg.Payload,
		})
	}
}

// Stats returns dispatch counters.
func (a *Audio) Stats() Stats { return a.stats.snapshot() }
