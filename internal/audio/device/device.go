// Package device plays an audio.Buffer on the default output device.
package device

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hajimehoshi/oto/v2"

	"github.com/zsiec/rovlink/internal/audio"
	"github.com/zsiec/rovlink/internal/media"
)

// Config selects the playback format.
type Config struct {
	SampleRate  int
	Channels    int
	BlockFrames int
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = media.SampleRate
	}
	if c.Channels <= 0 {
		c.Channels = media.Channels
	}
	if c.BlockFrames <= 0 {
		c.BlockFrames = media.PlaybackBlockFrames
	}
}

type player interface {
	Play()
	Close() error
}

// Player streams a Source to the output device until its context ends.
type Player struct {
	log    *slog.Logger
	player player
}

// Open initialises the output device and starts pulling from src. The
// device pulls blocks of BlockFrames samples; missing samples play as
// silence.
func Open(src audio.Source, cfg Config, log *slog.Logger) (*Player, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg.applyDefaults()

	otoCtx, ready, err := oto.NewContext(cfg.SampleRate, cfg.Channels, oto.FormatSignedInt16LE)
	if err != nil {
		return nil, fmt.Errorf("open audio output: %w", err)
	}
	<-ready

	p := otoCtx.NewPlayer(audio.NewInt16Reader(src, cfg.BlockFrames*cfg.Channels))
	if sizer, ok := p.(interface{ SetBufferSize(int) }); ok {
		sizer.SetBufferSize(cfg.BlockFrames * cfg.Channels * audio.Int16Size)
	}
	p.Play()

	log = log.With("component", "audio-device")
	log.Info("audio output started", "sample_rate", cfg.SampleRate, "channels", cfg.Channels, "block_frames", cfg.BlockFrames)
	return &Player{log: log, player: p}, nil
}

// Run blocks until ctx is done, then stops playback.
func (p *Player) Run(ctx context.Context) error {
	<-ctx.Done()
	if err := p.player.Close(); err != nil {
		return fmt.Errorf("close audio output: %w", err)
	}
	p.log.Info("audio output stopped")
	return nil
}
