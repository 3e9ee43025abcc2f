package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/rovlink/internal/api"
	"github.com/zsiec/rovlink/internal/audio"
	"github.com/zsiec/rovlink/internal/audio/device"
	"github.com/zsiec/rovlink/internal/certs"
	"github.com/zsiec/rovlink/internal/config"
	"github.com/zsiec/rovlink/internal/framecache"
	"github.com/zsiec/rovlink/internal/ingest"
	quicingest "github.com/zsiec/rovlink/internal/ingest/quic"
	srtingest "github.com/zsiec/rovlink/internal/ingest/srt"
	"github.com/zsiec/rovlink/internal/livequeue"
	"github.com/zsiec/rovlink/internal/media"
	"github.com/zsiec/rovlink/internal/notify"
	"github.com/zsiec/rovlink/internal/persist"
	"github.com/zsiec/rovlink/internal/pipeline"
	"github.com/zsiec/rovlink/internal/preview"
	"github.com/zsiec/rovlink/internal/stereo"
)

var version = "dev"

const mqttConnectTimeout = 5 * time.Second

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.FromEnv(os.Getenv)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Debug && level != slog.LevelDebug {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}

	slog.Info("rovlink starting",
		"version", version,
		"modes", cfg.Modes,
		"transport", cfg.Transport,
		"data_dir", cfg.DataDir,
		"api", cfg.APIAddr,
	)

	if err := a.run(ctx, cancel); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("rovlink stopped")
}

// app holds every long-lived component. Listeners are bound in newApp so
// that bind failures are reported before anything is served.
type app struct {
	cfg      *config.Config
	registry *ingest.Registry
	store    *persist.Store
	pool     *persist.Pool
	mqtt     *notify.MQTT
	hub      *preview.Hub
	renderer preview.Renderer
	closeWin func()

	mixed      *pipeline.Mixed
	mixedSrv   *ingest.Server
	live       *livequeue.Queue
	stereo     *pipeline.Stereo
	stereoSrv  *ingest.Server
	cache      *framecache.Cache
	processor  *stereo.Processor
	audio      *pipeline.Audio
	audioSrv   *ingest.Server
	samples    *audio.Buffer
	player     *device.Player
	listenCert *certs.CertInfo
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, registry: ingest.NewRegistry()}

	var notifier persist.Notifier = notify.Nop{}
	if cfg.MQTT.Broker != "" {
		a.mqtt = notify.NewMQTT(notify.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		}, nil)
		connectCtx, connectCancel := context.WithTimeout(ctx, mqttConnectTimeout)
		if err := a.mqtt.Connect(connectCtx); err != nil {
			slog.Warn("mqtt unavailable, notifications will retry in background", "error", err)
		}
		connectCancel()
		notifier = a.mqtt
	}

	store, err := persist.NewStore(cfg.DataDir, notifier, nil)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.pool = persist.NewPool(store, persist.PoolOptions{
		Workers:   cfg.Persist.Workers,
		QueueSize: cfg.Persist.QueueSize,
	}, nil)

	a.hub = preview.NewHub(nil)
	a.renderer, a.closeWin = newRenderer(ctx, a.hub)

	if cfg.Transport == config.TransportQUIC {
		cert, err := certs.Generate(certs.DefaultValidity)
		if err != nil {
			return nil, fmt.Errorf("generate certificate: %w", err)
		}
		slog.Info("certificate generated",
			"fingerprint", cert.FingerprintBase64(),
			"expires", cert.NotAfter.Format(time.RFC3339),
		)
		a.listenCert = cert
	}

	if cfg.Enabled(config.ModeMixed) {
		ln, err := a.listen(cfg.MixedAddr)
		if err != nil {
			return nil, fmt.Errorf("mixed listener: %w", err)
		}
		a.live = livequeue.New(media.LiveQueueSize)
		a.mixed = pipeline.NewMixed(a.live, a.pool, nil)
		a.mixedSrv = ingest.NewServer(ln, a.mixed, a.registry, ingest.Options{Once: true}, nil)
	}

	if cfg.Enabled(config.ModeStereo) {
		left, err := stereo.LoadCalibration(filepath.Join(cfg.CalibrationDir, "left.yaml"))
		if err != nil {
			return nil, err
		}
		right, err := stereo.LoadCalibration(filepath.Join(cfg.CalibrationDir, "right.yaml"))
		if err != nil {
			return nil, err
		}
		a.cache = &framecache.Cache{}
		a.processor, err = stereo.NewProcessor(a.cache, store, stereo.Options{
			Left:    left,
			Right:   right,
			SplitX:  cfg.Stereo.SplitX,
			Quality: media.QualityStereo,
		}, nil)
		if err != nil {
			return nil, err
		}
		ln, err := a.listen(cfg.StereoAddr)
		if err != nil {
			return nil, fmt.Errorf("stereo listener: %w", err)
		}
		a.stereo = pipeline.NewStereo(a.cache, nil)
		a.stereoSrv = ingest.NewServer(ln, a.stereo, a.registry, ingest.Options{}, nil)
	}

	if cfg.Enabled(config.ModeAudio) {
		ln, err := a.listen(cfg.AudioAddr)
		if err != nil {
			return nil, fmt.Errorf("audio listener: %w", err)
		}
		a.samples = audio.NewBuffer(cfg.Audio.MaxSeconds * media.SampleRate * media.Channels)
		a.audio = pipeline.NewAudio(a.samples, a.pool, nil)
		a.audioSrv = ingest.NewServer(ln, a.audio, a.registry, ingest.Options{MaxConns: 1}, nil)

		if cfg.Audio.Device {
			a.player, err = device.Open(a.samples, device.Config{}, nil)
			if err != nil {
				slog.Warn("audio playback disabled", "error", err)
			}
		}
	}
	return a, nil
}

func (a *app) listen(addr string) (ingest.Listener, error) {
	switch a.cfg.Transport {
	case config.TransportSRT:
		return srtingest.Listen(addr, nil)
	case config.TransportQUIC:
		return quicingest.Listen(addr, a.listenCert, nil)
	default:
		return ingest.ListenTCP(addr)
	}
}

func (a *app) run(ctx context.Context, cancel context.CancelFunc) error {
	defer a.pool.Close()
	defer a.closeWin()

	g, ctx := errgroup.WithContext(ctx)

	// stop ends the whole process when a preview loop finishes normally.
	stop := func(err error) error {
		cancel()
		if errors.Is(err, preview.ErrQuit) {
			return nil
		}
		return err
	}

	if a.mixedSrv != nil {
		g.Go(func() error {
			err := a.mixedSrv.Start(ctx)
			a.live.Close()
			return err
		})
		g.Go(func() error {
			return stop(preview.RunQueue(ctx, a.live, a.renderer, nil))
		})
	}

	if a.stereoSrv != nil {
		g.Go(func() error {
			return a.stereoSrv.Start(ctx)
		})
		if a.mixedSrv == nil {
			interval := time.Duration(a.cfg.Stereo.PollMillis) * time.Millisecond
			g.Go(func() error {
				return stop(preview.RunCache(ctx, a.processor, a.processor, a.renderer, interval, nil))
			})
		} else {
			slog.Info("stereo preview shares the display with mixed mode; save actions remain available through the API")
		}
	}

	if a.audioSrv != nil {
		g.Go(func() error {
			return a.audioSrv.Start(ctx)
		})
		if a.player != nil {
			g.Go(func() error {
				return a.player.Run(ctx)
			})
		}
	}

	if a.mqtt != nil {
		g.Go(func() error {
			return a.mqtt.Run(ctx)
		})
	}

	apiCfg := api.Config{
		Addr:     a.cfg.APIAddr,
		Registry: a.registry,
		Stats:    a.stats,
		Preview:  a.hub,
	}
	if a.processor != nil {
		apiCfg.Actions = a.processor
	}
	apiSrv := api.New(apiCfg, nil)
	g.Go(func() error {
		if err := apiSrv.Start(ctx); err != nil {
			return fmt.Errorf("API server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func (a *app) stats() map[string]any {
	files, total := a.store.Written()
	out := map[string]any{
		"ingest":  a.registry.Totals(),
		"persist": a.pool.Stats(),
		"store":   map[string]int64{"files": files, "bytes": total},
		"preview": a.hub.Stats(),
	}
	if a.mixed != nil {
		out["mixed"] = a.mixed.Stats()
		out["livequeue"] = a.live.Stats()
	}
	if a.stereo != nil {
		out["stereo"] = a.stereo.Stats()
		out["framecache"] = a.cache.Stats()
	}
	if a.audio != nil {
		out["audio"] = a.audio.Stats()
		out["playback"] = a.samples.Stats()
	}
	if a.mqtt != nil {
		out["mqtt"] = a.mqtt.Stats()
	}
	return out
}
