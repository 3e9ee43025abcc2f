// Package preview drives the operator display: it pulls frames from the
// live queue or the stereo cache, hands them to a Renderer and turns
// operator keys into actions.
package preview

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"time"

	"github.com/zsiec/rovlink/internal/livequeue"
	"github.com/zsiec/rovlink/internal/persist"
)

// ErrQuit is returned by the run loops when the operator asked to quit.
var ErrQuit = errors.New("preview: quit requested")

// DefaultPollInterval is the cache display refresh period.
const DefaultPollInterval = 30 * time.Millisecond

// Intent is an operator request.
type Intent int

const (
	IntentQuit Intent = iota + 1
	IntentSavePair
	IntentSaveDisplay
	IntentSaveFish
)

func (i Intent) String() string {
	switch i {
	case IntentQuit:
		return "quit"
	case IntentSavePair:
		return "save-pair"
	case IntentSaveDisplay:
		return "save-display"
	case IntentSaveFish:
		return "save-fish"
	default:
		return "unknown"
	}
}

// KeyIntent maps a key code to an Intent: ESC quits, s saves the stereo
// pair, d the display half and f the fish image.
func KeyIntent(key int) (Intent, bool) {
	switch key & 0xff {
	case 27, 'q':
		return IntentQuit, true
	case 's':
		return IntentSavePair, true
	case 'd':
		return IntentSaveDisplay, true
	case 'f':
		return IntentSaveFish, true
	default:
		return 0, false
	}
}

// Renderer displays frames and reports operator intents.
type Renderer interface {
	Show(img image.Image)
	Intents() <-chan Intent
}

// Actions are the save operations available on the stereo display.
type Actions interface {
	SavePair() ([]persist.Artifact, error)
	SaveDisplay() (persist.Artifact, error)
	SaveFish() (persist.Artifact, error)
}

// ViewSource supplies the current display image.
type ViewSource interface {
	DisplayView() (image.Image, bool)
}

// RunQueue shows frames from q until the queue is closed, ctx is done or
// the operator quits. It returns ErrQuit in the last case.
func RunQueue(ctx context.Context, q *livequeue.Queue, r Renderer, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "preview")

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case in := <-r.Intents():
				if in == IntentQuit {
					cancel(ErrQuit)
					return
				}
				log.Debug("intent ignored in live mode", "intent", in)
			}
		}
	}()

	shown := 0
	for {
		f, ok := q.Pop(ctx)
		if !ok {
			log.Info("live preview stopped", "frames_shown", shown)
			if errors.Is(context.Cause(ctx), ErrQuit) {
				return ErrQuit
			}
			return nil
		}
		r.Show(f.Image)
		shown++
	}
}

// RunCache polls src every interval, shows the current view and performs
// save intents with actions. It returns ErrQuit when the operator quits.
func RunCache(ctx context.Context, src ViewSource, actions Actions, r Renderer, interval time.Duration, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "preview")
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case in := <-r.Intents():
			if in == IntentQuit {
				log.Info("operator quit")
				return ErrQuit
			}
			Perform(actions, in, log)
		case <-ticker.C:
			if img, ok := src.DisplayView(); ok {
				r.Show(img)
			}
		}
	}
}

// Perform runs the save action for in and logs the outcome.
func Perform(actions Actions, in Intent, log *slog.Logger) {
	if actions == nil {
		return
	}
	var (
		paths []string
		err   error
	)
	switch in {
	case IntentSavePair:
		var as []persist.Artifact
		as, err = actions.SavePair()
		for _, a := range as {
			paths = append(paths, a.Path)
		}
	case IntentSaveDisplay:
		var a persist.Artifact
		a, err = actions.SaveDisplay()
		paths = append(paths, a.Path)
	case IntentSaveFish:
		var a persist.Artifact
		a, err = actions.SaveFish()
		paths = append(paths, a.Path)
	default:
		return
	}
	if err != nil {
		log.Warn("save failed", "intent", in, "error", err)
		return
	}
	log.Info("save completed", "intent", in, "paths", paths)
}
