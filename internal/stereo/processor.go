package stereo

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/zsiec/rovlink/internal/framecache"
	"github.com/zsiec/rovlink/internal/media"
	"github.com/zsiec/rovlink/internal/persist"
)

// DefaultSplitX is the column where the two camera halves meet.
const DefaultSplitX = 1280

var (
	// ErrNoFrame is returned when an action runs before any frame arrived.
	ErrNoFrame = errors.New("stereo: no cached frame")

	// ErrFrameTooNarrow is returned for frames that do not extend past the
	// split column.
	ErrFrameTooNarrow = errors.New("stereo: frame narrower than split column")
)

// Options configures a Processor.
type Options struct {
	Left, Right *Calibration
	SplitX      int
	Quality     int
}

type rectKey struct {
	right         bool
	width, height int
}

// Processor derives display and saved images from the latest cached frame.
// The frame arrives upside down; after rotation the left camera occupies
// the columns from SplitX onwards.
type Processor struct {
	log   *slog.Logger
	cache *framecache.Cache
	store *persist.Store
	opts  Options

	// io serialises save actions.
	io sync.Mutex

	rectMu sync.Mutex
	rects  map[rectKey]*Rectifier
}

// NewProcessor returns a Processor reading from cache and writing to store.
func NewProcessor(cache *framecache.Cache, store *persist.Store, opts Options, log *slog.Logger) (*Processor, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.Left == nil || opts.Right == nil {
		return nil, fmt.Errorf("%w: left and right calibrations are required", ErrCalibration)
	}
	if opts.SplitX <= 0 {
		opts.SplitX = DefaultSplitX
	}
	if opts.Quality <= 0 {
		opts.Quality = media.QualityStereo
	}
	return &Processor{
		log:   log.With("component", "stereo"),
		cache: cache,
		store: store,
		opts:  opts,
		rects: make(map[rectKey]*Rectifier),
	}, nil
}

// rotated loads the cached frame and rotates it.
func (p *Processor) rotated() (*image.RGBA, error) {
	snap, ok := p.cache.Load()
	if !ok {
		return nil, ErrNoFrame
	}
	img := Rotate180(snap.Image)
	if img.Bounds().Dx() <= p.opts.SplitX {
		return nil, fmt.Errorf("%w: width %d, split %d", ErrFrameTooNarrow, img.Bounds().Dx(), p.opts.SplitX)
	}
	return img, nil
}

// DisplayView returns the rotated left-camera half of the latest frame.
func (p *Processor) DisplayView() (image.Image, bool) {
	img, err := p.rotated()
	if err != nil {
		return nil, false
	}
	_, east := Split(img, p.opts.SplitX)
	return east, true
}

// SavePair rectifies both camera halves of the latest frame and writes them
// to the stereo category under a shared sequence number.
func (p *Processor) SavePair() ([]persist.Artifact, error) {
	img, err := p.rotated()
	if err != nil {
		return nil, err
	}
	west, east := Split(img, p.opts.SplitX)

	left, err := p.rectify(false, east)
	if err != nil {
		return nil, err
	}
	right, err := p.rectify(true, west)
	if err != nil {
		return nil, err
	}

	seq := p.store.NextSeq()
	now := time.Now()

	p.io.Lock()
	defer p.io.Unlock()
	var out []persist.Artifact
	for _, side := range []struct {
		prefix string
		img    *image.RGBA
	}{{"left_", left}, {"right_", right}} {
		a, err := p.store.WriteJPEG(persist.Item{
			Category: persist.CategoryStereo,
			Prefix:   side.prefix,
			Seq:      seq,
			Time:     now,
		}, side.img, p.opts.Quality)
		if err != nil {
			return out, fmt.Errorf("save %simage: %w", side.prefix, err)
		}
		out = append(out, a)
	}
	p.log.Info("stereo pair saved", "left", out[0].Path, "right", out[1].Path)
	return out, nil
}

// SaveDisplay writes the unrectified display half to the image category.
func (p *Processor) SaveDisplay() (persist.Artifact, error) {
	return p.saveHalf(persist.CategoryImage, "display_")
}

// SaveFish writes the unrectified display half to the fish category.
func (p *Processor) SaveFish() (persist.Artifact, error) {
	return p.saveHalf(persist.CategoryFish, "fish_")
}

func (p *Processor) saveHalf(cat persist.Category, prefix string) (persist.Artifact, error) {
	img, err := p.rotated()
	if err != nil {
		return persist.Artifact{}, err
	}
	_, east := Split(img, p.opts.SplitX)

	p.io.Lock()
	defer p.io.Unlock()
	a, err := p.store.WriteJPEG(persist.Item{Category: cat, Prefix: prefix}, east, p.opts.Quality)
	if err != nil {
		return persist.Artifact{}, fmt.Errorf("save %s image: %w", cat, err)
	}
	p.log.Info("image saved", "category", cat, "path", a.Path)
	return a, nil
}

func (p *Processor) rectify(right bool, img *image.RGBA) (*image.RGBA, error) {
	r, err := p.rectifier(right, img.Bounds().Dx(), img.Bounds().Dy())
	if err != nil {
		return nil, err
	}
	return r.Apply(img)
}

// rectifier returns the cached Rectifier for one side at the given size,
// building it on first use.
func (p *Processor) rectifier(right bool, w, h int) (*Rectifier, error) {
	key := rectKey{right: right, width: w, height: h}
	p.rectMu.Lock()
	defer p.rectMu.Unlock()
	if r, ok := p.rects[key]; ok {
		return r, nil
	}
	cal := p.opts.Left
	if right {
		cal = p.opts.Right
	}
	r, err := NewRectifier(cal, w, h)
	if err != nil {
		return nil, err
	}
	p.rects[key] = r
	return r, nil
}
