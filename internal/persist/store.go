// Package persist writes received artifacts to disk. Images and audio files
// from the ingest streams go through a bounded worker pool; operator
// triggered stereo saves write through the Store directly.
package persist

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oxtoacart/bpool"

	"github.com/zsiec/rovlink/internal/media"
)

// Category selects the subdirectory an artifact is written to.
type Category string

const (
	CategoryImage  Category = "image"
	CategoryStereo Category = "stereo"
	CategoryFish   Category = "fish"
	CategoryAudio  Category = "audio"
)

// Categories lists every category the Store prepares on startup.
var Categories = []Category{CategoryImage, CategoryStereo, CategoryFish, CategoryAudio}

const (
	stampLayout = "20060102_150405.000"

	bufferPoolSize  = 8
	bufferAllocSize = 512 * 1024
)

// Artifact describes a file that was written.
type Artifact struct {
	Category Category  `json:"category"`
	Path     string    `json:"path"`
	Bytes    int       `json:"bytes"`
	Seq      uint64    `json:"seq"`
	SavedAt  time.Time `json:"saved_at"`
}

// Notifier is told about every artifact after it is on disk.
type Notifier interface {
	Persisted(a Artifact)
}

// Item is a named payload to write.
type Item struct {
	Category Category
	Prefix   string
	Ext      string
	Seq      uint64
	Time     time.Time
}

// Store writes artifacts under a root directory, one subdirectory per
// category. File names embed a millisecond timestamp and a sequence number
// so concurrent writers never collide.
type Store struct {
	log      *slog.Logger
	root     string
	notifier Notifier
	buffers  *bpool.SizedBufferPool
	seq      atomic.Uint64

	written atomic.Int64
	bytes   atomic.Int64
}

// NewStore creates the category directories under root. A nil notifier
// disables notifications.
func NewStore(root string, notifier Notifier, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	for _, c := range Categories {
		if err := os.MkdirAll(filepath.Join(root, string(c)), 0o755); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", c, err)
		}
	}
	return &Store{
		log:      log.With("component", "store"),
		root:     root,
		notifier: notifier,
		buffers:  bpool.NewSizedBufferPool(bufferPoolSize, bufferAllocSize),
	}, nil
}

// Root returns the directory artifacts are written under.
func (s *Store) Root() string {
	return s.root
}

// NextSeq returns a fresh sequence number for items that do not carry one.
func (s *Store) NextSeq() uint64 {
	return s.seq.Add(1)
}

// Path returns the destination path for item.
func (s *Store) Path(item Item) string {
	t := item.Time
	if t.IsZero() {
		t = time.Now()
	}
	stamp := strings.Replace(t.Format(stampLayout), ".", "_", 1)
	name := item.Prefix + stamp + "_" + strconv.FormatUint(item.Seq, 10) + item.Ext
	return filepath.Join(s.root, string(item.Category), name)
}

// Write stores data as item.
func (s *Store) Write(item Item, data []byte) (Artifact, error) {
	if item.Seq == 0 {
		item.Seq = s.NextSeq()
	}
	if item.Time.IsZero() {
		item.Time = time.Now()
	}
	path := s.Path(item)
	if err := writeFile(path, data); err != nil {
		return Artifact{}, err
	}

	a := Artifact{
		Category: item.Category,
		Path:     path,
		Bytes:    len(data),
		Seq:      item.Seq,
		SavedAt:  time.Now(),
	}
	s.written.Add(1)
	s.bytes.Add(int64(len(data)))
	s.log.Debug("artifact written", "category", a.Category, "path", a.Path, "bytes", a.Bytes)
	if s.notifier != nil {
		s.notifier.Persisted(a)
	}
	return a, nil
}

// WriteJPEG encodes img at quality and stores it as item.
func (s *Store) WriteJPEG(item Item, img image.Image, quality int) (Artifact, error) {
	buf := s.buffers.Get()
	defer s.buffers.Put(buf)
	if err := media.EncodeJPEG(buf, img, quality); err != nil {
		return Artifact{}, err
	}
	if item.Ext == "" {
		item.Ext = ".jpg"
	}
	return s.Write(item, buf.Bytes())
}

// Written returns the number of artifacts and bytes written.
func (s *Store) Written() (files, total int64) {
	return s.written.Load(), s.bytes.Load()
}

// writeFile writes data to a temporary file beside path and renames it
// into place, so readers never see a partial artifact.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Chmod(0o644)
	}
	if err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
