package persist

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zsiec/rovlink/internal/media"
	"github.com/zsiec/rovlink/internal/wire"
)

// Pool defaults.
const (
	DefaultWorkers   = 2
	DefaultQueueSize = 32

	// MaxJobSize is re-checked by workers before decoding.
	MaxJobSize = wire.MaxBlobSize
)

// ErrTooLarge is reported for jobs whose payload exceeds MaxJobSize.
var ErrTooLarge = errors.New("persist: payload exceeds size limit")

// JobKind selects how a job's payload is processed.
type JobKind int

const (
	// JobImage payloads are decoded as JPEG and re-encoded at Quality.
	JobImage JobKind = iota + 1
	// JobRaw payloads are written unchanged.
	JobRaw
)

// Job is a unit of persistence work. Data is owned by the job.
type Job struct {
	Kind     JobKind
	Category Category
	Prefix   string
	Ext      string
	Seq      uint64
	Quality  int
	Data     []byte
}

// PoolOptions configures a Pool.
type PoolOptions struct {
	Workers   int
	QueueSize int
}

// PoolStats is a snapshot of pool activity.
type PoolStats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Rejected  int64 `json:"rejected"`
	Saved     int64 `json:"saved"`
	Failed    int64 `json:"failed"`
}

// Pool runs persistence jobs on a fixed set of workers. Submit never
// blocks; jobs submitted while the queue is full are rejected.
type Pool struct {
	log     *slog.Logger
	store   *Store
	jobs    chan Job
	done    chan struct{}
	once    sync.Once
	workers int

	submitted atomic.Int64
	rejected  atomic.Int64
	saved     atomic.Int64
	failed    atomic.Int64
}

// NewPool starts opts.Workers workers writing through store.
func NewPool(store *Store, opts PoolOptions, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	p := &Pool{
		log:     log.With("component", "persist-pool"),
		store:   store,
		jobs:    make(chan Job, opts.QueueSize),
		done:    make(chan struct{}),
		workers: opts.Workers,
	}
	for i := range opts.Workers {
		go p.worker(i)
	}
	return p
}

// Submit enqueues j. It reports false when the queue is full or the pool
// is closed.
func (p *Pool) Submit(j Job) bool {
	select {
	case <-p.done:
		p.rejected.Add(1)
		return false
	default:
	}
	select {
	case p.jobs <- j:
		p.submitted.Add(1)
		return true
	default:
		p.rejected.Add(1)
		return false
	}
}

// Close stops the workers without waiting for queued or in-flight jobs.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.done) })
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:   p.workers,
		Queued:    len(p.jobs),
		Submitted: p.submitted.Load(),
		Rejected:  p.rejected.Load(),
		Saved:     p.saved.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.done:
			return
		case j := <-p.jobs:
			a, err := p.process(j)
			if err != nil {
				p.failed.Add(1)
				p.log.Warn("job failed", "worker", id, "category", j.Category, "seq", j.Seq, "error", err)
				continue
			}
			p.saved.Add(1)
			p.log.Info("artifact saved", "worker", id, "category", a.Category, "path", a.Path, "bytes", a.Bytes)
		}
	}
}

func (p *Pool) process(j Job) (Artifact, error) {
	if len(j.Data) > MaxJobSize {
		return Artifact{}, fmt.Errorf("%d bytes: %w", len(j.Data), ErrTooLarge)
	}
	item := Item{Category: j.Category, Prefix: j.Prefix, Ext: j.Ext, Seq: j.Seq}

	switch j.Kind {
	case JobImage:
		img, err := media.DecodeJPEG(j.Data)
		if err != nil {
			return Artifact{}, err
		}
		q := j.Quality
		if q <= 0 {
			q = media.QualityArchive
		}
		return p.store.WriteJPEG(item, img, q)
	case JobRaw:
		return p.store.Write(item, j.Data)
	default:
		return Artifact{}, fmt.Errorf("unknown job kind %d", j.Kind)
	}
}
