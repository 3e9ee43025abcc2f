// Package ingest accepts uplink connections, runs each one through its
// protocol's demultiplexer and tracks per-connection health.
package ingest

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zsiec/rovlink/internal/wire"
)

// Protocol binds a demultiplexer to the handling of the messages it
// produces. Dispatch and Skipped run on the connection's read goroutine
// and must not block for long.
type Protocol interface {
	Name() string
	Parse(buf []byte) wire.Result
	Dispatch(ctx context.Context, conn *Conn, msg wire.Message)
	Skipped(conn *Conn, err error)
}

// ConnStats captures connection-level metrics for the status API.
type ConnStats struct {
	ID            string `json:"id"`
	Protocol      string `json:"protocol"`
	Transport     string `json:"transport"`
	Label         string `json:"label,omitempty"`
	RemoteAddr    string `json:"remoteAddr"`
	BytesReceived int64  `json:"bytesReceived"`
	ReadCount     int64  `json:"readCount"`
	Messages      int64  `json:"messages"`
	Skipped       int64  `json:"skipped"`
	Ignored       int64  `json:"ignored"`
	Discarded     int64  `json:"discarded"`
	ConnectedAt   int64  `json:"connectedAt"`
	UptimeMs      int64  `json:"uptimeMs"`
}

// Conn represents one accepted uplink connection.
type Conn struct {
	ID         string
	Protocol   string
	Transport  string
	Label      string
	RemoteAddr string
	StartedAt  time.Time

	bytesReceived atomic.Int64
	readCount     atomic.Int64
	messages      atomic.Int64
	skipped       atomic.Int64
	ignored       atomic.Int64
	discarded     atomic.Int64
}

// RecordRead increments the byte and read counters after a socket read.
func (c *Conn) RecordRead(n int) {
	c.bytesReceived.Add(int64(n))
	c.readCount.Add(1)
}

func (c *Conn) recordResult(res wire.Result) {
	c.messages.Add(int64(len(res.Messages)))
	c.skipped.Add(int64(len(res.Skipped)))
	c.ignored.Add(int64(res.Ignored))
}

// Stats returns a snapshot of connection metrics.
func (c *Conn) Stats() ConnStats {
	return ConnStats{
		ID:            c.ID,
		Protocol:      c.Protocol,
		Transport:     c.Transport,
		Label:         c.Label,
		RemoteAddr:    c.RemoteAddr,
		BytesReceived: c.bytesReceived.Load(),
		ReadCount:     c.readCount.Load(),
		Messages:      c.messages.Load(),
		Skipped:       c.skipped.Load(),
		Ignored:       c.ignored.Load(),
		Discarded:     c.discarded.Load(),
		ConnectedAt:   c.StartedAt.UnixMilli(),
		UptimeMs:      time.Since(c.StartedAt).Milliseconds(),
	}
}

// Totals aggregates counters of connections that have closed.
type Totals struct {
	Connections   int64 `json:"connections"`
	BytesReceived int64 `json:"bytesReceived"`
	Messages      int64 `json:"messages"`
	Skipped       int64 `json:"skipped"`
}

// Registry tracks active connections by ID.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	totals Totals
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

// Register records a new connection and returns it.
func (r *Registry) Register(protocol, transport, remote, label string) *Conn {
	c := &Conn{
		ID:         uuid.NewString(),
		Protocol:   protocol,
		Transport:  transport,
		Label:      label,
		RemoteAddr: remote,
		StartedAt:  time.Now(),
	}
	r.mu.Lock()
	r.conns[c.ID] = c
	r.mu.Unlock()
	return c
}

// Unregister removes a connection, folding its counters into the totals.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return
	}
	delete(r.conns, id)
	r.totals.Connections++
	r.totals.BytesReceived += c.bytesReceived.Load()
	r.totals.Messages += c.messages.Load()
	r.totals.Skipped += c.skipped.Load()
}

// Get returns the connection with the given ID.
func (r *Registry) Get(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// List returns stats for every active connection, oldest first.
func (r *Registry) List() []ConnStats {
	r.mu.RLock()
	out := make([]ConnStats, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c.Stats())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt != out[j].ConnectedAt {
			return out[i].ConnectedAt < out[j].ConnectedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Totals returns counters accumulated from closed connections.
func (r *Registry) Totals() Totals {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totals
}
