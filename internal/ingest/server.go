package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/zsiec/rovlink/internal/wire"
)

// Read parameters shared by all transports.
const (
	DefaultReadChunk   = 4096
	DefaultReadTimeout = 500 * time.Millisecond
)

// Stream is the byte stream of one accepted connection.
type Stream interface {
	io.ReadCloser
	RemoteAddr() net.Addr
}

// Listener accepts Streams from one transport.
type Listener interface {
	Accept(ctx context.Context) (Stream, error)
	Close() error
	Addr() net.Addr
	Transport() string
}

type deadliner interface {
	SetReadDeadline(t time.Time) error
}

type labeler interface {
	Label() string
}

// Options configures a Server.
type Options struct {
	// Once makes Start return after the first connection closes.
	Once bool

	// MaxConns bounds concurrent connections; zero means unbounded.
	MaxConns int

	ReadChunk   int
	ReadTimeout time.Duration
}

// Server runs a Protocol over every connection accepted by a Listener.
type Server struct {
	log      *slog.Logger
	ln       Listener
	proto    Protocol
	registry *Registry
	opts     Options
}

// NewServer creates a Server. If log is nil, slog.Default() is used.
func NewServer(ln Listener, proto Protocol, registry *Registry, opts Options, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if opts.ReadChunk <= 0 {
		opts.ReadChunk = DefaultReadChunk
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	return &Server{
		log:      log.With("component", "ingest", "protocol", proto.Name(), "transport", ln.Transport()),
		ln:       ln,
		proto:    proto,
		registry: registry,
		opts:     opts,
	}
}

// Start accepts connections until ctx is cancelled, or until the first
// connection closes when Options.Once is set. It waits for active
// connections to finish before returning.
func (s *Server) Start(ctx context.Context) error {
	s.log.Info("listening", "addr", s.ln.Addr().String())
	stop := context.AfterFunc(ctx, func() { s.ln.Close() })
	defer stop()
	defer s.ln.Close()

	var sem chan struct{}
	if s.opts.MaxConns > 0 {
		sem = make(chan struct{}, s.opts.MaxConns)
	}
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if sem != nil {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
		}
		release := func() {
			if sem != nil {
				<-sem
			}
		}

		st, err := s.ln.Accept(ctx)
		if err != nil {
			release()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}

		if s.opts.Once {
			s.handle(ctx, st)
			release()
			s.log.Info("single-connection server done")
			return nil
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer release()
			s.handle(ctx, st)
		}()
	}
}

func (s *Server) handle(ctx context.Context, st Stream) {
	var label string
	if l, ok := st.(labeler); ok {
		label = l.Label()
	}
	conn := s.registry.Register(s.proto.Name(), s.ln.Transport(), st.RemoteAddr().String(), label)
	defer s.registry.Unregister(conn.ID)

	log := s.log.With("conn", conn.ID, "remote", conn.RemoteAddr)
	log.Info("connection accepted", "label", label)

	stop := context.AfterFunc(ctx, func() { st.Close() })
	defer stop()
	defer st.Close()

	err := s.serve(ctx, st, conn)
	stats := conn.Stats()
	attrs := []any{
		"bytes", stats.BytesReceived, "reads", stats.ReadCount,
		"messages", stats.Messages, "skipped", stats.Skipped,
		"uptime_ms", stats.UptimeMs,
	}
	if err != nil && ctx.Err() == nil {
		log.Warn("connection failed", append(attrs, "error", err)...)
		return
	}
	log.Info("connection closed", attrs...)
}

// serve reads st until EOF, a read error or cancellation. Read timeouts
// only give the loop a chance to observe cancellation.
func (s *Server) serve(ctx context.Context, st Stream, conn *Conn) error {
	acc := wire.NewAccumulator(s.proto.Parse)
	dl, hasDeadline := st.(deadliner)
	chunk := make([]byte, s.opts.ReadChunk)

	for {
		if ctx.Err() != nil {
			return nil
		}
		if hasDeadline {
			dl.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		}
		n, err := st.Read(chunk)
		if n > 0 {
			conn.RecordRead(n)
			before := acc.Discarded()
			res := acc.Feed(chunk[:n])
			conn.discarded.Add(acc.Discarded() - before)
			s.deliver(ctx, conn, res)
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func (s *Server) deliver(ctx context.Context, conn *Conn, res wire.Result) {
	conn.recordResult(res)
	for _, err := range res.Skipped {
		s.proto.Skipped(conn, err)
	}
	for _, msg := range res.Messages {
		s.proto.Dispatch(ctx, conn, msg)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
