package srt

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/rovlink/internal/ingest"
)

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms).
const srtLatencyNs = 120_000_000

// Listener accepts SRT connections as ingest streams.
type Listener struct {
	log  *slog.Logger
	addr string
	l    *srtgo.Listener
}

// Listen binds an SRT listener on addr. If log is nil, slog.Default() is
// used.
func Listen(addr string, log *slog.Logger) (*Listener, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs

	l, err := srtgo.Listen(addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("SRT listen on %s: %w", addr, err)
	}
	return &Listener{
		log:  log.With("component", "srt-listener"),
		addr: addr,
		l:    l,
	}, nil
}

// Accept waits for the next SRT connection. Cancellation is observed when
// the listener is closed.
func (l *Listener) Accept(ctx context.Context) (ingest.Stream, error) {
	conn, err := l.l.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	key := extractStreamKey(conn.StreamID())
	l.log.Debug("srt connection", "stream_key", key, "remote", conn.RemoteAddr().String())
	return &stream{conn: conn, key: key, remote: addr(conn.RemoteAddr().String())}, nil
}

// Close stops the listener.
func (l *Listener) Close() error {
	l.l.Close()
	return nil
}

// Addr returns the configured listen address.
func (l *Listener) Addr() net.Addr {
	return addr(l.addr)
}

// Transport returns "srt".
func (l *Listener) Transport() string {
	return "srt"
}

type stream struct {
	conn   *srtgo.Conn
	key    string
	remote net.Addr
}

func (s *stream) Read(p []byte) (int, error) { return s.conn.Read(p) }

func (s *stream) Close() error {
	s.conn.Close()
	return nil
}

func (s *stream) RemoteAddr() net.Addr { return s.remote }

func (s *stream) Label() string { return s.key }

// addr is a net.Addr for SRT endpoints.
type addr string

func (a addr) Network() string { return "srt" }
func (a addr) String() string  { return string(a) }

func extractStreamKey(streamID string) string {
	streamID = strings.TrimPrefix(streamID, "/")
	streamID = strings.TrimPrefix(streamID, "live/")
	if streamID == "" {
		return "default"
	}
	return streamID
}
