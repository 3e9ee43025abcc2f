// Package quic implements the QUIC listener transport for ingest. A client
// opens one bidirectional stream per connection and writes the uplink byte
// stream on it.
package quic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"github.com/zsiec/rovlink/internal/certs"
	"github.com/zsiec/rovlink/internal/ingest"
)

// ALPN is the application protocol negotiated by clients.
const ALPN = "rovlink"

const (
	streamAcceptTimeout = 5 * time.Second
	maxIdleTimeout      = 30 * time.Second
	keepAlivePeriod     = 10 * time.Second
)

// Listener accepts QUIC connections as ingest streams.
type Listener struct {
	log *slog.Logger
	ln  *quicgo.Listener
}

// Listen binds a QUIC listener on addr presenting cert. If log is nil,
// slog.Default() is used.
func Listen(addr string, cert *certs.CertInfo, log *slog.Logger) (*Listener, error) {
	if log == nil {
		log = slog.Default()
	}
	ln, err := quicgo.ListenAddr(addr, cert.ServerConfig(ALPN), &quicgo.Config{
		MaxIdleTimeout:  maxIdleTimeout,
		KeepAlivePeriod: keepAlivePeriod,
	})
	if err != nil {
		return nil, fmt.Errorf("QUIC listen on %s: %w", addr, err)
	}
	log = log.With("component", "quic-listener")
	log.Info("certificate", "fingerprint", cert.FingerprintBase64(), "not_after", cert.NotAfter)
	return &Listener{log: log, ln: ln}, nil
}

// Accept waits for a connection and its first stream. Connections that do
// not open a stream in time are closed.
func (l *Listener) Accept(ctx context.Context) (ingest.Stream, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, streamAcceptTimeout)
	defer cancel()
	str, err := conn.AcceptStream(sctx)
	if err != nil {
		conn.CloseWithError(0, "no stream")
		return nil, fmt.Errorf("accept stream from %s: %w", conn.RemoteAddr(), err)
	}
	return &stream{Stream: str, conn: conn}, nil
}

// Close stops the listener.
func (l *Listener) Close() error {
	err := l.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Addr returns the bound UDP address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Transport returns "quic".
func (l *Listener) Transport() string {
	return "quic"
}

type stream struct {
	quicgo.Stream
	conn quicgo.Connection
}

func (s *stream) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

func (s *stream) Close() error {
	s.Stream.CancelRead(0)
	s.Stream.Close()
	return s.conn.CloseWithError(0, "")
}
