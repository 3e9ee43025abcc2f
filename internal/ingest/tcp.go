package ingest

import (
	"context"
	"fmt"
	"net"
	"time"
)

// AcceptTimeout bounds each blocking accept so the loop can observe
// cancellation.
const AcceptTimeout = time.Second

// TCPListener is a Listener over plain TCP.
type TCPListener struct {
	ln *net.TCPListener
}

// ListenTCP binds addr. Bind failures are returned immediately.
func ListenTCP(addr string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp listen on %s: %w", addr, err)
	}
	return &TCPListener{ln: ln.(*net.TCPListener)}, nil
}

// Accept waits for the next connection, re-checking ctx every
// AcceptTimeout.
func (l *TCPListener) Accept(ctx context.Context) (Stream, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l.ln.SetDeadline(time.Now().Add(AcceptTimeout))
		c, err := l.ln.AcceptTCP()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return nil, err
		}
		c.SetNoDelay(true)
		return c, nil
	}
}

// Close stops the listener.
func (l *TCPListener) Close() error {
	return l.ln.Close()
}

// Addr returns the bound address.
func (l *TCPListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Transport returns "tcp".
func (l *TCPListener) Transport() string {
	return "tcp"
}
