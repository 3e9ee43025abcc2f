package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	quicgo "github.com/quic-go/quic-go"
	srt "github.com/zsiec/srtgo"

	"github.com/zsiec/rovlink/internal/certs"
	quicingest "github.com/zsiec/rovlink/internal/ingest/quic"
)

func main() {
	modeFlag := flag.String("mode", "video", "Payload kind: video, image, control, stereo, pcm or wav")
	fileFlag := flag.String("file", "", "JPEG or WAV file to send (default: synthesized)")
	addrFlag := flag.String("addr", "127.0.0.1:5001", "Receiver address")
	transportFlag := flag.String("transport", "tcp", "Transport: tcp, srt or quic")
	fpFlag := flag.String("fingerprint", "", "Base64 SHA-256 certificate fingerprint (quic)")
	keyFlag := flag.String("key", "rov", "SRT stream ID")
	countFlag := flag.Int("count", 100, "Frames to send (0 = until interrupted)")
	rateFlag := flag.Float64("rate", 10, "Frames per second")
	cmdFlag := flag.String("command", "ping", "Command text for control mode")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src, err := newSource(sourceOptions{
		Mode:    *modeFlag,
		File:    *fileFlag,
		Command: *cmdFlag,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "prepare payload: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("[%s] Connecting to %s %s...\n", *modeFlag, *transportFlag, *addrFlag)
	conn, err := dial(ctx, *transportFlag, *addrFlag, *keyFlag, *fpFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect failed: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	sent, bytes, err := pushLoop(ctx, conn, src, *countFlag, *rateFlag)
	fmt.Printf("[%s] sent %d frames, %.1f KB\n", *modeFlag, sent, float64(bytes)/1024)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "push failed: %v\n", err)
		os.Exit(1)
	}
}

func dial(ctx context.Context, transport, addr, key, fingerprint string) (io.WriteCloser, error) {
	switch transport {
	case "tcp":
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	case "srt":
		cfg := srt.DefaultConfig()
		cfg.StreamID = key
		c, err := srt.Dial(addr, cfg)
		if err != nil {
			return nil, err
		}
		return srtConn{c}, nil
	case "quic":
		if fingerprint == "" {
			return nil, errors.New("quic transport needs -fingerprint (logged by rovlink at startup)")
		}
		tlsConf, err := certs.PinnedClientConfig(fingerprint, quicingest.ALPN)
		if err != nil {
			return nil, err
		}
		qc, err := quicgo.DialAddr(ctx, addr, tlsConf, nil)
		if err != nil {
			return nil, err
		}
		st, err := qc.OpenStreamSync(ctx)
		if err != nil {
			qc.CloseWithError(0, "")
			return nil, err
		}
		return &quicStream{conn: qc, Stream: st}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}

type srtConn struct{ c *srt.Conn }

func (s srtConn) Write(p []byte) (int, error) { return s.c.Write(p) }

func (s srtConn) Close() error {
	s.c.Close()
	return nil
}

type quicStream struct {
	quicgo.Stream
	conn quicgo.Connection
}

// Close finishes the stream and gives the receiver a moment to drain it
// before tearing down the connection.
func (s *quicStream) Close() error {
	err := s.Stream.Close()
	time.Sleep(200 * time.Millisecond)
	s.conn.CloseWithError(0, "")
	return err
}

// pushLoop writes frames from src paced at rate per second until count
// frames are sent or ctx ends.
func pushLoop(ctx context.Context, w io.Writer, src *source, count int, rate float64) (int, int64, error) {
	interval := time.Duration(0)
	if rate > 0 {
		interval = time.Duration(float64(time.Second) / rate)
	}
	start := time.Now()
	lastLog := start
	const logInterval = 10 * time.Second

	var sent int
	var total int64
	for count == 0 || sent < count {
		if err := ctx.Err(); err != nil {
			return sent, total, err
		}
		frame := src.Next()
		if _, err := w.Write(frame); err != nil {
			return sent, total, err
		}
		sent++
		total += int64(len(frame))

		// Pace against the start time so drift does not accumulate.
		if interval > 0 {
			expected := time.Duration(sent) * interval
			if elapsed := time.Since(start); expected > elapsed {
				select {
				case <-time.After(expected - elapsed):
				case <-ctx.Done():
					return sent, total, ctx.Err()
				}
			}
		}
		if time.Since(lastLog) >= logInterval {
			fmt.Printf("frames=%d rate=%.1f/s total=%.1f MB\n",
				sent, float64(sent)/time.Since(start).Seconds(), float64(total)/(1024*1024))
			lastLog = time.Now()
		}
	}
	return sent, total, nil
}
