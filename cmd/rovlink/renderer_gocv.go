//go:build gocv

package main

import (
	"context"
	"log/slog"

	"github.com/zsiec/rovlink/internal/preview"
	"github.com/zsiec/rovlink/internal/preview/gocvwin"
)

func newRenderer(ctx context.Context, hub *preview.Hub) (preview.Renderer, func()) {
	win := gocvwin.New("rovlink", 1280, 720, nil)
	return preview.Tee(ctx, hub, win), func() {
		if err := win.Close(); err != nil {
			slog.Warn("close preview window", "error", err)
		}
	}
}
