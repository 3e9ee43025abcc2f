//go:build !gocv

package main

import (
	"context"

	"github.com/zsiec/rovlink/internal/preview"
)

// newRenderer returns the browser preview alone; build with -tags gocv
// for a native window.
func newRenderer(_ context.Context, hub *preview.Hub) (preview.Renderer, func()) {
	return hub, func() {}
}
