//go:build gocv

// Package gocvwin renders previews in a native OpenCV window. It is built
// only with the gocv tag since it needs OpenCV through cgo.
package gocvwin

import (
	"image"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/zsiec/rovlink/internal/preview"
)

// Window is a preview.Renderer backed by an OpenCV highgui window. Keys are
// polled after every frame.
type Window struct {
	log     *slog.Logger
	win     *gocv.Window
	intents chan preview.Intent
}

// New opens a resizable window of the given size.
func New(title string, width, height int, log *slog.Logger) *Window {
	if log == nil {
		log = slog.Default()
	}
	win := gocv.NewWindow(title)
	win.ResizeWindow(width, height)
	return &Window{
		log:     log.With("component", "gocv-window"),
		win:     win,
		intents: make(chan preview.Intent, 4),
	}
}

// Show draws img and polls the keyboard.
func (w *Window) Show(img image.Image) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		w.log.Warn("convert frame", "error", err)
		return
	}
	defer mat.Close()

	w.win.IMShow(mat)
	if in, ok := preview.KeyIntent(w.win.PollKey()); ok {
		select {
		case w.intents <- in:
		default:
		}
	}
}

// Intents returns key presses mapped to intents.
func (w *Window) Intents() <-chan preview.Intent {
	return w.intents
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.win.Close()
}
