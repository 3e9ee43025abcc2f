package preview

import (
	"context"
	"image"
)

type tee struct {
	renderers []Renderer
	intents   chan Intent
}

// Tee returns a Renderer that shows every frame on all of rs and merges
// their intents until ctx is done.
func Tee(ctx context.Context, rs ...Renderer) Renderer {
	t := &tee{renderers: rs, intents: make(chan Intent, 8)}
	for _, r := range rs {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case in := <-r.Intents():
					select {
					case t.intents <- in:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}
	return t
}

func (t *tee) Show(img image.Image) {
	for _, r := range t.renderers {
		r.Show(img)
	}
}

func (t *tee) Intents() <-chan Intent {
	return t.intents
}
