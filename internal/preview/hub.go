package preview

import (
	"bytes"
	"image"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zsiec/rovlink/internal/media"
)

const (
	viewerSendBuffer = 4
	writeTimeout     = 5 * time.Second
)

// HubStats reports websocket preview delivery.
type HubStats struct {
	Viewers int   `json:"viewers"`
	Frames  int64 `json:"frames"`
	Sent    int64 `json:"sent"`
	Dropped int64 `json:"dropped"`
}

type viewer struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub is a Renderer that streams JPEG frames to websocket viewers and
// accepts single-key text messages as intents. Slow viewers drop frames
// rather than stall the display loop.
type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader
	quality  int
	intents  chan Intent

	mu      sync.RWMutex
	viewers map[*viewer]struct{}

	frames  atomic.Int64
	sent    atomic.Int64
	dropped atomic.Int64
}

// NewHub returns a Hub encoding previews at media.QualityPreview.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log: log.With("component", "preview-hub"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		quality: media.QualityPreview,
		intents: make(chan Intent, 8),
		viewers: make(map[*viewer]struct{}),
	}
}

// ServeHTTP upgrades the request and serves one viewer until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	v := &viewer{conn: conn, send: make(chan []byte, viewerSendBuffer)}
	h.mu.Lock()
	h.viewers[v] = struct{}{}
	h.mu.Unlock()
	h.log.Info("viewer connected", "remote", conn.RemoteAddr().String())

	go h.writeLoop(v)
	h.readLoop(v)

	h.mu.Lock()
	delete(h.viewers, v)
	close(v.send)
	h.mu.Unlock()
	conn.Close()
	h.log.Info("viewer disconnected", "remote", conn.RemoteAddr().String())
}

func (h *Hub) readLoop(v *viewer) {
	for {
		typ, msg, err := v.conn.ReadMessage()
		if err != nil {
			return
		}
		if typ != websocket.TextMessage || len(msg) == 0 {
			continue
		}
		key := int(msg[0])
		if string(msg) == "esc" {
			key = 27
		}
		in, ok := KeyIntent(key)
		if !ok {
			continue
		}
		select {
		case h.intents <- in:
		default:
			h.log.Warn("intent dropped", "intent", in)
		}
	}
}

func (h *Hub) writeLoop(v *viewer) {
	for frame := range v.send {
		v.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := v.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			v.conn.Close()
			for range v.send {
			}
			return
		}
		h.sent.Add(1)
	}
}

// Show encodes img once and queues it for every viewer.
func (h *Hub) Show(img image.Image) {
	h.frames.Add(1)
	if h.ViewerCount() == 0 {
		return
	}

	var buf bytes.Buffer
	if err := media.EncodeJPEG(&buf, img, h.quality); err != nil {
		h.log.Warn("preview encode failed", "error", err)
		return
	}
	frame := buf.Bytes()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for v := range h.viewers {
		select {
		case v.send <- frame:
		default:
			h.dropped.Add(1)
		}
	}
}

// Intents returns operator intents received from viewers.
func (h *Hub) Intents() <-chan Intent {
	return h.intents
}

// ViewerCount returns the number of connected viewers.
func (h *Hub) ViewerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// Stats returns delivery counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Viewers: h.ViewerCount(),
		Frames:  h.frames.Load(),
		Sent:    h.sent.Load(),
		Dropped: h.dropped.Load(),
	}
}
