// Package api serves the operator REST API and the browser preview socket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/zsiec/rovlink/internal/ingest"
	"github.com/zsiec/rovlink/internal/persist"
	"github.com/zsiec/rovlink/internal/preview"
	"github.com/zsiec/rovlink/internal/stereo"
)

const shutdownTimeout = 5 * time.Second

// StatsFunc returns the current component statistics keyed by component
// name. Values must be JSON-serializable.
type StatsFunc func() map[string]any

// Config holds the dependencies of the API server. Nil fields disable the
// matching routes.
type Config struct {
	Addr     string
	Registry *ingest.Registry
	Stats    StatsFunc
	Actions  preview.Actions
	Preview  http.Handler
}

// Server is the HTTP status and control server.
type Server struct {
	config Config
	log    *slog.Logger
}

// New creates a Server.
func New(config Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{config: config, log: log.With("component", "api")}
}

// Handler returns the API routes wrapped in CORS headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/connections", s.handleConnections)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/stereo/save", s.handleStereoSave)
	if s.config.Preview != nil {
		mux.Handle("GET /ws/preview", s.config.Preview)
	}
	return corsMiddleware(mux)
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("api shutdown", "error", err)
		}
	})
	defer stop()

	s.log.Info("API server listening", "addr", ln.Addr().String())
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) || ctx.Err() != nil {
		return nil
	}
	return err
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

type connectionsResponse struct {
	Active []ingest.ConnStats `json:"active"`
	Totals ingest.Totals      `json:"totals"`
}

func (s *Server) handleConnections(w http.ResponseWriter, _ *http.Request) {
	resp := connectionsResponse{Active: make([]ingest.ConnStats, 0)}
	if s.config.Registry != nil {
		if list := s.config.Registry.List(); list != nil {
			resp.Active = list
		}
		resp.Totals = s.config.Registry.Totals()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{}
	if s.config.Stats != nil {
		resp = s.config.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

type saveResponse struct {
	Kind      string             `json:"kind"`
	Artifacts []persist.Artifact `json:"artifacts"`
}

func (s *Server) handleStereoSave(w http.ResponseWriter, r *http.Request) {
	if s.config.Actions == nil {
		writeError(w, http.StatusNotImplemented, "stereo mode not enabled")
		return
	}
	kind := r.URL.Query().Get("kind")
	var (
		arts []persist.Artifact
		err  error
	)
	switch kind {
	case "pair":
		arts, err = s.config.Actions.SavePair()
	case "display":
		var a persist.Artifact
		a, err = s.config.Actions.SaveDisplay()
		arts = []persist.Artifact{a}
	case "fish":
		var a persist.Artifact
		a, err = s.config.Actions.SaveFish()
		arts = []persist.Artifact{a}
	default:
		writeError(w, http.StatusBadRequest, "kind must be pair, display or fish")
		return
	}
	if errors.Is(err, stereo.ErrNoFrame) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.log.Error("stereo save failed", "kind", kind, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("stereo save", "kind", kind, "files", len(arts))
	writeJSON(w, http.StatusCreated, saveResponse{Kind: kind, Artifacts: arts})
}
