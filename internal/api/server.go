// Package api is the thin administrative REST front door over the
// debug-bundle lifecycle controller: a gorilla/mux router with CORS
// middleware, adapted from the teacher's own API gateway package.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ocx/backend/internal/debugbundle"
	wsstream "github.com/ocx/backend/internal/websocket"
)

// Server exposes initiate/cancel/status/path/delete over HTTP, plus
// Prometheus metrics and a live status WebSocket feed.
type Server struct {
	svc      *debugbundle.Service
	streamer *wsstream.StatusStreamer
}

// NewServer wires the lifecycle controller and, optionally, a live
// status streamer into a ready-to-serve router. streamer may be nil to
// disable the /v1/debug-bundle/ws endpoint (e.g. in tests).
func NewServer(svc *debugbundle.Service, streamer *wsstream.StatusStreamer) *Server {
	return &Server{svc: svc, streamer: streamer}
}

// PumpStatusEvents forwards every event published on bus to streamer
// until bus is unsubscribed. Callers run this in its own goroutine,
// grounded on the teacher's events.Bus consumer-loop shape.
func PumpStatusEvents(bus *debugbundle.StatusBus, streamer *wsstream.StatusStreamer) {
	ch := bus.Subscribe()
	for evt := range ch {
		streamer.Broadcast(evt.Snapshot)
	}
}

// Router builds the mux.Router for this server. Kept separate from
// Start so tests can exercise it with httptest without binding a port.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.Use(corsMiddleware)

	r.HandleFunc("/v1/debug-bundle/{job_id}", s.handleInitiate).Methods(http.MethodPost)
	r.HandleFunc("/v1/debug-bundle/{job_id}/cancel", s.handleCancel).Methods(http.MethodPost)
	r.HandleFunc("/v1/debug-bundle", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/v1/debug-bundle/{job_id}/path", s.handlePath).Methods(http.MethodGet)
	r.HandleFunc("/v1/debug-bundle/{job_id}", s.handleDelete).Methods(http.MethodDelete)

	if s.streamer != nil {
		r.HandleFunc("/v1/debug-bundle/ws", s.streamer.HandleWebSocket).Methods(http.MethodGet)
	}

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

// Start blocks serving the router on addr.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	slog.Info("api: listening", "addr", addr)
	return srv.ListenAndServe()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeError maps a debugbundle error to its HTTP status, per
// SPEC_FULL.md §6.
func writeError(w http.ResponseWriter, err error) {
	var tagged *debugbundle.Error
	if !errors.As(err, &tagged) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusInternalServerError
	switch tagged.Tag {
	case debugbundle.ErrProcessRunning, debugbundle.ErrProcessNotRunning:
		status = http.StatusConflict
	case debugbundle.ErrProcessNeverStarted, debugbundle.ErrJobIDNotRecognized:
		status = http.StatusNotFound
	case debugbundle.ErrInvalidParameters:
		status = http.StatusUnprocessableEntity
	case debugbundle.ErrProcessFailed:
		status = http.StatusPreconditionFailed
	case debugbundle.ErrRPKBinaryNotPresent, debugbundle.ErrInternal:
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   string(tagged.Tag),
		"message": tagged.Message,
	})
}
