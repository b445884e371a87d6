// Package api serves the monitor state over HTTP.
package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	zlog "github.com/rs/zerolog/log"

	"github.com/fkcurrie/fluidnc-position-led/internal/config"
	"github.com/fkcurrie/fluidnc-position-led/internal/monitor"
	"github.com/fkcurrie/fluidnc-position-led/internal/preview"
	"github.com/fkcurrie/fluidnc-position-led/internal/types"
)

// EventChannel is the SSE channel carrying monitor events
const EventChannel = "/events/state"

const eventQueueSize = 64

// StatusSource provides the monitor state, implemented by *monitor.Monitor
type StatusSource interface {
	Snapshot() monitor.Snapshot
}

// FrameSource provides the last shown strip frame, implemented by *ledstrip.Buffer
type FrameSource interface {
	Frame() []types.RGBW
}

// Server is the HTTP status API
type Server struct {
	http.Handler
	cfg    *config.Config
	status StatusSource
	frames FrameSource
	sse    *sse.Server
	events chan monitor.Event

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// New creates the API handler
func New(cfg *config.Config, status StatusSource, frames FrameSource) *Server {
	r := mux.NewRouter()
	s := &Server{
		Handler: r,
		cfg:     cfg,
		status:  status,
		frames:  frames,
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(io.Discard, "", 0),
		}),
		events:  make(chan monitor.Event, eventQueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	r.Use(logRequests)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.getStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/config", s.getConfig).Methods(http.MethodGet)
	r.HandleFunc("/api/strip.png", s.getStripPNG).Methods(http.MethodGet)
	r.PathPrefix("/events/").HandlerFunc(s.streamEvents)

	go s.forward()
	return s
}

// Publish queues ev for SSE clients. It never blocks; events are dropped when
// the queue is full.
func (s *Server) Publish(ev monitor.Event) {
	select {
	case s.events <- ev:
	default:
		zlog.Warn().Str("kind", string(ev.Kind)).Msg("Event queue full, dropping event")
	}
}

// Close stops the event stream and disconnects every SSE client, so that
// http.Server.Shutdown does not wait on open streams. Safe to call more than once.
//
// The sse dispatcher is left running: its Shutdown closes the channel that
// disconnecting clients report on, which panics if a stream is still open.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		<-s.stopped
		for _, name := range s.sse.Channels() {
			s.sse.CloseChannel(name)
		}
	})
}

func (s *Server) forward() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			data, err := json.Marshal(ev)
			if err != nil {
				zlog.Error().Err(err).Msg("Failed to marshal event")
				continue
			}
			s.sse.SendMessage(EventChannel, sse.SimpleMessage(string(data)))
		}
	}
}

func (s *Server) streamEvents(w http.ResponseWriter, req *http.Request) {
	select {
	case <-s.done:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}
	s.sse.ServeHTTP(w, req)
}

func (s *Server) health(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, s.status.Snapshot())
}

func (s *Server) getConfig(w http.ResponseWriter, req *http.Request) {
	cfg := *s.cfg
	if cfg.MQTT.Password != "" {
		cfg.MQTT.Password = "********"
	}
	writeJSON(w, cfg)
}

func (s *Server) getStripPNG(w http.ResponseWriter, req *http.Request) {
	pitch := preview.DefaultPitch
	if v := req.FormValue("pitch"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			http.Error(w, "invalid pitch", http.StatusBadRequest)
			return
		}
		pitch = n
	}

	img, err := preview.Image(s.frames.Frame(), pitch)
	if err != nil {
		zlog.Error().Err(err).Msg("Failed to render strip preview")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := preview.EncodePNG(w, img); err != nil {
		zlog.Debug().Err(err).Msg("Failed to write strip preview")
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Error().Err(err).Msg("Failed to encode response")
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, req)
		zlog.Debug().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Dur("took", time.Since(start)).
			Msg("HTTP request")
	})
}
