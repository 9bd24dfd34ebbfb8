// Package api serves the HTTP control surface of a running murmur daemon.
//
// Routes:
//
//	POST /v1/speak    enqueue an assistant reply
//	POST /v1/stop     stop playback and clear the queue
//	POST /v1/pause    pause the current item
//	POST /v1/resume   resume the current item
//	GET  /v1/status   queue snapshot
//	GET  /v1/voices   voice catalogue
//	GET  /v1/events   websocket stream of queue snapshots
//
// Health, metrics and MCP handlers are mounted when supplied as options.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/murmur/internal/health"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/internal/voicequeue"
	"github.com/MrWong99/murmur/pkg/voice"
)

// maxBodyBytes caps the size of a /v1/speak request body.
const maxBodyBytes = 64 << 10

// Queue is the subset of [voicequeue.Manager] the server drives.
type Queue interface {
	Speak(text string, mode voice.Mode, gender voice.Gender) (string, error)
	Stop()
	Pause()
	Resume()
	Status() voicequeue.Status
	Subscribe() (<-chan voicequeue.Status, func())
	Policy() *voice.Policy
}

var _ Queue = (*voicequeue.Manager)(nil)

// Option configures a [Server].
type Option func(*Server)

// WithRateLimit limits /v1/speak to perSecond requests with the given burst.
// A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMCPHandler mounts h at /mcp.
func WithMCPHandler(h http.Handler) Option {
	return func(s *Server) { s.mcpHandler = h }
}

// WithMetrics sets the instruments used by the request middleware.
// Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithOriginPatterns sets the host patterns accepted for cross-origin
// websocket connections on /v1/events.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

// Server is the HTTP control API.
type Server struct {
	queue          Queue
	limiter        *rate.Limiter
	health         *health.Handler
	metricsHandler http.Handler
	mcpHandler     http.Handler
	metrics        *observe.Metrics
	originPatterns []string

	handler http.Handler
}

// New builds a [Server] driving q.
func New(q Queue, opts ...Option) *Server {
	s := &Server{
		queue:   q,
		metrics: observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/speak", s.handleSpeak)
	mux.HandleFunc("POST /v1/stop", s.handleStop)
	mux.HandleFunc("POST /v1/pause", s.handlePause)
	mux.HandleFunc("POST /v1/resume", s.handleResume)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/voices", s.handleVoices)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	if s.mcpHandler != nil {
		mux.Handle("/mcp", s.mcpHandler)
	}
	s.handler = observe.Middleware(s.metrics)(mux)
	return s
}

// Handler returns the root handler with tracing and request metrics applied.
func (s *Server) Handler() http.Handler { return s.handler }

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// speakRequest is the JSON body for POST /v1/speak.
type speakRequest struct {
	Text        string `json:"text"`
	Personality string `json:"personality"`
	Gender      string `json:"gender"`
}

// speakResponse is returned from POST /v1/speak.
type speakResponse struct {
	ID      string `json:"id,omitempty"`
	Dropped bool   `json:"dropped,omitempty"`
}

// errorResponse is the body of every 4xx/5xx reply.
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil {
		if res := s.limiter.Reserve(); res.OK() {
			if d := res.Delay(); d > 0 {
				res.Cancel()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
				return
			}
		}
	}

	var req speakRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	gender, err := voice.ParseGender(req.Gender)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := s.queue.Speak(req.Text, voice.Mode(req.Personality), gender)
	if err != nil {
		writeError(w, err)
		return
	}
	if id == "" {
		writeJSON(w, http.StatusOK, speakResponse{Dropped: true})
		return
	}
	writeJSON(w, http.StatusAccepted, speakResponse{ID: id})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.queue.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.queue.Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.queue.Resume()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.Status())
}

// voicesResponse is returned from GET /v1/voices.
type voicesResponse struct {
	DefaultMode voice.Mode    `json:"default_mode"`
	Modes       []voice.Entry `json:"modes"`
}

func (s *Server) handleVoices(w http.ResponseWriter, _ *http.Request) {
	p := s.queue.Policy()
	writeJSON(w, http.StatusOK, voicesResponse{
		DefaultMode: p.DefaultMode(),
		Modes:       p.Catalogue(),
	})
}

// writeError maps queue and validation errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	var verr *voice.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: verr.Field})
	case errors.Is(err, voicequeue.ErrClosed):
		w.Header().Set("Retry-After", strconv.Itoa(int((5 * time.Second).Seconds())))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		slog.Error("api: unexpected error", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: failed to encode response", "err", err)
	}
}
