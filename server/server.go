package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/flynnfc/clocksync/internal/truetime"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// TimeLayout is ISO-8601 in UTC with millisecond precision, the same shape
// browsers produce with Date.toISOString.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// TimeResponse is the body of GET /api/time.
type TimeResponse struct {
	Time string `json:"time"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Synced        bool    `json:"synced"`
	Now           string  `json:"now"`
	OffsetMillis  float64 `json:"offset_ms"`
	RTTMillis     float64 `json:"rtt_ms"`
	Server        string  `json:"server,omitempty"`
	LastSync      string  `json:"last_sync,omitempty"`
	Authoritative string  `json:"authoritative,omitempty"`
	AgeSeconds    float64 `json:"age_seconds"`
}

// Server exposes a Record over HTTP. Every handler only reads the Record,
// so it is safe for any number of concurrent requests.
type Server struct {
	record         *truetime.Record
	logger         *zap.Logger
	gatherer       prometheus.Gatherer
	streamInterval time.Duration
	upgrader       websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves the registry on /metrics.
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Server) { s.gatherer = g } }

// WithStreamInterval sets the push period of /ws/time.
func WithStreamInterval(d time.Duration) Option { return func(s *Server) { s.streamInterval = d } }

// NewTimeServer creates the HTTP front of the Time Query Service.
func NewTimeServer(record *truetime.Record, l *zap.Logger, opts ...Option) *Server {
	s := &Server{
		record:         record,
		logger:         l,
		streamInterval: time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/time", s.handleTime)
	// Earlier deployments served the same body on /time.
	mux.HandleFunc("GET /time", s.handleTime)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /ws/time", s.handleStream)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return s.logRequests(mux)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, TimeResponse{Time: formatTime(s.record.Now())})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.record.Status()
	resp := StatusResponse{
		Synced:       st.Synced,
		Now:          formatTime(s.record.Now()),
		OffsetMillis: float64(st.Offset) / float64(time.Millisecond),
		RTTMillis:    float64(st.RTT) / float64(time.Millisecond),
		Server:       st.Server,
		AgeSeconds:   st.Age.Seconds(),
	}
	if st.Synced {
		resp.LastSync = formatTime(st.LastSync)
		resp.Authoritative = formatTime(st.Authoritative)
	}
	s.writeJSON(w, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", zap.Error(err))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack is needed by the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("server: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", time.Since(start)))
	})
}
