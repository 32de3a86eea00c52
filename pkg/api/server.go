// Package api exposes the USSD callback endpoint and operational routes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"kazichain-ussd/pkg/logging"
	"kazichain-ussd/pkg/metrics"
	"kazichain-ussd/pkg/notify"
	"kazichain-ussd/pkg/ussd"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Engine answers USSD callbacks.
type Engine interface {
	Handle(ctx context.Context, req ussd.Request) (string, error)
}

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	Len(ctx context.Context) (int, error)
}

// NotifierStats reports notification queue activity.
type NotifierStats interface {
	Stats() notify.Stats
}

// Breaker is a named circuit breaker shown on /status.
type Breaker interface {
	Name() string
	State() metrics.CircuitState
}

// Server serves the gateway callback and monitoring endpoints.
type Server struct {
	engine  Engine
	config  ServerConfig
	options Options
	router  *mux.Router
	server  *http.Server
	logger  *logging.Logger
	started time.Time
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8080")
	Address string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequestTimeout bounds the evaluation of one callback. Gateways give up
	// after a few seconds, so this should stay well below their limit.
	RequestTimeout time.Duration
}

// DefaultServerConfig returns a default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:        ":8080",
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 12 * time.Second,
	}
}

// Options are the optional collaborators shown on /status and /metrics.
type Options struct {
	Sessions SessionCounter
	Notifier NotifierStats
	Breakers []Breaker

	Metrics metrics.Collector

	// MetricsHandler serves /metrics; the route is omitted when nil.
	MetricsHandler http.Handler
}

// NewServer creates a server for engine.
func NewServer(engine Engine, config ServerConfig, options Options) *Server {
	if options.Metrics == nil {
		options.Metrics = metrics.NoOpCollector{}
	}
	s := &Server{
		engine:  engine,
		config:  config,
		options: options,
		logger:  logging.Global().Named("api"),
		started: time.Now(),
	}

	r := mux.NewRouter()
	r.Use(s.instrument, s.requestID, s.recoverPanics)

	r.HandleFunc("/ussd", s.handleUSSD).Methods(http.MethodPost, http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if options.MetricsHandler != nil {
		r.Handle("/metrics", options.MetricsHandler).Methods(http.MethodGet)
	}
	s.router = r

	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	s.logger.Info("server listening", zap.String("address", ln.Addr().String()))

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleUSSD answers one gateway callback. The reply is always 200
// text/plain starting with CON or END.
func (s *Server) handleUSSD(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.logger.Warn("malformed callback", zap.Error(err))
		writeUSSD(w, ussd.GenericError)
		return
	}

	req := ussd.Request{
		SessionID:   r.FormValue("sessionId"),
		ServiceCode: r.FormValue("serviceCode"),
		PhoneNumber: r.FormValue("phoneNumber"),
		Text:        r.FormValue("text"),
	}

	ctx := r.Context()
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	resp, err := s.engine.Handle(ctx, req)
	if err != nil {
		s.logger.Error("callback failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("session_id", req.SessionID),
			zap.String("phone", req.PhoneNumber),
			zap.String("text", req.Text),
			zap.Error(err),
		)
		resp = ussd.GenericError
	}
	writeUSSD(w, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

type statusResponse struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Sessions  *int              `json:"sessions,omitempty"`
	Notifier  *notify.Stats     `json:"notifier,omitempty"`
	Breakers  map[string]string `json:"breakers,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:    "running",
		Timestamp: time.Now().Unix(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	}

	if s.options.Sessions != nil {
		n, err := s.options.Sessions.Len(r.Context())
		if err != nil {
			s.logger.Warn("session count unavailable", zap.Error(err))
			resp.Status = "degraded"
		} else if n >= 0 {
			resp.Sessions = &n
		}
	}
	if s.options.Notifier != nil {
		stats := s.options.Notifier.Stats()
		resp.Notifier = &stats
	}
	if len(s.options.Breakers) > 0 {
		resp.Breakers = make(map[string]string, len(s.options.Breakers))
		for _, b := range s.options.Breakers {
			state := b.State()
			resp.Breakers[b.Name()] = state.String()
			if state == metrics.CircuitOpen {
				resp.Status = "degraded"
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeUSSD(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
