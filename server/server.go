// Package server exposes the rule classifier over HTTP and WebSocket.
//
//	POST /analyze   {"message": "..."} -> {"action": "...", "description": "..."}
//	GET  /ws        one {"message"} frame in, one reply frame out, repeated
//	GET  /healthz
//	GET  /metrics   Prometheus
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/witanlabs/witan-assist/action"
	"github.com/witanlabs/witan-assist/client"
)

// maxRequestBodySize limits POST body sizes.
const maxRequestBodySize = 1 << 20 // 1 MB

const errMissingMessage = "missing message"

// Server answers classification requests with the keyword rules.
type Server struct {
	catalog  *action.Catalog
	locale   string
	delay    time.Duration
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *Metrics
	mux      *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDelay holds every answer for d before replying.
func WithDelay(d time.Duration) Option {
	return func(s *Server) { s.delay = d }
}

// WithLocale sets the description locale used when a request names none.
func WithLocale(locale string) Option {
	return func(s *Server) { s.locale = locale }
}

// WithCatalog replaces the embedded description catalog.
func WithCatalog(c *action.Catalog) Option {
	return func(s *Server) {
		if c != nil {
			s.catalog = c
		}
	}
}

// New creates a Server with its own metrics registry.
func New(opts ...Option) *Server {
	s := &Server{
		catalog:  action.DefaultCatalog(),
		locale:   action.DefaultLocale,
		logger:   slog.Default(),
		registry: prometheus.NewRegistry(),
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = NewMetrics(s.registry)

	s.mux.HandleFunc("/analyze", s.handleAnalyze)
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return s
}

// Handler returns the routed handler with request IDs and access logging.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		start := time.Now()
		s.mux.ServeHTTP(w, r)
		s.logger.Debug("Request served",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration", time.Since(start)))
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("Classifier listening", slog.String("addr", addr), slog.Duration("delay", s.delay))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// classify answers one request. ok is false when the message is blank.
func (s *Server) classify(ctx context.Context, req client.AnalyzeRequest) (client.AnalyzeResponse, bool, error) {
	if strings.TrimSpace(req.Message) == "" {
		return client.AnalyzeResponse{}, false, nil
	}
	start := time.Now()
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return client.AnalyzeResponse{}, true, ctx.Err()
		}
	}
	locale := req.Locale
	if locale == "" {
		locale = s.locale
	}
	kind := action.Classify(req.Message).Kind()
	s.metrics.ObserveClassification(string(kind), start)
	return client.AnalyzeResponse{
		Action:      string(kind),
		Description: s.catalog.Describe(locale, kind),
	}, true, nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, client.ErrorResponse{Error: "method not allowed"})
		return
	}

	var req client.AnalyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, client.ErrorResponse{Error: errMissingMessage})
		return
	}
	resp, ok, err := s.classify(r.Context(), req)
	if !ok {
		writeJSON(w, http.StatusBadRequest, client.ErrorResponse{Error: errMissingMessage})
		return
	}
	if err != nil {
		// Client went away during the delay.
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// wsFrame is one /ws reply.
type wsFrame struct {
	Action      string `json:"action,omitempty"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.logger.Debug("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()
	s.metrics.wsConnections.Inc()
	defer s.metrics.wsConnections.Dec()

	ctx := r.Context()
	for {
		var req client.AnalyzeRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				s.logger.Debug("WebSocket read ended", slog.String("error", err.Error()))
			}
			return
		}
		resp, ok, err := s.classify(ctx, req)
		if err != nil {
			return
		}
		frame := wsFrame{Action: resp.Action, Description: resp.Description}
		if !ok {
			frame = wsFrame{Error: errMissingMessage}
		}
		if err := wsjson.Write(ctx, conn, frame); err != nil {
			return
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
