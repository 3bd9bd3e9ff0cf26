package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapquery/pkg/adapters/relational"
)

// Wire paths served by Server and used by Client.
const (
	ExecutePath = "/v1/execute"
	CancelPath  = "/v1/cancel"
	HealthPath  = "/healthz"
)

// Error codes carried in error responses.
const (
	codeBusy      = "busy"
	codeCancelled = "cancelled"
	codeFailed    = "failed"
	codeBadInput  = "bad_request"
)

type executeRequest struct {
	ConnectionString string `json:"connection_string"`
	Query            string `json:"query"`
}

type executeResponse struct {
	Result string `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Server exposes a bridge over HTTP.
type Server struct {
	bridge relational.Bridge
	addr   string
	logger *slog.Logger
}

// ServerConfig holds configuration for the bridge server.
type ServerConfig struct {
	Bridge relational.Bridge
	Addr   string
	Logger *slog.Logger
}

// NewServer creates a new bridge server instance.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{bridge: cfg.Bridge, addr: cfg.Addr, logger: logger}
}

// Handler returns the HTTP routes of the bridge.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		s.requestLogger,
	)

	r.Post(ExecutePath, s.handleExecute)
	r.Post(CancelPath, s.handleCancel)
	r.Get(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Serve starts the bridge server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting bridge server", "addr", ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Running queries would hold shutdown open until the timeout.
		_ = s.bridge.CancelQuery(shutdownCtx)

		s.logger.Debug("shutting down bridge server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadInput, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeBadInput, "query is required")
		return
	}

	payload, err := s.bridge.ExecuteQuery(r.Context(), req.ConnectionString, req.Query)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, executeResponse{Result: string(payload)})
	case errors.Is(err, ErrBridgeBusy):
		writeError(w, http.StatusConflict, codeBusy, err.Error())
	case errors.Is(err, ErrQueryCancelled):
		writeError(w, http.StatusConflict, codeCancelled, err.Error())
	default:
		writeError(w, http.StatusUnprocessableEntity, codeFailed, err.Error())
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.bridge.CancelQuery(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, codeFailed, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("bridge request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}
