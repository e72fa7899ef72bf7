package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mariozechner/coding-agent/chat/pkg/session"
)

// Server exposes a single chat session over HTTP. Requests for turns are
// serialized by the session itself.
type Server struct {
	sess *session.Session
}

// New creates a new Server.
func New(sess *session.Session) *Server {
	return &Server{sess: sess}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", s.handleGetSession)
		r.Get("/history", s.handleGetHistory)
		r.Get("/models", s.handleListModels)

		r.Post("/turns", s.handleSubmitTurn)
		r.Post("/model", s.handleChangeModel)
		r.Post("/context", s.handleLoadContext)
		r.Post("/sink", s.handleToggleSink)
	})

	return r
}

// Start serves HTTP on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shut down web server", "error", err)
		}
	}()

	slog.Info("Starting web server", "addr", addr, "sessionID", s.sess.ID())
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	slog.Warn("API Error", "status", status, "error", err)
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}
