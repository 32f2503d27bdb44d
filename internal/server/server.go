// Package server exposes the assistant over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"textbook-rag/internal/llm"
	"textbook-rag/internal/models"

	"github.com/gorilla/mux"
)

const (
	DefaultMaxUploadBytes = 32 << 20
	// Form parts above this size are buffered on disk by net/http
	formMemoryBytes = 8 << 20
)

// Asker answers a single request
type Asker interface {
	Ask(ctx context.Context, req models.Request) (*models.Response, error)
}

// Server exposes the assistant over HTTP.
type Server struct {
	Assistant      Asker
	MaxUploadBytes int64
	CORSOrigins    []string
	Logger         *slog.Logger

	router *mux.Router
}

type errorResponse struct {
	Error string `json:"error"`
}

// New creates a server and registers its routes.
func New(assistant Asker, maxUploadBytes int64, corsOrigins []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}

	s := &Server{
		Assistant:      assistant,
		MaxUploadBytes: maxUploadBytes,
		CORSOrigins:    corsOrigins,
		Logger:         logger,
		router:         mux.NewRouter(),
	}

	s.router.Use(s.logRequests, s.cors)
	s.router.HandleFunc("/ask", s.handleAsk).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)

	return s
}

// Handler returns the routed handler with logging and CORS applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.Logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.MaxUploadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "upload too large"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)

	req, status, err := s.parseRequest(r)
	if err != nil {
		s.Logger.Warn("bad request", "error", err)
		msg := "message, grade and subject are required"
		if status == http.StatusRequestEntityTooLarge {
			msg = "upload too large"
		}
		writeJSON(w, status, errorResponse{Error: msg})
		return
	}

	resp, err := s.Assistant.Ask(r.Context(), req)
	if err != nil {
		if errors.Is(err, llm.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			s.Logger.Error("answer timed out", "error", err)
			writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "the answer took too long, please try again"})
			return
		}
		s.Logger.Error("failed to answer", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "something went wrong, please try again"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// parseRequest reads the multipart (or urlencoded) form. The returned status
// is meaningful only with a non-nil error.
func (s *Server) parseRequest(r *http.Request) (models.Request, int, error) {
	var req models.Request

	err := r.ParseMultipartForm(formMemoryBytes)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, http.StatusRequestEntityTooLarge, err
		}
		return req, http.StatusBadRequest, fmt.Errorf("failed to parse form: %w", err)
	}

	req.Message = strings.TrimSpace(r.FormValue("message"))
	req.Grade = strings.TrimSpace(r.FormValue("grade"))
	req.Subject = strings.TrimSpace(r.FormValue("subject"))
	if req.Message == "" || req.Grade == "" || req.Subject == "" {
		return req, http.StatusBadRequest, errors.New("missing required field")
	}

	if r.MultipartForm == nil {
		return req, 0, nil
	}
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return req, 0, nil
	}
	if err != nil {
		return req, http.StatusBadRequest, fmt.Errorf("failed to read upload: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return req, http.StatusBadRequest, fmt.Errorf("failed to read upload: %w", err)
	}
	if header.Filename != "" {
		req.File = &models.Document{Filename: header.Filename, Content: content}
	}

	return req, 0, nil
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case slices.Contains(s.CORSOrigins, "*"):
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.CORSOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		// Handle preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.Logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
