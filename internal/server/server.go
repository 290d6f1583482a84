// Package server provides the HTTP server and handlers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bryan-buckman/feeder/internal/opml"
	"github.com/bryan-buckman/feeder/internal/registry"
	"github.com/bryan-buckman/feeder/internal/rss"
)

const (
	// importTimeout bounds an OPML import, which validates every feed with a fetch.
	importTimeout   = 5 * time.Minute
	shutdownTimeout = 30 * time.Second
)

// Server is the main HTTP server.
type Server struct {
	reg    *registry.Registry
	router chi.Router
}

// New creates a new server over reg.
func New(reg *registry.Registry) *Server {
	s := &Server{reg: reg}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/validate", s.handleValidate)
		r.Post("/import-opml", s.handleImportOPML)
		r.Get("/export-opml", s.handleExportOPML)

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", s.handleTree)
			r.Post("/", s.handleAddCategory)
			r.Route("/{category}", func(r chi.Router) {
				r.Put("/", s.handleRenameCategory)
				r.Delete("/", s.handleRemoveCategory)
				r.Get("/entries", s.handleCategoryEntries)
				r.Post("/channels", s.handleAddChannel)
				r.Route("/channels/{channel}", func(r chi.Router) {
					r.Put("/", s.handleUpdateChannel)
					r.Delete("/", s.handleRemoveChannel)
					r.Get("/entries", s.handleChannelEntries)
				})
			})
		})
	})

	s.router = r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", addr).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("Server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// --- Category handlers ---

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.Tree())
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.reg.AddCategory(req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.reg.RenameCategory(param(r, "category"), req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRemoveCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.RemoveCategory(param(r, "category")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCategoryEntries(w http.ResponseWriter, r *http.Request) {
	view, err := s.reg.AggregatedView(r.Context(), param(r, "category"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// --- Channel handlers ---

func (s *Server) handleAddChannel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.reg.AddChannel(r.Context(), req.Name, req.URL, param(r, "category")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

// handleUpdateChannel applies a rename, a URL change and a move, in that order.
// Each step is atomic on its own; a failing step leaves earlier ones applied.
func (s *Server) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     *string `json:"name"`
		URL      *string `json:"url"`
		Category *string `json:"category"`
	}
	if !decode(w, r, &req) {
		return
	}
	category, name := param(r, "category"), param(r, "channel")

	if req.Name != nil && *req.Name != name {
		if err := s.reg.RenameChannel(category, name, *req.Name); err != nil {
			writeError(w, err)
			return
		}
		name = *req.Name
	}
	if req.URL != nil {
		if err := s.reg.ChangeChannelURL(category, name, *req.URL); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Category != nil && *req.Category != category {
		if err := s.reg.MoveChannel(name, category, *req.Category); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRemoveChannel(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.RemoveChannel(param(r, "channel"), param(r, "category")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChannelEntries(w http.ResponseWriter, r *http.Request) {
	view, err := s.reg.ChannelView(r.Context(), param(r, "category"), param(r, "channel"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.reg.ValidateChannel(r.Context(), req.URL); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "valid": true})
}

// --- OPML handlers ---

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("opml")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no file provided"})
		return
	}
	defer file.Close()

	entries, err := opml.Parse(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("failed to parse OPML: %v", err)})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), importTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, opml.Import(ctx, s.reg, entries))
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	data, err := opml.Export("Feeder Feeds", s.reg.Tree())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=feeder-feeds.opml")
	w.Write(data)
}

// --- Helpers ---

// param returns a route parameter. chi matches on the escaped path when the request
// has one, so only then is the value still escaped.
func param(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return raw
	}
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return false
	}
	return true
}

// statusFor maps registry and source errors to HTTP status codes.
func statusFor(err error) int {
	var ce *registry.ConflictError
	switch {
	case errors.As(err, &ce):
		if ce.NotFound() {
			return http.StatusNotFound
		}
		return http.StatusConflict
	case errors.Is(err, registry.ErrInvalidName), errors.Is(err, rss.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, rss.ErrFetch), errors.Is(err, rss.ErrParse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithField("error", err).Error("Request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("error", err).Warn("Encode response")
	}
}
