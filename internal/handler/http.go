package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"

	"github.com/grandmasters-wiki/internal/domain"
	"github.com/grandmasters-wiki/internal/layout"
	"github.com/grandmasters-wiki/internal/search"
	"github.com/grandmasters-wiki/internal/service"
	"github.com/grandmasters-wiki/internal/sitemap"
	"github.com/grandmasters-wiki/internal/view"
	"github.com/grandmasters-wiki/internal/websocket"
)

const readyTimeout = 2 * time.Second

// Directory is what the handlers need from the directory service
type Directory interface {
	Grandmasters(ctx context.Context) ([]string, error)
	DirectoryPage(ctx context.Context, q service.DirectoryQuery) (*service.DirectoryPage, error)
	Player(ctx context.Context, username string) (*domain.PlayerProfile, error)
	Layout() layout.Table
}

// ReadinessCheck reports whether one dependency is usable
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler provides the pages, fragments and JSON API of the site
type Handler struct {
	directory Directory
	hub       *websocket.Hub
	renderer  *view.Renderer
	checks    []ReadinessCheck
	now       func() time.Time
	logger    *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(directory Directory, hub *websocket.Hub, renderer *view.Renderer, logger *slog.Logger, checks ...ReadinessCheck) *Handler {
	return &Handler{
		directory: directory,
		hub:       hub,
		renderer:  renderer,
		checks:    checks,
		now:       time.Now,
		logger:    logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(h.errorBoundary)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// Pages
	r.Get("/", h.DirectoryPage)
	r.Get("/player/{username}", h.ProfilePage)
	r.Get("/fragments/card/{username}", h.CardFragment)
	r.Get("/sitemap.xml", h.Sitemap)
	r.NotFound(h.NotFoundPage)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/grandmasters", h.ListGrandmasters)
		r.Get("/players/{username}", h.GetPlayer)

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// errorBoundary recovers from panics below it and renders the fallback view
// in place of the failed response
func (h *Handler) errorBoundary(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			h.logger.Error("recovered from panic",
				"panic", rec,
				"path", r.URL.Path,
				"request_id", middleware.GetReqID(r.Context()),
				"stack", string(debug.Stack()),
			)

			if isAPIRequest(r) {
				h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
				return
			}
			h.writeMessage(w, h.renderer.Fallback(""))
		}()

		next.ServeHTTP(w, r)
	})
}

func isAPIRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// statusFor maps a lookup failure to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidUsername), errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case domain.IsNotFoundError(err):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// directoryQuery reads q, page, vh and vw. Malformed numbers are ignored.
func directoryQuery(r *http.Request) service.DirectoryQuery {
	values := r.URL.Query()
	page, _ := strconv.Atoi(values.Get("page"))
	vh, _ := strconv.Atoi(values.Get("vh"))
	vw, _ := strconv.Atoi(values.Get("vw"))
	return service.DirectoryQuery{
		Term:     values.Get("q"),
		Page:     page,
		Viewport: layout.Viewport{Width: max(vw, 0), Height: max(vh, 0)},
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeHTML renders into a buffer first so a template failure can still be
// answered with the fallback view
func (h *Handler) writeHTML(w http.ResponseWriter, status int, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		h.logger.Error("failed to render page", "error", err)
		buf.Reset()
		fallback := h.renderer.Fallback("")
		if err := h.renderer.Message(&buf, fallback); err != nil {
			http.Error(w, domain.ErrInternalError.Error(), http.StatusInternalServerError)
			return
		}
		status = fallback.Status
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}

func (h *Handler) writeMessage(w http.ResponseWriter, data view.MessageData) {
	h.writeHTML(w, data.Status, func(w io.Writer) error {
		return h.renderer.Message(w, data)
	})
}

// DirectoryPage renders the searchable, paginated directory
func (h *Handler) DirectoryPage(w http.ResponseWriter, r *http.Request) {
	q := directoryQuery(r)

	usernames, err := h.directory.Grandmasters(r.Context())
	if err != nil {
		h.logger.Error("failed to load directory", "error", err)
		h.writeMessage(w, h.renderer.DirectoryError(statusFor(err), err))
		return
	}

	page := service.BuildPage(usernames, q, h.directory.Layout())
	h.writeHTML(w, http.StatusOK, func(w io.Writer) error {
		return h.renderer.Directory(w, page, search.Filter(usernames, q.Term), q.Viewport.Height, q.Viewport.Width)
	})
}

// ProfilePage renders the profile of one player
func (h *Handler) ProfilePage(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if !domain.ValidUsername(username) {
		h.writeMessage(w, h.renderer.InvalidUsername(r.URL.Path))
		return
	}

	profile, err := h.directory.Player(r.Context(), username)
	if err != nil {
		status := statusFor(err)
		if status != http.StatusNotFound {
			h.logger.Error("failed to load player", "username", username, "error", err)
		}
		h.writeMessage(w, h.renderer.ProfileError(r.URL.Path, status, err))
		return
	}

	h.writeHTML(w, http.StatusOK, func(w io.Writer) error {
		return h.renderer.Profile(w, profile)
	})
}

// CardFragment renders one directory card. Failures render the failed card
// with the matching status.
func (h *Handler) CardFragment(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	status := http.StatusOK
	var profile *domain.PlayerProfile
	if !domain.ValidUsername(username) {
		status = http.StatusBadRequest
	} else {
		p, err := h.directory.Player(r.Context(), username)
		if err != nil {
			status = statusFor(err)
			h.logger.Debug("failed to load card", "username", username, "error", err)
		} else {
			profile = p
		}
	}

	h.writeHTML(w, status, func(w io.Writer) error {
		return h.renderer.Card(w, username, profile)
	})
}

// NotFoundPage renders the 404 page for unmatched paths
func (h *Handler) NotFoundPage(w http.ResponseWriter, r *http.Request) {
	if isAPIRequest(r) {
		h.writeError(w, http.StatusNotFound, domain.ErrNotFound)
		return
	}
	h.writeMessage(w, h.renderer.NotFound())
}

// Sitemap serves the sitemap of the current directory. Without a directory
// it lists the home page only.
func (h *Handler) Sitemap(w http.ResponseWriter, r *http.Request) {
	usernames, err := h.directory.Grandmasters(r.Context())
	if err != nil {
		h.logger.Warn("serving sitemap without players", "error", err)
		usernames = nil
	}

	var buf bytes.Buffer
	set := sitemap.Build(h.renderer.Site().URL("/"), usernames, h.now())
	if err := sitemap.Write(&buf, set); err != nil {
		h.logger.Error("failed to build sitemap", "error", err)
		http.Error(w, domain.ErrInternalError.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}

// ListGrandmasters returns one page of the filtered directory
func (h *Handler) ListGrandmasters(w http.ResponseWriter, r *http.Request) {
	page, err := h.directory.DirectoryPage(r.Context(), directoryQuery(r))
	if err != nil {
		h.logger.Error("failed to load directory", "error", err)
		h.writeError(w, statusFor(err), err)
		return
	}

	h.writeSuccess(w, page)
}

// GetPlayer returns the profile of one player
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	profile, err := h.directory.Player(r.Context(), username)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusBadGateway {
			h.logger.Error("failed to load player", "username", username, "error", err)
		}
		h.writeError(w, status, err)
		return
	}

	h.writeSuccess(w, profile)
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"total_connections": h.hub.GetTotalConnections(),
	}
	if username := r.URL.Query().Get("username"); username != "" {
		stats["watchers"] = h.hub.GetWatcherCount(username)
	}
	h.writeSuccess(w, stats)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports readiness once every dependency answers
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	statuses := make(map[string]string, len(h.checks))
	ready := true
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			h.logger.Warn("readiness check failed", "check", c.Name, "error", err)
			statuses[c.Name] = err.Error()
			ready = false
			continue
		}
		statuses[c.Name] = "ok"
	}

	if !ready {
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    statuses,
			Error:   "not ready",
		})
		return
	}
	h.writeSuccess(w, map[string]any{"status": "ready", "checks": statuses})
}
