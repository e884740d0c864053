// Package web exposes the HTTP API: capture intake, activity CRUD,
// search, analytics, briefings, chat, and settings.
package web

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yujeong0411/stack-note/internal/config"
)

// NewServer builds the HTTP server with all API routes.
func NewServer(db *sql.DB, cfg *config.Config, h *Handlers) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/activities", h.HandleCapture)
		r.Get("/activities", h.HandleListActivities)
		r.Get("/activities/{id}", h.HandleGetActivity)
		r.Put("/activities/{id}", h.HandleUpdateActivity)
		r.Delete("/activities/{id}", h.HandleDeleteActivity)

		r.Get("/search", h.HandleSearch)

		r.Get("/analytics/categories", h.HandleCategories)
		r.Get("/analytics/tags", h.HandleTags)
		r.Get("/analytics/metrics", h.HandleMetrics)

		r.Get("/briefings", h.HandleListBriefings)
		r.Get("/briefings/{id}", h.HandleGetBriefing)
		r.Post("/briefings", h.HandleGenerateBriefing)

		r.Post("/chat", h.HandleChat)

		r.Get("/settings/topics", h.HandleGetTopics)
		r.Put("/settings/topics", h.HandleSetTopics)
	})

	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port),
		Handler: r,
	}
}

// Run starts the HTTP server and shuts down gracefully on
// SIGINT/SIGTERM.
func Run(srv *http.Server, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("api listening", "addr", srv.Addr)
	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
