// Package server publishes the generated artifacts over HTTP: the feed
// document, the statistics snapshot, and its rendered page. It serves files
// from disk as-is; all computation happens in the run pass that produced
// them.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"
)

//go:generate moq -out mocks/config.go -pkg mocks -skip-ensure -fmt goimports . ConfigProvider

// Server represents HTTP server instance
type Server struct {
	config    ConfigProvider
	artifacts Artifacts
	version   string
	debug     bool

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// ConfigProvider provides server configuration
type ConfigProvider interface {
	GetServerConfig() (listen string, timeout time.Duration)
}

// Artifacts holds the on-disk locations of the published files
type Artifacts struct {
	Feed      string
	StatsJSON string
	StatsHTML string
}

// New initializes a new server instance
func New(cfg ConfigProvider, artifacts Artifacts, version string, debug bool) *Server {
	s := &Server{
		config:    cfg,
		artifacts: artifacts,
		version:   version,
		debug:     debug,
		router:    routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	listen, timeout := s.config.GetServerConfig()
	log.Printf("[INFO] starting server on %s", listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:         listen,
		Handler:      s.router,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// Router exposes the configured handler, used by tests
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("regwatch", "regwatch", s.version))
	s.router.Use(rest.Ping)

	if s.debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	// API routes
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /status", s.statusHandler)
	})

	// artifact routes
	s.router.HandleFunc("GET /feed.xml", s.artifactHandler(s.artifacts.Feed, "application/rss+xml; charset=utf-8"))
	s.router.HandleFunc("GET /stats.json", s.artifactHandler(s.artifacts.StatsJSON, "application/json; charset=utf-8"))
	s.router.HandleFunc("GET /stats.html", s.artifactHandler(s.artifacts.StatsHTML, "text/html; charset=utf-8"))
	s.router.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/stats.html", http.StatusTemporaryRedirect)
	})
}

// statusHandler returns server status and artifact availability
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	artifacts := map[string]interface{}{}
	for name, path := range map[string]string{
		"feed":       s.artifacts.Feed,
		"stats_json": s.artifacts.StatsJSON,
		"stats_html": s.artifacts.StatsHTML,
	} {
		info, err := os.Stat(path)
		if err != nil {
			artifacts[name] = map[string]interface{}{"present": false}
			continue
		}
		artifacts[name] = map[string]interface{}{"present": true, "modified": info.ModTime().UTC()}
	}

	status := map[string]interface{}{
		"status":    "ok",
		"version":   s.version,
		"time":      time.Now().UTC(),
		"artifacts": artifacts,
	}
	renderJSON(w, r, http.StatusOK, status)
}

// artifactHandler serves one generated file with a fixed content type
func (s *Server) artifactHandler(path, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := os.Stat(path); err != nil {
			renderError(w, r, fmt.Errorf("artifact not generated yet"), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", contentType)
		http.ServeFile(w, r, path)
	}
}

// renderJSON sends JSON response
func renderJSON(w http.ResponseWriter, _ *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// renderError sends error response as JSON
func renderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	renderJSON(w, r, code, map[string]string{"error": errMsg})
}
