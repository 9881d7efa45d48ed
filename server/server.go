// Package server exposes the status and admin surface over HTTP: blogger
// standings, per-round ledgers, recent posts, and the two externally-mutable
// ledger fields (payments and forgiveness). Page rendering and feed
// generation are out of scope, the API returns JSON only.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/mrcoles/iron-blogger2/pkg/domain"
	"github.com/mrcoles/iron-blogger2/pkg/ledger"
)

// Server represents HTTP server instance
type Server struct {
	config    ConfigProvider
	db        Database
	scheduler Scheduler
	version   string
	debug     bool

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// Database interface for server operations
type Database interface {
	ListBloggers(ctx context.Context) ([]*domain.Blogger, error)
	GetBloggerByName(ctx context.Context, name string) (*domain.Blogger, error)
	ListPostsByBlogger(ctx context.Context, bloggerID int64) ([]*domain.Post, error)
	ListRecentPosts(ctx context.Context, limit int) ([]*domain.PostWithBlogger, error)
	LedgerEntries(ctx context.Context, bloggerID int64) ([]ledger.Entry, []int64, error)
	RecordPayment(ctx context.Context, roundID int64, amount int) error
	RecordForgiveness(ctx context.Context, roundID int64, amount int) error
}

// Scheduler interface for on-demand operations
type Scheduler interface {
	RunOnce(ctx context.Context) error
}

// ConfigProvider provides server configuration
type ConfigProvider interface {
	GetServerConfig() (listen string, timeout time.Duration)
}

// New initializes a new server instance
func New(cfg ConfigProvider, db Database, scheduler Scheduler, version string, debug bool) *Server {
	s := &Server{
		config:    cfg,
		db:        db,
		scheduler: scheduler,
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
	lgr.Printf("[INFO] starting server on %s", listen)

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
		lgr.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			lgr.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("iron-blogger", "mrcoles", s.version))
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
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /status", s.statusHandler)
		r.HandleFunc("GET /bloggers", s.bloggersHandler)
		r.HandleFunc("GET /bloggers/{name}/ledger", s.ledgerHandler)
		r.HandleFunc("GET /posts", s.recentPostsHandler)
		r.HandleFunc("POST /rounds/{id}/payment", s.paymentHandler)
		r.HandleFunc("POST /rounds/{id}/forgiveness", s.forgivenessHandler)
		r.HandleFunc("POST /sync", s.syncHandler)
	})
}
