// Package router assembles the HTTP surface of the server.
package router

import (
	"database/sql"
	"net/http"

	"navdir/internal/clock"
	"navdir/internal/config"
	"navdir/internal/domain"
	"navdir/internal/handler"
	"navdir/internal/middleware"
	"navdir/internal/service"
	ws "navdir/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Per-client request throttles. Login has its own durable lockout on top.
const (
	authRequestsPerSecond  = 5
	authBurst              = 10
	writeRequestsPerSecond = 20
	writeBurst             = 50
)

// Deps are the collaborators the routes need. Store, DB and Broker only feed
// the readiness probe and may be nil; DevDocuments may be nil.
type Deps struct {
	Config       *config.Config
	Auth         *service.AuthService
	Documents    *service.ConfigService
	DevDocuments *service.ConfigService
	Hub          *ws.Hub
	Store        domain.KVStore
	DB           *sql.DB
	Broker       handler.BrokerStatus
	Clock        clock.Clock
}

// Router is the root handler. Close stops the background work of its
// throttles.
type Router struct {
	http.Handler
	limiters []*middleware.RateLimiter
}

func New(d Deps) *Router {
	cfg := d.Config
	authHandler := handler.NewAuthHandler(d.Auth, cfg)
	configHandler := handler.NewConfigHandler(d.Documents, d.DevDocuments, cfg)
	eventsHandler := handler.NewEventsHandler(d.Hub, middleware.ParseOrigins(cfg.AllowedOrigins))
	versionHandler := handler.NewVersionHandler(handler.BuildInfo{
		Version:   cfg.AppVersion,
		Commit:    cfg.AppCommit,
		BuildTime: cfg.BuildTime,
	}, d.Clock)

	authLimiter := middleware.NewRateLimiter(authRequestsPerSecond, authBurst)
	writeLimiter := middleware.NewRateLimiter(writeRequestsPerSecond, writeBurst)
	validate := middleware.OpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig(cfg.Environment))
	requireAdmin := middleware.RequireAdmin(d.Auth, cfg)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.LogContext)
	r.Use(middleware.CORS(middleware.ParseOrigins(cfg.AllowedOrigins)))
	r.Use(middleware.Metrics())

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(d.Store, d.DB, d.Broker))
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.With(authLimiter.Middleware(), middleware.RequireJSON, validate).Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.With(middleware.OptionalAdmin(d.Auth, cfg)).Get("/me", authHandler.Me)
		r.Get("/version", versionHandler.Version)

		r.Get("/config", configHandler.Get)
		r.With(writeLimiter.Middleware(), requireAdmin, middleware.RequireJSON, validate).Put("/config", configHandler.Put)
		r.With(requireAdmin).Get("/config/events", eventsHandler.HandleConnection)
	})

	return &Router{Handler: r, limiters: []*middleware.RateLimiter{authLimiter, writeLimiter}}
}

func (rt *Router) Close() {
	for _, l := range rt.limiters {
		l.Stop()
	}
}
