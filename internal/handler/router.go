/*
Package handler provides the HTTP handlers and routing setup for the GymPulse realtime server.

This file defines the main Router, applying necessary middleware like logging, CORS,
and IP-based rate limiting before delegating requests to specific handlers (monitoring,
notification, and WebSocket).
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"gympulse/internal/pkg/limiter"
	"gympulse/internal/pkg/logx"
)

const (
	// HandshakeRate and HandshakeBurst bound how often a single IP may open
	// WebSocket connections.
	HandshakeRate  = 1.0
	HandshakeBurst = 8

	// NotifyRate and NotifyBurst bound the HTTP notification trigger endpoint.
	NotifyRate  = 5.0
	NotifyBurst = 10
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It initializes IP-based rate limiters, configures CORS, and applies global and per-route middleware.
func Router(deps *AppDeps) http.Handler {
	handshakeLimiter := limiter.NewIPRateLimiter(rate.Limit(HandshakeRate), HandshakeBurst)
	notifyLimiter := limiter.NewIPRateLimiter(rate.Limit(NotifyRate), NotifyBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.Environment == "development" {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.Environment == "development" {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	// Read-only monitoring surface. Deliberately unauthenticated.
	r.Get("/", HandleRoot(deps))
	r.Get("/health", HandleHealth(deps))
	r.Get("/stats", HandleStats(deps))

	r.Route("/api", func(api chi.Router) {
		rateLimitedNotify := notifyLimiter.Middleware(HandleNotifyWorkout(deps))
		api.Post("/notify/workout", http.HandlerFunc(rateLimitedNotify.ServeHTTP))
	})

	r.Get("/ws", HandleWebSocket(wsUpgrader, handshakeLimiter, deps))

	return r
}
