package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"gomodmail/internal/config"
	"gomodmail/internal/media"
)

// Routes groups everything the HTTP surface serves. Media and Metrics may be nil.
type Routes struct {
	Handler *Handler
	Events  http.Handler
	Media   *media.HTTPServer
	Metrics http.Handler
}

func NewRouter(cfg *config.Config, routes Routes, issuer *TokenIssuer, log logrus.FieldLogger) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)
	router.Use(loggingMiddleware(log))

	limiter := newLimiterPool(cfg.Auth.RPS, cfg.Auth.Burst)

	router.HandleFunc("/api/v1/health", routes.Handler.health).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(authMiddleware(issuer))
	api.Use(rateLimitMiddleware(limiter))
	api.HandleFunc("/threads/by-channel/{channelId}", routes.Handler.getThreadByChannel).Methods(http.MethodGet)
	api.HandleFunc("/threads/{id}", routes.Handler.getThread).Methods(http.MethodGet)
	api.HandleFunc("/threads/{id}/messages", routes.Handler.listMessages).Methods(http.MethodGet)
	if routes.Events != nil {
		api.Handle("/events", routes.Events).Methods(http.MethodGet)
	}

	if routes.Media != nil {
		routes.Media.Register(router)
	}
	if routes.Metrics != nil {
		router.Handle("/metrics", routes.Metrics).Methods(http.MethodGet)
	}

	// preflight requests only need the CORS headers
	router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	return router
}

func NewServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
