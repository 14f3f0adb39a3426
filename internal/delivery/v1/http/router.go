package http

import (
	"github.com/DRSN-tech/metric-embedder/internal/usecase"
	"github.com/DRSN-tech/metric-embedder/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Router struct {
	router *chi.Mux
	logger logger.Logger
}

func NewRouter(router *chi.Mux, logger logger.Logger) *Router {
	return &Router{router: router, logger: logger}
}

func (r *Router) Init(statusUC usecase.StatusUC) {
	r.router.Use(middleware.Recoverer)

	stHandler := NewStatusHandler(statusUC, r.logger)
	r.router.Get("/healthz", stHandler.healthz)

	r.router.Route("/api/v1", func(v1 chi.Router) {
		registerStatusRoutes(v1, stHandler)
	})
}

func (r *Router) Handler() *chi.Mux {
	return r.router
}

func registerStatusRoutes(router chi.Router, stHandler *StatusHandler) {
	router.Get("/status", stHandler.getStatus)
}
