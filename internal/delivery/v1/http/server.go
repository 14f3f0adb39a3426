package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/DRSN-tech/metric-embedder/internal/cfg"
	"github.com/DRSN-tech/metric-embedder/pkg/e"
	"github.com/jimlawless/whereami"
)

// Server отдаёт health и статус захвата. Поднимается, только если задан HTTP_PORT.
type Server struct {
	httpServer *http.Server
}

func NewServer(handler http.Handler, cfg *cfg.HTTPConfig) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Run блокируется до остановки сервера. Штатная остановка через Stop ошибкой не считается.
func (s *Server) Run() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// Stop дожидается завершения активных запросов, пока не истёк ctx.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}
