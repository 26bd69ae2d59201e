// README: HTTP server lifecycle.
package http

import (
	"context"
	"net/http"
	"time"

	"mealdrop/internal/logx"
)

type Server struct {
	srv *http.Server
	log logx.Logger
}

func NewServer(addr string, handler http.Handler, log logx.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

func (s *Server) Run() error {
	s.log.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
