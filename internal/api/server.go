package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/irfndi/funding-collector/internal/middleware"
)

// NewRouter builds the gin engine with recovery, tracing and request logging.
func NewRouter(serviceName string, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.SpanAttributes())
	router.Use(middleware.RequestLogger(logger, "/health"))
	return router
}

// Server is the optional status HTTP server.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   *logrus.Logger
	done     chan struct{}
}

func NewServer(addr string, handler http.Handler, logger *logrus.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       15 * time.Second,
		},
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start binds the address and serves in the background. Bind errors are
// returned directly.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.listener = listener

	go func() {
		defer close(s.done)
		s.logger.WithField("addr", listener.Addr().String()).Info("Status server listening")
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Status server stopped unexpectedly")
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.srv.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for active ones within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	<-s.done
	s.logger.Info("Status server stopped")
	return nil
}
