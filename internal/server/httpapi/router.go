// Package httpapi exposes the account authority over HTTP with gin. The
// session token travels in an httpOnly cookie.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/multiplycharity/multiply-monorepo/internal/logging"
	"github.com/multiplycharity/multiply-monorepo/internal/server/metrics"
)

// SetupRouter builds the gin engine with every route registered.
func SetupRouter(as accountService, m *metrics.Metrics, l logging.Logger, cookieSecure bool) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(l))

	h := NewHandlers(as, l, cookieSecure)

	router.GET("/healthz", h.Health)
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	api := router.Group("/api/v1/accounts")
	{
		api.GET("/exists/:id", h.Exists)
		api.GET("/kdf/:id", h.KDFParams)
		api.POST("/register", h.Register)
		api.POST("/login", h.Login)
	}

	session := api.Group("")
	session.Use(SessionMiddleware(as))
	{
		session.GET("/session-key", h.FetchSessionKey)
		session.POST("/session-key/rotate", h.RotateSessionKey)
		session.PUT("/address", h.UpdateAddress)
		session.POST("/logout", h.Logout)
	}

	return router
}

type Server struct {
	address string
	handler http.Handler
	logger  logging.Logger
}

func NewServer(address string, handler http.Handler, l logging.Logger) *Server {
	return &Server{address: address, handler: handler, logger: l.With("module", "http_server")}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
