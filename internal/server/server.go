// Package server exposes the daemon operations over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mufancom/remote-workspace/internal/config"
	"github.com/mufancom/remote-workspace/internal/daemon"
	"github.com/mufancom/remote-workspace/internal/errors"
	"github.com/mufancom/remote-workspace/internal/logger"
)

// Server is the HTTP API fronting the daemon.
type Server struct {
	cfg    *config.Config
	daemon *daemon.Daemon
	echo   *echo.Echo
}

// New creates the API server.
func New(cfg *config.Config, d *daemon.Daemon) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recover())
	e.Use(logger.RequestLogger())

	s := &Server{cfg: cfg, daemon: d, echo: e}
	s.setupRoutes()
	return s
}

// Handler exposes the route tree as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start runs the server until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(address); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logger.Infof("API server listening on %s", address)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

// errorHandler renders failures as {"error": message} with the status mapped
// from the error code.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := err.Error()

	switch typed := err.(type) {
	case *errors.Error:
		status = typed.HTTPStatus()
	case *echo.HTTPError:
		status = typed.Code
		message = fmt.Sprintf("%v", typed.Message)
	}

	if writeErr := c.JSON(status, map[string]string{"error": message}); writeErr != nil {
		logger.WithError(writeErr).Error("Failed to write error response")
	}
}
