package server

import (
	"html"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mufancom/remote-workspace/internal/errors"
	"github.com/mufancom/remote-workspace/internal/logger"
	"github.com/mufancom/remote-workspace/internal/workspace"
)

func (s *Server) setupRoutes() {
	e := s.echo

	api := e.Group("/api")

	api.GET("/workspaces", s.listWorkspaces)
	api.POST("/workspaces", s.createWorkspace)
	api.PUT("/workspaces/:id", s.updateWorkspace)
	api.DELETE("/workspaces/:id", s.deleteWorkspace)
	api.POST("/workspaces/:id/activate", s.activateWorkspace)
	api.POST("/workspaces/:id/deactivate", s.deactivateWorkspace)
	api.GET("/workspaces/:id/logs/stream", s.streamWorkspaceLog)
	api.GET("/templates", s.listTemplates)

	e.GET("/workspaces/:id/log", s.workspaceLogPage)
}

func (s *Server) listWorkspaces(c echo.Context) error {
	return c.JSON(http.StatusOK, dataResponse{Data: s.daemon.Statuses(c.Request().Context())})
}

func (s *Server) createWorkspace(c echo.Context) error {
	var options workspace.Options
	if err := c.Bind(&options); err != nil {
		return errors.Wrap(errors.ErrValidation, "invalid workspace payload", err)
	}

	id, err := s.daemon.Create(c.Request().Context(), options)
	if err != nil {
		return err
	}

	logger.GetLogger(c).WithField("workspace", id).Info("Workspace created")
	return c.JSON(http.StatusCreated, dataResponse{Data: createdWorkspace{ID: id}})
}

func (s *Server) updateWorkspace(c echo.Context) error {
	var options workspace.Options
	if err := c.Bind(&options); err != nil {
		return errors.Wrap(errors.ErrValidation, "invalid workspace payload", err)
	}

	if err := s.daemon.Update(c.Request().Context(), c.Param("id"), options); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dataResponse{Data: true})
}

func (s *Server) deleteWorkspace(c echo.Context) error {
	if err := s.daemon.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}

	logger.GetLogger(c).WithField("workspace", c.Param("id")).Info("Workspace deleted")
	return c.JSON(http.StatusOK, dataResponse{Data: true})
}

func (s *Server) activateWorkspace(c echo.Context) error {
	if err := s.daemon.Activate(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dataResponse{Data: true})
}

func (s *Server) deactivateWorkspace(c echo.Context) error {
	if err := s.daemon.Deactivate(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dataResponse{Data: true})
}

func (s *Server) listTemplates(c echo.Context) error {
	templates := s.cfg.Templates
	if templates == nil {
		templates = map[string]interface{}{}
	}
	return c.JSON(http.StatusOK, dataResponse{Data: templates})
}

// workspaceLogPage renders the container log as a minimal HTML page so it can
// be opened straight from a browser link.
func (s *Server) workspaceLogPage(c echo.Context) error {
	output, err := s.daemon.Log(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	page := "<html><body><pre>" + html.EscapeString(output) + "</pre></body></html>"
	return c.HTML(http.StatusOK, page)
}
