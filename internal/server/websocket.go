package server

import (
	"bufio"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/mufancom/remote-workspace/internal/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// Allow connections without origin header (e.g., CLI tools)
		if origin == "" {
			return true
		}

		allowedOrigins := []string{
			"http://localhost",
			"https://localhost",
			"http://127.0.0.1",
			"https://127.0.0.1",
			"http://[::1]",
			"https://[::1]",
		}

		for _, allowed := range allowedOrigins {
			if strings.HasPrefix(origin, allowed) {
				return true
			}
		}

		logger.WithFields(logger.Fields{
			"origin": origin,
			"remote": r.RemoteAddr,
		}).Warn("WebSocket connection rejected - invalid origin")

		return false
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// streamWorkspaceLog upgrades the connection and streams the workspace
// container log line by line until the container stops or the client goes
// away.
func (s *Server) streamWorkspaceLog(c echo.Context) error {
	id := c.Param("id")

	output, err := s.daemon.FollowLog(c.Request().Context(), id)
	if err != nil {
		return err
	}
	defer output.Close()

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return err
	}
	defer ws.Close()

	logger.WithField("workspace", id).Info("Starting workspace log stream")

	// Drain client messages so close frames are processed; stop the log
	// stream as soon as the peer disconnects.
	go func() {
		for {
			if _, _, readErr := ws.ReadMessage(); readErr != nil {
				output.Close()
				return
			}
		}
	}()

	scanner := bufio.NewScanner(output)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if writeErr := ws.WriteMessage(websocket.TextMessage, scanner.Bytes()); writeErr != nil {
			return nil
		}
	}

	ws.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "log ended"),
	)
	return nil
}
