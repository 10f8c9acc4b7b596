package logger

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	defer Logger.SetLevel(logrus.InfoLevel)

	SetLevel("debug")
	assert.Equal(t, logrus.DebugLevel, Logger.GetLevel())

	SetLevel("warn")
	assert.Equal(t, logrus.WarnLevel, Logger.GetLevel())

	SetLevel("nonsense")
	assert.Equal(t, logrus.InfoLevel, Logger.GetLevel())
}

func TestAddFileOutputMirrorsLogLines(t *testing.T) {
	defer Logger.SetOutput(os.Stdout)

	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, AddFileOutput(path))

	Infof("file sink check %d", 42)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file sink check 42")
}

func TestGetLoggerFallsBackToGlobal(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	entry := GetLogger(c)
	require.NotNil(t, entry)
	assert.Equal(t, Logger, entry.Logger)
}

func TestRequestLoggerTagsRequestID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/workspaces", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := RequestLogger()(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	require.NoError(t, handler(c))

	reqID, ok := c.Get("request_id").(string)
	require.True(t, ok)
	assert.NotEmpty(t, strings.TrimSpace(reqID))

	entry := GetLogger(c)
	assert.Equal(t, reqID, entry.Data["request_id"])
}
