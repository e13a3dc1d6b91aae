package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() *Handler {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewHandler(logrus.NewEntry(logger), true, BuildInfo{Version: "1.2.3", Commit: "abc", BuildTime: "today"})
}

func TestHealth(t *testing.T) {
	h := newTestHandler()

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestHealth_ShuttingDown(t *testing.T) {
	h := newTestHandler()
	since := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h.SetShutdownStateHandler(func() (bool, time.Time) { return true, since })
	h.SetInFlightHandler(func() int64 { return 2 })

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "shutting_down", doc["status"])
	assert.Equal(t, "2024-05-01T12:00:00Z", doc["shutdown_time"])
	assert.Equal(t, float64(2), doc["in_flight"])
}

func TestVersion(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler().Version(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"service":"body-consumer","version":"1.2.3","commit":"abc","build_time":"today"}`, rec.Body.String())
}
