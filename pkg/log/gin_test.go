package log

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := New(Config{Level: "info", ServiceName: "collab-service", Output: &buf})

	r := gin.New()
	r.Use(GinMiddleware(logger))
	r.GET("/room/:slug", func(c *gin.Context) {
		c.Set(FieldRoomID, "room-1")
		l := Ctx(c.Request.Context())
		l.Info().Msg("inside handler")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/room/ab3k-9f2pq", nil)
	req.Header.Set(headerRequestID, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get(headerRequestID))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inner, done map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &inner))
	require.NoError(t, json.Unmarshal(lines[1], &done))

	assert.Equal(t, "req-123", inner[FieldRequestID])
	assert.Equal(t, "collab-service", inner[FieldService])
	assert.Equal(t, "request completed", done["message"])
	assert.Equal(t, float64(http.StatusNoContent), done[FieldStatus])
	assert.Equal(t, "room-1", done[FieldRoomID])
}

func TestGinMiddleware_GeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(GinMiddleware(New(Config{Level: "disabled"})))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(headerRequestID))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", ParseLevel("DEBUG").String())
	assert.Equal(t, "warn", ParseLevel("warning").String())
	assert.Equal(t, "info", ParseLevel("nonsense").String())
	assert.Equal(t, "disabled", ParseLevel("off").String())
}
