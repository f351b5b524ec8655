package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/collab-service/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *jwt.Manager) {
	t.Helper()

	tokens, err := jwt.NewManager("test-secret", "HS256", time.Hour, "collab-service")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", NewAuthMiddleware(tokens).RequireAuth(), func(c *gin.Context) {
		claims := GetClaims(c)
		c.JSON(http.StatusOK, gin.H{
			"participant_id": c.GetString(ParticipantIDKey),
			"room_id":        c.GetString(RoomIDKey),
			"nickname":       claims.Nickname,
		})
	})
	return r, tokens
}

func TestRequireAuth(t *testing.T) {
	r, tokens := newTestRouter(t)

	valid, err := tokens.Issue("room-1", "participant-1", "alice")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set(AuthHeaderKey, tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"participant_id":"participant-1","room_id":"room-1","nickname":"alice"}`, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"success":false`)
			}
		})
	}
}

func TestGetClaims_Absent(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetClaims(c))
	assert.Empty(t, c.GetString(ParticipantIDKey))
}
