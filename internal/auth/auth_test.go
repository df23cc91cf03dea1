package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetboard/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("pass1234")
	require.NoError(t, err)
	assert.NotEqual(t, "pass1234", hash)
	assert.True(t, CheckPassword("pass1234", hash))
	assert.False(t, CheckPassword("wrong", hash))
	assert.False(t, CheckPassword("pass1234", "not-a-hash"))
}

func TestSessionRoundTrip(t *testing.T) {
	s, err := NewSessions("test-secret", time.Hour)
	require.NoError(t, err)

	token, err := s.Issue(models.Principal{Email: "alice@x.com", Role: models.RoleAdmin})
	require.NoError(t, err)

	p, err := s.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, models.Principal{Email: "alice@x.com", Role: models.RoleAdmin}, p)
}

func TestSessionRejectsForeignAndExpired(t *testing.T) {
	s, err := NewSessions("test-secret", time.Hour)
	require.NoError(t, err)
	other, err := NewSessions("other-secret", time.Hour)
	require.NoError(t, err)

	token, err := other.Issue(models.Principal{Email: "alice@x.com"})
	require.NoError(t, err)
	_, err = s.Parse(token)
	assert.Error(t, err)

	token, err = s.Issue(models.Principal{Email: "alice@x.com"})
	require.NoError(t, err)
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.Parse(token)
	assert.Error(t, err)
}

func TestNewSessionsRequiresSecret(t *testing.T) {
	_, err := NewSessions("", 0)
	assert.Error(t, err)
}

func setupRouter(t *testing.T) (*gin.Engine, *Sessions) {
	t.Helper()
	s, err := NewSessions("test-secret", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	authed := r.Group("", RequireSession(s))
	authed.GET("/whoami", func(c *gin.Context) {
		p, _ := PrincipalFrom(c)
		c.JSON(http.StatusOK, p)
	})
	authed.POST("/admin", RequireRole("Only admins", models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, s
}

func TestRequireSession(t *testing.T) {
	r, s := setupRouter(t)
	token, err := s.Issue(models.Principal{Email: "bob@x.com", Role: models.RoleMember})
	require.NoError(t, err)

	tests := []struct {
		name   string
		setup  func(*http.Request)
		status int
	}{
		{"no credentials", func(*http.Request) {}, http.StatusUnauthorized},
		{"garbage bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: token}) }, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	r, s := setupRouter(t)

	for role, want := range map[models.Role]int{
		models.RoleAdmin:  http.StatusNoContent,
		models.RoleMember: http.StatusForbidden,
	} {
		token, err := s.Issue(models.Principal{Email: "u@x.com", Role: role})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, string(role))
	}
}
