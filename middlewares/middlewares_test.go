package middlewares

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/tenant-realtime/utils"
)

func TestMain(m *testing.M) {
	utils.InitLogger()
	utils.JWTSecret = []byte("middleware-secret")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func mustToken(t *testing.T, id utils.Identity) string {
	t.Helper()
	tok, err := utils.GenerateToken(id, time.Hour)
	require.NoError(t, err)
	return tok
}

func whoami(c *gin.Context) {
	id, ok := CurrentIdentity(c)
	if !ok {
		c.Status(http.StatusTeapot)
		return
	}
	c.JSON(http.StatusOK, gin.H{"org": id.OrgID, "user": id.UserID, "role": id.Role})
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthMiddleware(), whoami)
	valid := mustToken(t, utils.Identity{OrgID: "org-a", UserID: "u1", Role: utils.RoleMember})

	cases := []struct {
		name   string
		header string
		code   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Token " + valid, http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := serve(r, req)
			assert.Equal(t, tc.code, w.Code)
			if tc.code == http.StatusOK {
				assert.JSONEq(t, `{"org":"org-a","user":"u1","role":"member"}`, w.Body.String())
			}
		})
	}
}

func TestAuthMiddlewareRejectsForeignSignature(t *testing.T) {
	tok := mustToken(t, utils.Identity{OrgID: "org-a", UserID: "u1", Role: utils.RoleSuperadmin})
	utils.JWTSecret = []byte("rotated")
	defer func() { utils.JWTSecret = []byte("middleware-secret") }()

	r := gin.New()
	r.GET("/me", AuthMiddleware(), whoami)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
}

func TestStreamAuthAcceptsQueryToken(t *testing.T) {
	r := gin.New()
	r.GET("/stream", StreamAuthMiddleware(), whoami)
	tok := mustToken(t, utils.Identity{OrgID: "org-a", UserID: "u1", Role: utils.RoleMember})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/stream?token="+tok, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/stream", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// the header wins over the query
	req := httptest.NewRequest(http.MethodGet, "/stream?token=garbage", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusOK, serve(r, req).Code)
}

func TestRequireSuperadmin(t *testing.T) {
	r := gin.New()
	r.GET("/admin", AuthMiddleware(), RequireSuperadmin(), whoami)
	r.GET("/open", RequireSuperadmin(), whoami)

	for role, code := range map[string]int{
		utils.RoleMember:     http.StatusForbidden,
		utils.RoleOrgAdmin:   http.StatusForbidden,
		utils.RoleSuperadmin: http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+mustToken(t, utils.Identity{OrgID: "org-a", UserID: "u1", Role: role}))
		assert.Equal(t, code, serve(r, req).Code, role)
	}

	assert.Equal(t, http.StatusUnauthorized, serve(r, httptest.NewRequest(http.MethodGet, "/open", nil)).Code)
}

func TestRequireOrg(t *testing.T) {
	r := gin.New()
	r.GET("/org", AuthMiddleware(), RequireOrg(), whoami)

	req := httptest.NewRequest(http.MethodGet, "/org", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, utils.Identity{UserID: "u1", Role: utils.RoleMember}))
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/org", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, utils.Identity{UserID: "root", Role: utils.RoleSuperadmin}))
	assert.Equal(t, http.StatusOK, serve(r, req).Code)
}

func TestRateLimiterPerCaller(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	r := gin.New()
	r.POST("/x", rl.RateLimit(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.RemoteAddr = ip + ":1234"
		return serve(r, req).Code
	}
	assert.Equal(t, http.StatusNoContent, send("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, send("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, send("10.0.0.2"))
}

func TestCORSMiddlewares(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddlewares([]string{"https://dash.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	w := serve(r, req)
	assert.Equal(t, "https://dash.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	assert.Empty(t, serve(r, req).Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	assert.Equal(t, http.StatusNoContent, serve(r, req).Code)
}

func TestLoggerAndSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders(), LoggerMiddleware())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	id := w.Header().Get(requestIDHeader)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(requestIDHeader, "req-42")
	assert.Equal(t, "req-42", serve(r, req).Header().Get(requestIDHeader))
}
