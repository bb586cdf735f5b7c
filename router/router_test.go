package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeremiapane/tenant-realtime/database"
	"github.com/yeremiapane/tenant-realtime/hub"
	"github.com/yeremiapane/tenant-realtime/services"
	"github.com/yeremiapane/tenant-realtime/stream"
	"github.com/yeremiapane/tenant-realtime/utils"
)

func TestMain(m *testing.M) {
	utils.InitLogger()
	utils.JWTSecret = []byte("router-secret")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:router?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	bus := hub.NewBus(hub.Options{})
	manager := stream.NewManager(bus, stream.Options{})
	t.Cleanup(func() { manager.Shutdown(context.Background()) })
	publisher := services.NewEventPublisher(bus)

	return SetupRouter(Dependencies{
		Bus:           bus,
		Manager:       manager,
		Notifications: services.NewNotificationService(db, bus),
		Publisher:     publisher,
		Metrics:       services.NewMetricsAggregator(services.NewGormAggregateSource(db), bus),
		CORSOrigins:   []string{"*"},
		WebhookSecret: "secret",
	})
}

func TestRouteTableFailsClosed(t *testing.T) {
	r := setupTestRouter(t)
	member, err := utils.GenerateToken(utils.Identity{OrgID: "org-a", UserID: "u1", Role: utils.RoleMember}, time.Hour)
	require.NoError(t, err)

	protected := []struct{ method, path string }{
		{http.MethodGet, "/api/notifications"},
		{http.MethodPost, "/api/notifications"},
		{http.MethodPatch, "/api/notifications/1"},
		{http.MethodPut, "/api/notifications"},
		{http.MethodDelete, "/api/notifications"},
		{http.MethodGet, "/api/notifications/stream"},
		{http.MethodGet, "/ws/notifications"},
		{http.MethodGet, "/api/metrics"},
		{http.MethodPost, "/api/metrics/recompute"},
		{http.MethodGet, "/api/admin/stream"},
		{http.MethodGet, "/api/admin/notifications"},
		{http.MethodPut, "/api/admin/notifications"},
		{http.MethodDelete, "/api/admin/notifications"},
		{http.MethodPost, "/api/admin/broadcast"},
		{http.MethodPost, "/api/admin/alerts"},
		{http.MethodPost, "/api/admin/metrics/recompute"},
		{http.MethodGet, "/api/admin/stream/stats"},
		{http.MethodPost, "/webhooks/events"},
	}
	for _, route := range protected {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(route.method, route.path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", route.method, route.path)
	}

	for _, route := range protected {
		if !strings.HasPrefix(route.path, "/api/admin") {
			continue
		}
		req := httptest.NewRequest(route.method, route.path, nil)
		req.Header.Set("Authorization", "Bearer "+member)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code, "%s %s", route.method, route.path)
	}
}

func TestPingAndPreflight(t *testing.T) {
	r := setupTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())

	req := httptest.NewRequest(http.MethodOptions, "/api/notifications", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
