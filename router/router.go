package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/tenant-realtime/controllers"
	"github.com/yeremiapane/tenant-realtime/hub"
	"github.com/yeremiapane/tenant-realtime/middlewares"
	"github.com/yeremiapane/tenant-realtime/services"
	"github.com/yeremiapane/tenant-realtime/stream"
)

// Dependencies are the long-lived components the HTTP surface serves.
type Dependencies struct {
	Bus           *hub.Bus
	Manager       *stream.Manager
	Notifications *services.NotificationService
	Publisher     *services.EventPublisher
	Metrics       *services.MetricsAggregator
	RateLimiter   *middlewares.RateLimiter
	CORSOrigins   []string
	WebhookSecret string
}

func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(deps.CORSOrigins))
	r.Use(middlewares.LoggerMiddleware())

	limiter := deps.RateLimiter
	if limiter == nil {
		limiter = middlewares.NewRateLimiter(10, 20)
	}

	streamCtrl := controllers.NewStreamController(deps.Manager, deps.CORSOrigins)
	notificationCtrl := controllers.NewNotificationController(deps.Notifications)
	metricsCtrl := controllers.NewMetricsController(deps.Metrics)
	adminCtrl := controllers.NewAdminController(deps.Notifications, deps.Publisher, deps.Bus, deps.Manager)
	webhookCtrl := controllers.NewWebhookController(deps.Publisher, deps.WebhookSecret)

	// ----------------------------------------------------------------
	//                      PUBLIC ROUTES
	// ----------------------------------------------------------------
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	r.POST("/webhooks/events", limiter.RateLimit(), webhookCtrl.Receive)

	// ----------------------------------------------------------------
	//                      STREAMS
	// ----------------------------------------------------------------
	streams := r.Group("/")
	streams.Use(middlewares.StreamAuthMiddleware())
	{
		streams.GET("/api/notifications/stream", middlewares.RequireOrg(), streamCtrl.Stream)
		streams.GET("/ws/notifications", middlewares.RequireOrg(), streamCtrl.WebSocket)
		streams.GET("/api/admin/stream", middlewares.RequireSuperadmin(), streamCtrl.AdminStream)
	}

	// ----------------------------------------------------------------
	//                      AUTHENTICATED ROUTES
	// ----------------------------------------------------------------
	api := r.Group("/api")
	api.Use(middlewares.AuthMiddleware())

	notifs := api.Group("/notifications")
	notifs.Use(middlewares.RequireOrg())
	{
		notifs.GET("", notificationCtrl.GetNotifications)
		notifs.POST("", limiter.RateLimit(), middlewares.MutationLogger("create"), notificationCtrl.CreateNotification)
		notifs.PATCH("/:id", limiter.RateLimit(), middlewares.MutationLogger("mark_read"), notificationCtrl.MarkNotificationRead)
		notifs.PUT("", limiter.RateLimit(), middlewares.MutationLogger("mark_all_read"), notificationCtrl.MarkAllRead)
		notifs.DELETE("", limiter.RateLimit(), middlewares.MutationLogger("delete_all"), notificationCtrl.DeleteAll)
	}

	api.GET("/metrics", middlewares.RequireOrg(), metricsCtrl.GetMetrics)
	api.POST("/metrics/recompute", middlewares.RequireOrg(), limiter.RateLimit(), metricsCtrl.Recompute)

	admin := api.Group("/admin")
	admin.Use(middlewares.RequireSuperadmin())
	{
		admin.GET("/notifications", adminCtrl.ListNotifications)
		admin.PUT("/notifications", middlewares.MutationLogger("admin_mark_all_read"), adminCtrl.MarkAllRead)
		admin.DELETE("/notifications", middlewares.MutationLogger("admin_delete_all"), adminCtrl.DeleteAll)
		admin.POST("/broadcast", limiter.RateLimit(), adminCtrl.Broadcast)
		admin.POST("/alerts", limiter.RateLimit(), adminCtrl.Alert)
		admin.POST("/metrics/recompute", limiter.RateLimit(), metricsCtrl.RecomputeGlobal)
		admin.GET("/stream/stats", adminCtrl.StreamStats)
	}

	return r
}
