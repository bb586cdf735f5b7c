package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/tenant-realtime/events"
	"github.com/yeremiapane/tenant-realtime/hub"
	"github.com/yeremiapane/tenant-realtime/services"
	"github.com/yeremiapane/tenant-realtime/stream"
	"github.com/yeremiapane/tenant-realtime/utils"
)

// AdminController serves the superadmin surfaces. Every route is guarded
// by RequireSuperadmin.
type AdminController struct {
	Notifications *services.NotificationService
	Publisher     *services.EventPublisher
	Bus           *hub.Bus
	Manager       *stream.Manager
}

func NewAdminController(notifs *services.NotificationService, pub *services.EventPublisher, bus *hub.Bus, manager *stream.Manager) *AdminController {
	return &AdminController{Notifications: notifs, Publisher: pub, Bus: bus, Manager: manager}
}

// ListNotifications pages through notifications of every org.
func (ac *AdminController) ListNotifications(c *gin.Context) {
	cursor, limit, err := pageParams(c)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	list, err := ac.Notifications.List(c.Request.Context(), events.Global(), cursor, limit)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notifications", list)
}

func (ac *AdminController) MarkAllRead(c *gin.Context) {
	count, err := ac.Notifications.MarkAllRead(c.Request.Context(), events.Global())
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "All notifications marked as read", gin.H{"count": count})
}

func (ac *AdminController) DeleteAll(c *gin.Context) {
	count, err := ac.Notifications.DeleteAll(c.Request.Context(), events.Global())
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notifications deleted", gin.H{"count": count})
}

// Broadcast sends an announcement to every connected client.
func (ac *AdminController) Broadcast(c *gin.Context) {
	var body events.Announcement
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	ac.publish(c, func() (int, error) { return ac.Publisher.Broadcast(body) })
}

// Alert raises a system alert on every connected client.
func (ac *AdminController) Alert(c *gin.Context) {
	var body events.Alert
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	ac.publish(c, func() (int, error) { return ac.Publisher.Alert(body) })
}

func (ac *AdminController) publish(c *gin.Context, send func() (int, error)) {
	n, err := send()
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	utils.RespondJSON(c, http.StatusAccepted, "Event published", gin.H{"delivered": n})
}

// StreamStats reports the live subscription registry and bus counters.
func (ac *AdminController) StreamStats(c *gin.Context) {
	utils.RespondJSON(c, http.StatusOK, "Stream stats", gin.H{
		"bus":      ac.Bus.Stats(),
		"sessions": ac.Manager.Active(),
	})
}
