package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/tenant-realtime/events"
	"github.com/yeremiapane/tenant-realtime/middlewares"
	"github.com/yeremiapane/tenant-realtime/models"
	"github.com/yeremiapane/tenant-realtime/services"
	"github.com/yeremiapane/tenant-realtime/utils"
)

type NotificationController struct {
	Service *services.NotificationService
}

func NewNotificationController(svc *services.NotificationService) *NotificationController {
	return &NotificationController{Service: svc}
}

// GetNotifications returns the newest notifications visible to the caller.
// ?cursor= is the id of the last item already seen.
func (nc *NotificationController) GetNotifications(c *gin.Context) {
	scope, ok := callerScope(c)
	if !ok {
		return
	}
	cursor, limit, err := pageParams(c)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	list, err := nc.Service.List(c.Request.Context(), scope, cursor, limit)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notifications", list)
}

// CreateNotification stores a notification for the caller's org or, with
// userId, for one member of it.
func (nc *NotificationController) CreateNotification(c *gin.Context) {
	type reqBody struct {
		OrgID    string            `json:"orgId"`
		UserID   *string           `json:"userId"`
		Title    string            `json:"title"`
		Message  string            `json:"message" binding:"required"`
		Type     string            `json:"type"`
		Metadata map[string]string `json:"metadata"`
	}
	var body reqBody
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	id, _ := middlewares.CurrentIdentity(c)
	orgID := body.OrgID
	switch {
	case id.IsSuperadmin():
		if orgID == "" {
			utils.RespondError(c, http.StatusBadRequest, errors.New("orgId is required"))
			return
		}
	case orgID == "":
		orgID = id.OrgID
	case orgID != id.OrgID:
		utils.AbortWithAuthError(c, utils.Forbidden("Cross-org notifications forbidden"))
		return
	}

	notif := models.Notification{
		OrgID:    orgID,
		UserID:   body.UserID,
		Title:    body.Title,
		Message:  body.Message,
		Type:     body.Type,
		Metadata: body.Metadata,
	}
	if err := nc.Service.Create(c.Request.Context(), &notif); err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			utils.RespondError(c, http.StatusBadRequest, err)
			return
		}
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Notification created", notif)
}

// MarkNotificationRead marks one notification read.
func (nc *NotificationController) MarkNotificationRead(c *gin.Context) {
	scope, ok := callerScope(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid notification id"))
		return
	}

	notif, err := nc.Service.MarkRead(c.Request.Context(), scope, uint(id))
	if errors.Is(err, services.ErrNotFound) {
		utils.RespondError(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notification marked as read", notif)
}

// MarkAllRead marks every unread notification of the caller's org read.
func (nc *NotificationController) MarkAllRead(c *gin.Context) {
	scope, ok := bulkScope(c)
	if !ok {
		return
	}
	count, err := nc.Service.MarkAllRead(c.Request.Context(), scope)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "All notifications marked as read", gin.H{"count": count})
}

// DeleteAll removes every notification of the caller's org.
func (nc *NotificationController) DeleteAll(c *gin.Context) {
	scope, ok := bulkScope(c)
	if !ok {
		return
	}
	count, err := nc.Service.DeleteAll(c.Request.Context(), scope)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notifications deleted", gin.H{"count": count})
}

// bulkScope is the org a tenant bulk mutation applies to. A superadmin acts
// on the org in their token; cross-org bulk operations live under /api/admin.
func bulkScope(c *gin.Context) (events.Scope, bool) {
	id, ok := middlewares.CurrentIdentity(c)
	if !ok {
		utils.AbortWithAuthError(c, utils.Unauthorized("unauthorized"))
		return events.Scope{}, false
	}
	if id.OrgID == "" {
		if id.IsSuperadmin() {
			utils.AbortWithAuthError(c, utils.Forbidden("Cross-org bulk operations are served under /api/admin"))
		} else {
			utils.AbortWithAuthError(c, utils.Unauthorized("token carries no org membership"))
		}
		return events.Scope{}, false
	}
	return events.Org(id.OrgID), true
}

// orgScope is the scope metrics are read for: the caller's whole org, or
// every org for a superadmin.
func orgScope(c *gin.Context) (events.Scope, bool) {
	id, ok := middlewares.CurrentIdentity(c)
	if !ok {
		utils.AbortWithAuthError(c, utils.Unauthorized("unauthorized"))
		return events.Scope{}, false
	}
	scope, err := id.OrgScope()
	if err != nil {
		utils.AbortWithAuthError(c, err)
		return events.Scope{}, false
	}
	return scope, true
}

func pageParams(c *gin.Context) (cursor uint, limit int, err error) {
	if v := c.Query("cursor"); v != "" {
		n, perr := strconv.ParseUint(v, 10, 64)
		if perr != nil {
			return 0, 0, errors.New("invalid cursor")
		}
		cursor = uint(n)
	}
	if v := c.Query("limit"); v != "" {
		n, perr := strconv.Atoi(v)
		if perr != nil || n < 1 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = n
	}
	return cursor, limit, nil
}
