package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/tenant-realtime/utils"
)

// MutationLogger records who changed notification state and whether the
// change went through.
func MutationLogger(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		fields := logrus.Fields{
			"action":  action,
			"user_id": c.GetString("user_id"),
			"org_id":  c.GetString("org_id"),
		}
		if id := c.Param("id"); id != "" {
			fields["notification_id"] = id
		}

		c.Next()

		status := c.Writer.Status()
		fields["status"] = status
		if status >= 200 && status < 300 {
			utils.InfoLogger.WithFields(fields).Info("notification mutation applied")
		} else {
			utils.ErrorLogger.WithFields(fields).Error("notification mutation failed")
		}
	}
}
