package middlewares

import (
	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/tenant-realtime/utils"
)

// RequireSuperadmin rejects every caller that is not a platform operator.
// It must run after an auth middleware; a missing identity is a 401.
func RequireSuperadmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			utils.AbortWithAuthError(c, utils.Unauthorized("unauthorized"))
			return
		}
		if !id.IsSuperadmin() {
			utils.InfoLogger.WithField("user_id", id.UserID).Warn("superadmin access denied")
			utils.AbortWithAuthError(c, utils.Forbidden("superadmin access required"))
			return
		}
		c.Next()
	}
}

// RequireOrg rejects callers whose token carries no org, unless they are
// superadmins.
func RequireOrg() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			utils.AbortWithAuthError(c, utils.Unauthorized("unauthorized"))
			return
		}
		if _, err := id.Scope(); err != nil {
			utils.AbortWithAuthError(c, err)
			return
		}
		c.Next()
	}
}
