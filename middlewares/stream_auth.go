package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/tenant-realtime/utils"
)

// StreamAuthMiddleware authenticates stream endpoints. Browsers cannot set
// headers on EventSource or WebSocket requests, so the token may also come
// from the "token" query parameter. The header wins when both are present.
func StreamAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			utils.AbortWithAuthError(c, utils.Unauthorized("token missing"))
			return
		}
		authenticate(c, token)
	}
}
