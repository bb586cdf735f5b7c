package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/tenant-realtime/utils"
)

const identityKey = "identity"

// AuthMiddleware requires a valid bearer token in the Authorization header
// and stores the caller's identity on the context. Anything else is 401.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.AbortWithAuthError(c, utils.Unauthorized("Authorization header missing"))
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			utils.AbortWithAuthError(c, utils.Unauthorized("invalid token format"))
			return
		}
		authenticate(c, strings.TrimPrefix(authHeader, "Bearer "))
	}
}

func authenticate(c *gin.Context, tokenString string) {
	claims, err := utils.ParseToken(tokenString)
	if err != nil {
		utils.AbortWithAuthError(c, err)
		return
	}

	id := utils.IdentityFromClaims(claims)
	c.Set(identityKey, id)
	c.Set("user_id", id.UserID)
	c.Set("org_id", id.OrgID)
	c.Set("role", id.Role)
	c.Next()
}

// CurrentIdentity returns the identity stored by the auth middlewares.
func CurrentIdentity(c *gin.Context) (utils.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return utils.Identity{}, false
	}
	id, ok := v.(utils.Identity)
	return id, ok
}
