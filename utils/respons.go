package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type JSONResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func RespondJSON(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, JSONResponse{
		Status:  code >= 200 && code < 300,
		Message: message,
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, err error) {
	c.JSON(code, JSONResponse{
		Status:  false,
		Message: err.Error(),
		Data:    nil,
	})
}

// AbortWithAuthError rejects the request with the status carried by an
// AuthError (401 when err is not one).
func AbortWithAuthError(c *gin.Context, err error) {
	code := http.StatusUnauthorized
	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.Forbidden {
		code = http.StatusForbidden
	}
	RespondError(c, code, err)
	c.Abort()
}
