package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/ecocomply/compliance_backend/utils"
	"github.com/gin-gonic/gin"
)

type authString string

// AuthMiddleware validates a Bearer token when one is present and stashes the
// claims on the request context. Requests without a token pass through; the
// session cookie path can still authenticate them downstream.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		bearer := "Bearer "
		if auth == "" || !strings.HasPrefix(auth, bearer) {
			c.Next()
			return
		}
		auth = auth[len(bearer):]

		validate, err := utils.JwtValidate(auth)
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		customClaim, _ := validate.Claims.(*utils.JwtCustomClaim)

		ctx := context.WithValue(c.Request.Context(), authString("auth"), customClaim)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func CtxValue(ctx context.Context) *utils.JwtCustomClaim {
	raw, _ := ctx.Value(authString("auth")).(*utils.JwtCustomClaim)
	return raw
}
