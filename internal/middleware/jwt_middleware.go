package middleware

import (
	"net/http"
	"strings"

	"gowa-dispatch/internal/service"

	"github.com/labstack/echo/v4"
)

// JWTAuthMiddleware validates the bearer token and puts the claims on the
// request context.
func JWTAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return unauthorized(c, "UNAUTHORIZED", "Unauthorized")
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return unauthorized(c, "INVALID_AUTH_HEADER", "Invalid authorization header format")
			}

			claims, err := service.ValidateAccessToken(parts[1])
			if err != nil {
				return unauthorized(c, "INVALID_TOKEN", "Invalid or expired token")
			}

			c.Set("user_claims", claims)
			c.Set("username", claims.Username)

			return next(c)
		}
	}
}

func unauthorized(c echo.Context, code, message string) error {
	return c.JSON(http.StatusUnauthorized, map[string]interface{}{
		"success": false,
		"message": message,
		"error": map[string]string{
			"code": code,
		},
	})
}
