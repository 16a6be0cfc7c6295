package handler

import (
	"errors"
	"strings"

	"gowa-dispatch/internal/service"

	"github.com/labstack/echo/v4"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// POST /login
func Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, 400, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return ErrorResponse(c, 400, "Username and password are required", "VALIDATION_ERROR", "")
	}

	token, err := service.Authenticate(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return ErrorResponse(c, 401, "Invalid username or password", "INVALID_CREDENTIALS", "")
		}
		return ErrorResponse(c, 500, "Login failed", "LOGIN_FAILED", err.Error())
	}

	return SuccessResponse(c, 200, "Login successful", map[string]interface{}{
		"accessToken": token,
		"tokenType":   "Bearer",
	})
}
