package handler

import "github.com/labstack/echo/v4"

// SuccessResponse is the envelope every successful endpoint returns.
func SuccessResponse(c echo.Context, code int, message string, data interface{}) error {
	return c.JSON(code, map[string]interface{}{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// ErrorResponse is the envelope for failures: machine code plus free-form
// detail for the caller.
func ErrorResponse(c echo.Context, code int, message, errCode, detail string) error {
	return c.JSON(code, map[string]interface{}{
		"success": false,
		"message": message,
		"error": map[string]string{
			"code":   errCode,
			"detail": detail,
		},
	})
}
