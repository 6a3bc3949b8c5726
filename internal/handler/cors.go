// Package handler implements the proxy's route handlers and route table.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// setCORSHeaders scopes a response to the single allowed origin.
func setCORSHeaders(h http.Header, origin string) {
	h.Set(echo.HeaderAccessControlAllowOrigin, origin)
	h.Set(echo.HeaderVary, echo.HeaderOrigin)
}
