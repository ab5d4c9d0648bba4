package api

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

// localOrigin reports whether r may be served. The API has no
// authentication and is meant for loopback use, so browser requests are
// accepted only from the API's own host or a loopback page. Requests
// without an Origin header (curl, the CLI, scripts) always pass.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// sameOrigin rejects cross-origin browser requests with 403.
func sameOrigin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !localOrigin(c.Request()) {
			return apiError(http.StatusForbidden, "forbidden_origin", "origin "+c.Request().Header.Get("Origin")+" is not allowed")
		}
		return next(c)
	}
}
