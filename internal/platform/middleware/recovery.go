package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// stackBytes caps the stack trace captured on panic; deep ingestion call
// chains rarely need more than this to locate the fault.
const stackBytes = 8 * 1024

// Recovery converts a handler panic into a 500 so one bad request cannot
// take the server down mid-sync. The stack is logged, never returned to
// the caller.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				stack := make([]byte, stackBytes)
				stack = stack[:runtime.Stack(stack, false)]

				rid, _ := c.Get("request_id").(string)
				logger.Error().
					Str("request_id", rid).
					Str("path", c.Request().URL.Path).
					Interface("panic_value", r).
					Str("stack", string(stack)).
					Msg("recovered from handler panic")

				err = echo.NewHTTPError(http.StatusInternalServerError,
					fmt.Sprintf("internal server error (request %s)", rid))
			}()
			return next(c)
		}
	}
}
