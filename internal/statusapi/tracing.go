package statusapi

import (
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
)

// requestAttrs identify the request in the logs of work it starts in the background
func requestAttrs(c echo.Context) []any {
	attrs := []any{"requestID", c.Response().Header().Get(echo.HeaderXRequestID)}
	if span := sentryecho.GetSpanFromContext(c); span != nil {
		attrs = append(attrs, "traceID", span.TraceID.String())
	}
	return attrs
}
