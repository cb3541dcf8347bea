package middleware

import (
	"time"

	applogger "SaxoBridge/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs HTTP requests once the handler returns.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("path", req.URL.Path),
				applogger.Int("status", res.Status),
				applogger.Duration("latency_ms", time.Since(start)),
				applogger.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
			}
			if res.Status >= 500 {
				l.Error("http request", append(fields, applogger.Error(err))...)
			} else {
				l.Info("http request", fields...)
			}

			return nil
		}
	}
}
