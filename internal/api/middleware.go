package api

import (
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/syncwave/syncwave/internal/logger"
	"github.com/syncwave/syncwave/internal/observability/metrics"
)

// requestLogger logs one line per request. Health checks log at debug.
func requestLogger(log logger.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}
			if c.Path() == "/health" {
				log.Debug("request", fields...)
				return nil
			}
			log.Info("request", fields...)
			return nil
		},
	})
}

// metricsMiddleware records request counts, latency and response size per
// route template.
func metricsMiddleware(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.RecordHTTPRequest(method, route, c.Response().Status, time.Since(start).Seconds())
			m.RecordHTTPResponseSize(method, route, c.Response().Size)
			return nil
		}
	}
}
