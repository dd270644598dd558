package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	echoapi "go.pilab.hu/authserver/api/echo"
	"go.pilab.hu/authserver/config"
	"go.pilab.hu/authserver/log"
)

// ReadinessCheck reports whether a backing store can serve requests.
type ReadinessCheck func(ctx context.Context) error

// Options carries the optional parts of the HTTP server.
type Options struct {
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer  prometheus.Gatherer
	Readiness ReadinessCheck
}

// NewHTTPServer creates and configures a new echo HTTP server.
func NewHTTPServer(cfg *config.ServerConfig, appLogger log.Logger, oauthAPI *echoapi.OAuth2API, opts Options) *http.Server {
	e := NewRouter(cfg, appLogger, oauthAPI, opts)

	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// NewRouter builds the echo instance with middleware and all routes.
func NewRouter(cfg *config.ServerConfig, appLogger log.Logger, oauthAPI *echoapi.OAuth2API, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(otelecho.Middleware(cfg.OtelServiceName))

	if cfg.RequestTimeout > 0 {
		e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
			Timeout: cfg.RequestTimeout,
		}))
	}

	e.Use(requestLogger(appLogger))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	if opts.Readiness != nil {
		e.GET("/readyz", func(c echo.Context) error {
			if err := opts.Readiness(c.Request().Context()); err != nil {
				appLogger.Error(c.Request().Context(), "Readiness check failed", err)
				return c.String(http.StatusServiceUnavailable, "Service not ready")
			}

			return c.String(http.StatusOK, "OK")
		})
	}

	if opts.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(
			opts.Gatherer,
			promhttp.HandlerOpts{EnableOpenMetrics: true},
		)))
	}

	if oauthAPI == nil {
		appLogger.Error(context.Background(), "OAuth2API not provided to NewHTTPServer, API routes will not be registered.", nil)
	} else {
		oauthAPI.RegisterRoutes(e)
	}

	return e
}

func requestLogger(appLogger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			fields := map[string]interface{}{
				"method":     req.Method,
				"path":       req.URL.Path,
				"status":     c.Response().Status,
				"latency":    time.Since(start).String(),
				"ip":         c.RealIP(),
				"user_agent": req.UserAgent(),
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			}

			if err != nil {
				appLogger.Error(req.Context(), "HTTP Request", err, fields)
			} else {
				appLogger.Info(req.Context(), "HTTP Request", fields)
			}

			return nil
		}
	}
}
