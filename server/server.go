// Package server exposes a Service over HTTP with echo.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Skryldev/variant-cache/config"
	"github.com/Skryldev/variant-cache/core"
	apperrors "github.com/Skryldev/variant-cache/errors"
)

// ImageServer answers one image request. *variantcache.Service satisfies it.
type ImageServer interface {
	Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, req core.Request) error
}

// New builds the router:
//
//	GET|HEAD <route_prefix>/:params/*   image variants
//	GET      /health
//	GET      /metrics                   only when gatherer is non-nil
func New(svc ImageServer, cfg config.ServerConfig, log *slog.Logger, gatherer prometheus.Gatherer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/health" || p == "/metrics"
		},
		LogStatus:    true,
		LogURI:       true,
		LogError:     true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			rctx := c.Request().Context()
			if v.Error == nil {
				log.InfoContext(rctx, "http.request",
					"request_id", v.RequestID,
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				log.WarnContext(rctx, "http.request.failed",
					"request_id", v.RequestID,
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds(),
					"error", v.Error.Error())
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())

	h := &imageHandler{svc: svc}
	prefix := "/" + strings.Trim(cfg.RoutePrefix, "/")
	if prefix == "/" {
		prefix = ""
	}
	e.GET(prefix+"/:params/*", h.serve)
	e.HEAD(prefix+"/:params/*", h.serve)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return e
}

type imageHandler struct {
	svc ImageServer
}

func (h *imageHandler) serve(c echo.Context) error {
	token, err := url.PathUnescape(c.Param("params"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound).SetInternal(err)
	}
	rel, err := url.PathUnescape(c.Param("*"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound).SetInternal(err)
	}

	req := core.Request{
		ID:          c.Response().Header().Get(echo.HeaderXRequestID),
		PresetToken: token,
		SourcePath:  rel,
	}
	if err := h.svc.Serve(c.Request().Context(), c.Response(), c.Request(), req); err != nil {
		return echo.NewHTTPError(apperrors.StatusCode(err)).SetInternal(err)
	}
	return nil
}
