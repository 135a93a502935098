package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goutham-kaluvakolu/MA-System/config"
	core "github.com/goutham-kaluvakolu/MA-System/internal/agent/core"
	"github.com/goutham-kaluvakolu/MA-System/internal/agent/telemetry"
	"github.com/goutham-kaluvakolu/MA-System/internal/capability"
)

// Run wires the assistant together and serves the HTTP API until the
// listener fails. configPath may be empty, in which case defaults plus
// environment variables apply.
func Run(configPath, addr string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	tele := telemetry.NewTelemetry(cfg.Telemetry)
	registry, err := capability.DefaultRegistry(cfg.Capabilities.SigningSecret)
	if err != nil {
		return err
	}
	orchLogger := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	orch, err := core.NewOrchestrator(cfg, orchLogger, tele, registry)
	if err != nil {
		return err
	}

	e := newEcho()
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(tele.Registry(), promhttp.HandlerOpts{})))

	api := e.Group("/api")
	rh := NewRunsHandler(cfg, orch, registry)
	rh.Register(api.Group("/runs"))
	api.GET("/capabilities", rh.capabilities)

	if addr == "" {
		addr = cfg.Server.Addr
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// newEcho builds the echo instance with the shared middleware and the
// unified JSON error handler.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))
	return e
}
