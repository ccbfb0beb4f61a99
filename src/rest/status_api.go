package rest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"resilient-feed/src/interfaces"
	"resilient-feed/src/logger"
	"resilient-feed/src/models"

	"github.com/gofiber/fiber/v2"
)

// Response headers set on /data answers.
const (
	HeaderSource   = "X-Feed-Source"
	HeaderServedBy = "X-Feed-Served-By"
	HeaderDegraded = "X-Feed-Degraded"
)

// -----------------------------------------------------------------------------

// StatusDeps are the services the API reads. Realtime is nil when the push
// client is disabled.
type StatusDeps struct {
	Breakers     interfaces.IBreakerStatus
	Health       interfaces.IHealthStatus
	Realtime     interfaces.IRealtimeControl
	Orchestrator interfaces.IRequester
	Metrics      interfaces.IMetricsTotals // optional
	Cache        interfaces.ICacheStats    // optional
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code    string `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// -----------------------------------------------------------------------------
// StatusAPI
// -----------------------------------------------------------------------------

// StatusAPI is the read-only HTTP view over breakers, health and the
// realtime client, plus an on-demand orchestrated data endpoint.
type StatusAPI struct {
	name     string
	address  string
	app      *fiber.App
	listener net.Listener
	deps     StatusDeps
	logger   *logger.Logger
	running  atomic.Bool
}

// NewStatusAPI builds the fiber app and its routes.
func NewStatusAPI(config models.MStatusAPIConfig, deps StatusDeps, log *logger.Logger) *StatusAPI {
	if log == nil {
		log = logger.NewNopLogger()
	}

	api := &StatusAPI{
		name:    "status-api",
		address: fmt.Sprintf("%s:%d", config.Host, config.Port),
		deps:    deps,
		logger:  log,
	}

	api.app = fiber.New(fiber.Config{
		AppName:               "resilient-feed",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          api.handleError,
	})
	api.routes()

	return api
}

// -----------------------------------------------------------------------------

func (a *StatusAPI) routes() {
	a.app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})

	status := a.app.Group("/status")
	status.Get("/", a.getStatus)
	status.Get("/health", a.getHealth)
	status.Post("/health/check", a.checkHealth)
	status.Get("/breakers", a.getBreakers)
	status.Get("/connection", a.getConnection)
	status.Get("/subscriptions", a.getSubscriptions)
	status.Get("/metrics", a.getMetrics)

	a.app.Get("/data/:provider/*", a.getData)
}

// App exposes the fiber app, mainly for app.Test.
func (a *StatusAPI) App() *fiber.App {
	return a.app
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start binds the address and serves in the background. A bind failure is
// returned to the caller.
func (a *StatusAPI) Start() error {
	if !a.running.CompareAndSwap(false, true) {
		return nil
	}

	listener, err := net.Listen("tcp", a.address)
	if err != nil {
		a.running.Store(false)
		return fmt.Errorf("failed to listen on %s: %w", a.address, err)
	}
	a.listener = listener

	go func() {
		if err := a.app.Listener(listener); err != nil {
			a.logger.Error("%s : server stopped: %v", a.name, err)
		}
	}()

	a.logger.Info("%s : listening on %s", a.name, listener.Addr())
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx expires.
func (a *StatusAPI) Stop(ctx context.Context) error {
	if !a.running.Load() {
		return nil
	}
	defer a.running.Store(false)

	err := a.app.ShutdownWithContext(ctx)
	// covers a Stop that lands before the server goroutine began serving
	_ = a.listener.Close()
	if err != nil {
		return fmt.Errorf("failed to stop status api: %w", err)
	}
	a.logger.Info("%s : stopped", a.name)
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (a *StatusAPI) Addr() string {
	if a.running.Load() && a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.address
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (a *StatusAPI) getStatus(c *fiber.Ctx) error {
	body := fiber.Map{
		"overall":  a.deps.Health.GetOverallHealth(),
		"health":   a.deps.Health.GetHealthStatus(),
		"breakers": a.deps.Breakers.Snapshot(),
	}
	if a.deps.Realtime != nil {
		body["connection"] = a.deps.Realtime.GetConnectionStatus()
		body["subscriptions"] = a.deps.Realtime.Subscriptions()
	}
	return c.JSON(body)
}

func (a *StatusAPI) getHealth(c *fiber.Ctx) error {
	return c.JSON(models.MHealthReport{
		Overall:   a.deps.Health.GetOverallHealth(),
		Timestamp: time.Now(),
		Records:   a.deps.Health.GetHealthStatus(),
	})
}

func (a *StatusAPI) checkHealth(c *fiber.Ctx) error {
	return c.JSON(a.deps.Health.CheckNow(c.UserContext()))
}

func (a *StatusAPI) getBreakers(c *fiber.Ctx) error {
	return c.JSON(a.deps.Breakers.Snapshot())
}

func (a *StatusAPI) getConnection(c *fiber.Ctx) error {
	if a.deps.Realtime == nil {
		return realtimeDisabled(c)
	}
	return c.JSON(a.deps.Realtime.GetConnectionStatus())
}

func (a *StatusAPI) getSubscriptions(c *fiber.Ctx) error {
	if a.deps.Realtime == nil {
		return realtimeDisabled(c)
	}
	return c.JSON(a.deps.Realtime.Subscriptions())
}

// getMetrics reports counter totals and cache statistics, whichever are
// available.
func (a *StatusAPI) getMetrics(c *fiber.Ctx) error {
	if a.deps.Metrics == nil && a.deps.Cache == nil {
		return fiber.ErrNotFound
	}

	body := fiber.Map{}
	if a.deps.Metrics != nil {
		totals, err := a.deps.Metrics.Totals(c.UserContext())
		if err != nil {
			return err
		}
		body["counters"] = totals
	}
	if a.deps.Cache != nil {
		body["cache"] = a.deps.Cache.Stats()
	}
	return c.JSON(body)
}

// -----------------------------------------------------------------------------

// getData runs one orchestrated request. The query string becomes the
// request params; nocache=1 bypasses the cache read. The answer is always
// 200 because a result always carries a payload; degraded answers are
// flagged in the headers.
func (a *StatusAPI) getData(c *fiber.Ctx) error {
	// fiber strings alias the request buffer
	provider := strings.Clone(c.Params("provider"))
	endpoint := "/" + strings.TrimPrefix(strings.Clone(c.Params("*")), "/")

	noCache := c.QueryBool("nocache", false)
	params := make(map[string]string)
	for key, value := range c.Queries() {
		if key != "nocache" {
			params[strings.Clone(key)] = strings.Clone(value)
		}
	}

	result := a.deps.Orchestrator.Request(c.UserContext(), provider, endpoint, params, !noCache)

	c.Set(HeaderSource, string(result.Source))
	if result.Served != "" {
		c.Set(HeaderServedBy, result.Served)
	}
	if result.Degraded() {
		c.Set(HeaderDegraded, "true")
	}
	return c.JSON(result)
}

// -----------------------------------------------------------------------------

func realtimeDisabled(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
		Code:    "REALTIME_DISABLED",
		Title:   "Realtime Disabled",
		Message: "The realtime client is not enabled in this deployment.",
	})
}

func (a *StatusAPI) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
	}
	if code >= fiber.StatusInternalServerError {
		a.logger.Error("%s : %s %s failed: %v", a.name, c.Method(), c.Path(), err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Code:    fmt.Sprintf("HTTP_%d", code),
		Title:   http.StatusText(code),
		Message: err.Error(),
	})
}
