package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"galaxychat/internal/bootstrap"
)

const healthTimeout = 2 * time.Second

type HealthHandler struct {
	app *bootstrap.App
}

type probeResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type probe struct {
	name string
	run  func(ctx context.Context) probeResult
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

// Check pings every backing service. Disabled optional services report ok.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	probes := []probe{
		{name: h.app.Config.Database.Driver, run: h.database},
		{name: "redis", run: h.redis},
		{name: "rabbitmq", run: h.rabbitmq},
	}
	deps := make(map[string]probeResult, len(probes))
	healthy := true
	for _, p := range probes {
		res := p.run(ctx)
		deps[p.name] = res
		healthy = healthy && res.OK
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	body := gin.H{
		"app":          h.app.Config.App.Name,
		"env":          h.app.Config.App.Env,
		"uptime_sec":   int(time.Since(h.app.StartedAt).Seconds()),
		"dependencies": deps,
	}
	if h.app.Storage != nil {
		body["storage"] = h.app.Storage.Backend()
	}
	if h.app.Catalog != nil {
		body["models"] = len(h.app.Catalog.All())
	}
	c.JSON(status, body)
}

func (h *HealthHandler) database(ctx context.Context) probeResult {
	sqlDB, err := h.app.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	return resultOf(err)
}

func (h *HealthHandler) redis(ctx context.Context) probeResult {
	if h.app.Redis == nil {
		return probeResult{OK: true, Message: "disabled"}
	}
	return resultOf(h.app.Redis.Ping(ctx).Err())
}

func (h *HealthHandler) rabbitmq(context.Context) probeResult {
	if !h.app.Config.RabbitMQ.Enabled {
		return probeResult{OK: true, Message: "disabled"}
	}
	if h.app.MQConn == nil || h.app.MQConn.IsClosed() {
		return resultOf(errors.New("connection closed"))
	}
	return probeResult{OK: true}
}

func resultOf(err error) probeResult {
	if err != nil {
		return probeResult{OK: false, Message: err.Error()}
	}
	return probeResult{OK: true}
}
