package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status       string            `json:"status"`
	Timestamp    string            `json:"timestamp"`
	Uptime       string            `json:"uptime"`
	Version      string            `json:"version,omitempty"`
	ChainID      uint64            `json:"chain_id,omitempty"`
	Mode         string            `json:"mode,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// HealthChecker serves liveness and readiness probes.
type HealthChecker struct {
	startTime time.Time
	version   string
	chainID   uint64
	mode      string
	checks    map[string]Check
	timeout   time.Duration
}

// NewHealthChecker creates a health checker. Readiness requires every check to pass.
func NewHealthChecker(version string, chainID uint64, mode string, checks map[string]Check) *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
		version:   version,
		chainID:   chainID,
		mode:      mode,
		checks:    checks,
		timeout:   5 * time.Second,
	}
}

func (hc *HealthChecker) status(status string) HealthStatus {
	return HealthStatus{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(hc.startTime).Round(time.Second).String(),
		Version:   hc.version,
		ChainID:   hc.chainID,
		Mode:      hc.mode,
	}
}

// HealthCheckHandler is the liveness probe.
func (hc *HealthChecker) HealthCheckHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, hc.status("ok"))
}

// ReadinessHandler runs every dependency check.
func (hc *HealthChecker) ReadinessHandler(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), hc.timeout)
	defer cancel()

	resp := hc.status("ready")
	resp.Dependencies = make(map[string]string, len(hc.checks))
	code := http.StatusOK
	for name, check := range hc.checks {
		if err := check(ctx); err != nil {
			resp.Dependencies[name] = "unhealthy: " + err.Error()
			resp.Status = "not ready"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Dependencies[name] = "healthy"
	}
	return c.JSON(code, resp)
}
