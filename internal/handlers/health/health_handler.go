package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Check pings one dependency.
type Check func(ctx context.Context) error

// Handler serves liveness and readiness checks
type Handler struct {
	checks  map[string]Check
	timeout time.Duration
	logger  *zap.Logger
}

func NewHandler(checks map[string]Check, logger *zap.Logger) *Handler {
	return &Handler{
		checks:  checks,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", h.HandleLiveness)
	r.GET("/readyz", h.HandleReadiness)
}

// HandleLiveness reports that the process is serving requests.
func (h *Handler) HandleLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReadiness runs every dependency check and reports 503 if any fails.
func (h *Handler) HandleReadiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	deps := make(gin.H, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("readiness check failed", zap.String("dependency", name), zap.Error(err))
			deps[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "dependencies": deps})
}
