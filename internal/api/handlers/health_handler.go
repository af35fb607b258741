package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// HealthHandler reports service and dependency health
type HealthHandler struct {
	mongoClient *mongo.Client
	redisClient *redis.Client
	logger      *zap.SugaredLogger
	startTime   time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(mongoClient *mongo.Client, redisClient *redis.Client, logger *zap.SugaredLogger) *HealthHandler {
	return &HealthHandler{
		mongoClient: mongoClient,
		redisClient: redisClient,
		logger:      logger,
		startTime:   time.Now(),
	}
}

// Check returns a basic liveness response
func (h *HealthHandler) Check(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// DetailedCheck pings each dependency and reports per-component status. The
// overall status degrades to 503 when any dependency is unreachable.
func (h *HealthHandler) DetailedCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	components := map[string]string{
		"mongodb": "ok",
		"redis":   "ok",
	}
	status := http.StatusOK

	if h.mongoClient == nil {
		components["mongodb"] = "not configured"
	} else if err := h.mongoClient.Ping(ctx, nil); err != nil {
		h.logger.Warnf("MongoDB health check failed: %v", err)
		components["mongodb"] = "unreachable"
		status = http.StatusServiceUnavailable
	}

	if h.redisClient == nil {
		components["redis"] = "not configured"
	} else if err := h.redisClient.Ping(ctx).Err(); err != nil {
		h.logger.Warnf("Redis health check failed: %v", err)
		components["redis"] = "unreachable"
		status = http.StatusServiceUnavailable
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}

	return c.JSON(status, map[string]interface{}{
		"status":     overall,
		"uptime":     time.Since(h.startTime).String(),
		"components": components,
	})
}
