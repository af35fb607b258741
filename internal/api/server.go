package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/boardwalk/backend/internal/api/handlers"
	"github.com/boardwalk/backend/internal/api/middleware/auth"
	"github.com/boardwalk/backend/internal/config"
	"github.com/boardwalk/backend/internal/db/mongodb"
	"github.com/boardwalk/backend/internal/game/manager"
	gameWs "github.com/boardwalk/backend/internal/game/websocket"
)

// CustomValidator is the request validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates the request
func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// RequestMetrics tracks request counts and latency sums per route
type RequestMetrics struct {
	RequestCount map[string]int     `json:"requestCount"`
	DurationSum  map[string]float64 `json:"durationSum"`
	mutex        sync.RWMutex
}

// Server represents the API server
type Server struct {
	echo        *echo.Echo
	cfg         *config.Config
	gameManager *manager.GameManager
	wsHub       *gameWs.Hub
	userStore   *mongodb.UserStore
	gameStore   *mongodb.GameStore
	catalog     *mongodb.CatalogStore
	mongoClient *mongo.Client
	redisClient *redis.Client
	logger      *zap.SugaredLogger
	metrics     *RequestMetrics
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, gameManager *manager.GameManager, wsHub *gameWs.Hub,
	userStore *mongodb.UserStore, gameStore *mongodb.GameStore, catalog *mongodb.CatalogStore,
	mongoClient *mongo.Client, redisClient *redis.Client, logger *zap.SugaredLogger) *Server {

	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	server := &Server{
		echo:        e,
		cfg:         cfg,
		gameManager: gameManager,
		wsHub:       wsHub,
		userStore:   userStore,
		gameStore:   gameStore,
		catalog:     catalog,
		mongoClient: mongoClient,
		redisClient: redisClient,
		logger:      logger,
		metrics: &RequestMetrics{
			RequestCount: make(map[string]int),
			DurationSum:  make(map[string]float64),
		},
	}

	server.configureMiddleware()
	server.configureRoutes()

	return server
}

// configureMiddleware sets up Echo middleware
func (s *Server) configureMiddleware() {
	s.echo.Use(middleware.Logger())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())
	s.echo.Use(middleware.RequestID())

	s.echo.Use(s.metricsMiddleware)

	// Attach a request-scoped logger carrying the request ID.
	s.echo.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			c.Set("requestID", requestID)

			requestLogger := s.logger.With(
				"requestID", requestID,
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"clientIP", c.RealIP(),
			)
			c.Set("logger", requestLogger)

			return next(c)
		}
	})
}

// metricsMiddleware records metrics for each request
func (s *Server) metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()

		err := next(c)

		duration := time.Since(start).Seconds()
		key := c.Request().Method + ":" + c.Request().URL.Path + ":" + strconv.Itoa(c.Response().Status)

		s.metrics.mutex.Lock()
		s.metrics.RequestCount[key]++
		s.metrics.DurationSum[key] += duration
		s.metrics.mutex.Unlock()

		return err
	}
}

// configureRoutes sets up API routes
func (s *Server) configureRoutes() {
	authHandler := handlers.NewAuthHandler(s.cfg, s.userStore, s.logger)
	gameHandler := handlers.NewGameHandler(s.gameManager, s.gameStore, s.catalog, s.logger)
	wsHandler := handlers.NewWebSocketHandler(s.wsHub, s.userStore, s.cfg, s.logger)
	healthHandler := handlers.NewHealthHandler(s.mongoClient, s.redisClient, s.logger)

	apiV1 := s.echo.Group("/api/v1")

	// Authentication routes (no JWT required except refresh)
	jwtMiddleware := auth.JWTMiddleware(s.cfg.JWT.Secret)
	authGroup := apiV1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/refresh-token", authHandler.RefreshToken, jwtMiddleware)
	authGroup.POST("/logout", authHandler.Logout)

	// Game read routes (JWT required)
	gameGroup := apiV1.Group("/games", jwtMiddleware)
	gameGroup.GET("", gameHandler.ListGames)
	gameGroup.GET("/:gameId", gameHandler.GetGameDetails)

	// WebSocket routes; the handler validates the token itself since
	// browsers cannot set headers on websocket upgrades
	s.echo.GET("/ws/game", wsHandler.HandleGameConnection)
	s.echo.GET("/ws/lobby", wsHandler.HandleLobbyConnection)

	// Health check endpoints (no auth required)
	s.echo.GET("/health", healthHandler.Check)
	s.echo.GET("/health/detailed", healthHandler.DetailedCheck)

	s.echo.GET("/metrics", func(c echo.Context) error {
		s.metrics.mutex.RLock()
		defer s.metrics.mutex.RUnlock()
		return c.JSON(http.StatusOK, s.metrics)
	})
}

// Start starts the API server
func (s *Server) Start() error {
	address := s.cfg.Server.Host + ":" + strconv.Itoa(s.cfg.Server.Port)
	return s.echo.Start(address)
}

// Shutdown gracefully shuts down the API server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
