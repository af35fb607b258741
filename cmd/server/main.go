package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/boardwalk/backend/internal/api"
	"github.com/boardwalk/backend/internal/config"
	"github.com/boardwalk/backend/internal/db/mongodb"
	"github.com/boardwalk/backend/internal/db/redis"
	"github.com/boardwalk/backend/internal/game/manager"
	"github.com/boardwalk/backend/internal/game/presence"
	"github.com/boardwalk/backend/internal/game/websocket"
)

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MongoDB connection with retry capabilities
	mongoClient, err := mongodb.Connect(ctx, cfg.MongoDB.URI, sugar)
	if err != nil {
		sugar.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(ctx); err != nil {
			sugar.Errorf("Failed to disconnect from MongoDB: %v", err)
		}
	}()
	sugar.Info("Connected to MongoDB")

	// Initialize Redis connection with retry capabilities
	redisClient, err := redis.Connect(ctx, cfg.Redis.URI, sugar)
	if err != nil {
		sugar.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			sugar.Errorf("Failed to close Redis connection: %v", err)
		}
	}()
	sugar.Info("Connected to Redis")

	// Initialize stores
	db := mongoClient.Database(cfg.MongoDB.Database)
	gameStore := mongodb.NewGameStore(db, cfg.MongoDB.GamesColl)
	userStore := mongodb.NewUserStore(db, cfg.MongoDB.UsersColl)
	catalogStore := mongodb.NewCatalogStore(db, cfg.MongoDB.PropertyColl, cfg.MongoDB.CardColl)

	// Presence registry with Redis mirror
	registry := presence.NewRegistry(redisClient, sugar)

	// Initialize WebSocket hub without game manager first
	hub := websocket.NewHub(ctx, registry, sugar)
	go hub.Run()
	sugar.Info("WebSocket hub is running")

	// Initialize game manager
	gameManager := manager.NewGameManager(gameStore, userStore, catalogStore, hub, registry, cfg, sugar)
	hub.SetGameManager(gameManager)
	sugar.Info("Game manager initialized")

	// Initialize API server
	server := api.NewServer(cfg, gameManager, hub, userStore, gameStore, catalogStore, mongoClient, redisClient, sugar)

	// Start the server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			sugar.Fatalf("Failed to start the server: %v", err)
		}
	}()
	sugar.Infof("Server started on port %d", cfg.Server.Port)

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sugar.Info("Shutting down server...")
	if err := server.Shutdown(ctx); err != nil {
		sugar.Fatalf("Server forced to shutdown: %v", err)
	}

	sugar.Info("Server exited properly")
}
