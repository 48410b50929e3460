package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"agri-auction/internal/config"
	"agri-auction/internal/infrastructure/redis"
	"agri-auction/internal/infrastructure/websocket"
	"agri-auction/internal/services"
	"agri-auction/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal("Failed to load config", "error", err)
	}

	log := logger.NewWithLevel(cfg.Log.Level)
	log.Info("Starting notification service", "channel", cfg.Notifications.Channel)

	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", "error", err)
	}
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

	connManager := websocket.NewConnectionManager(log)
	relay := services.NewNotificationRelay(connManager, log)
	subscriber := redis.NewNotificationSubscriber(rdb, cfg.Notifications.Channel, log)

	router := mux.NewRouter()
	websocket.NewWebSocketHandler(connManager, log).RegisterRoutes(router)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","service":"notification-service"}`))
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Notifier.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if err := relay.Start(ctx, subscriber); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal("Notification relay stopped", "error", err)
		}
	}()

	go func() {
		log.Info("Starting WebSocket server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down notification service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	stop()
	<-relayDone

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := connManager.CloseAll(); err != nil {
		log.Error("Failed to close connections", "error", err)
	}

	log.Info("Notification service stopped")
}
